package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"ragfinance/internal/config"
)

const (
	testDBName = "ragfinance_test"
	testDBUser = "test"
	testDBPass = "test"
)

// IntegrationSuite starts Postgres, Weaviate and nsqd in containers.
// Callers gate it behind testing.Short().
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	// SkipMigrations leaves the schema to the code under test.
	SkipMigrations bool

	dbHost       string
	dbPort       int
	weaviateHost string
	nsqdTCP      string
	nsqdHTTP     string

	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	nsqContainer      testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// MigrationPath is the file:// URL of the repository migrations.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	s.setupPostgres(ctx)
	s.setupWeaviate(ctx)
	s.setupNSQ(ctx)
}

func (s *IntegrationSuite) setupPostgres(ctx context.Context) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	s.dbHost, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(s.T, err)
	s.dbPort = port.Int()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	if s.SkipMigrations {
		return
	}
	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) setupWeaviate(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.33.6",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = weaviateC

	host, err := weaviateC.Host(ctx)
	require.NoError(s.T, err)
	port, err := weaviateC.MappedPort(ctx, "8080")
	require.NoError(s.T, err)

	s.weaviateHost = fmt.Sprintf("%s:%s", host, port.Port())
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) setupNSQ(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	host, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	tcpPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	httpPort, err := nsqC.MappedPort(ctx, "4151")
	require.NoError(s.T, err)

	s.nsqdTCP = fmt.Sprintf("%s:%s", host, tcpPort.Port())
	s.nsqdHTTP = fmt.Sprintf("%s:%s", host, httpPort.Port())
	s.NSQ, err = nsq.NewProducer(s.nsqdTCP, nsq.NewConfig())
	require.NoError(s.T, err)
}

// GetAppConfig points a configuration at the suite's containers. Provider
// credentials are left to the caller.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	return &config.Config{
		LLMProvider:                config.ProviderGemini,
		RetrievalTopK:              4,
		EmbedBatchSize:             100,
		IndexCache:                 true,
		VectorBackend:              config.BackendWeaviate,
		WeaviateHost:               s.weaviateHost,
		WeaviateScheme:             "http",
		DispatchMode:               config.DispatchInProcess,
		NSQDHost:                   s.nsqdTCP,
		NSQDHTTP:                   s.nsqdHTTP,
		NSQMaxInFlight:             8,
		RunTimeoutSeconds:          60,
		EnableRunStore:             true,
		DBHost:                     s.dbHost,
		DBPort:                     s.dbPort,
		DBUser:                     testDBUser,
		DBPass:                     testDBPass,
		DBName:                     testDBName,
		MigrationPath:              MigrationPath(),
		ServerPort:                 8081,
		AnswerLogPath:              filepath.Join(s.T.TempDir(), "answers.log"),
		LogLevel:                   "debug",
		BootstrapRetryAttempts:     5,
		BootstrapRetryDelaySeconds: 1,
	}
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		s.weaviateContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
}

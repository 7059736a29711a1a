package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"ragfinance/internal/config"
	"ragfinance/internal/vector"
)

// Dependencies are the optional external services. Each field is nil unless
// the configuration selects it.
type Dependencies struct {
	DB          *sql.DB
	Weaviate    *weaviate.Client
	NSQProducer *nsq.Producer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	retryDelay := cfg.RetryDelay()

	if cfg.EnableRunStore {
		db, err := openDatabase(ctx, cfg, retryDelay)
		if err != nil {
			return nil, err
		}
		deps.DB = db
	}

	if cfg.VectorBackend == config.BackendWeaviate {
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}

		if err := ResetSchemaWithRetry(ctx, vector.NewSchemaAdapter(wClient), cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		deps.Weaviate = wClient
	}

	if cfg.DispatchMode == config.DispatchNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer

		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = retry(ctx, cfg.BootstrapRetryAttempts, retryDelay, func() error {
		return db.PingContext(ctx)
	}, "failed to ping db, retrying...")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	slog.InfoContext(ctx, "migrations applied successfully")
	return db, nil
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func createTopics(nsqdHTTP string) {
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, config.TopicQuestionTask)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", config.TopicQuestionTask, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}()
}

// ResetSchemaWithRetry waits for Weaviate and drops pages left by earlier processes.
func ResetSchemaWithRetry(ctx context.Context, client vector.SchemaClient, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, func() error {
		return vector.ResetSchema(ctx, client)
	}, "failed to reset weaviate schema, retrying...")
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, msg string) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			slog.WarnContext(ctx, msg, "attempt", i+1, "max_attempts", attempts, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

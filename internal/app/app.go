package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"ragfinance/features/message"
	"ragfinance/features/run"
	"ragfinance/features/stats"
	"ragfinance/internal/adapter/reranker"
	wstore "ragfinance/internal/adapter/weaviate"
	"ragfinance/internal/answerlog"
	"ragfinance/internal/config"
	"ragfinance/internal/document"
	"ragfinance/internal/domain"
	"ragfinance/internal/index"
	"ragfinance/internal/middleware"
	"ragfinance/internal/pipeline"
	"ragfinance/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second

	// msgTimeoutMargin keeps nsqd from redelivering a question whose run is
	// still inside its own deadline.
	msgTimeoutMargin = 30 * time.Second
)

type App struct {
	Handler    http.Handler
	Dispatcher *message.Dispatcher
	Pipeline   *pipeline.Orchestrator
	Consumer   *worker.QuestionConsumer

	answers      *answerlog.Logger
	port         int
	stopConsumer func(context.Context) error
}

func New(cfg *config.Config, deps *Dependencies, provider Provider) (*App, error) {
	if deps == nil {
		deps = &Dependencies{}
	}

	builder, err := indexBuilder(cfg, deps, provider)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithTopK(cfg.RetrievalTopK),
		pipeline.WithIndexCache(cfg.IndexCache),
		pipeline.WithBuildTimeout(cfg.RunTimeout()),
	}
	if rr := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey); rr.Enabled() {
		opts = append(opts, pipeline.WithReranker(rr))
	}
	orch := pipeline.New(document.NewLoader(), builder, provider, cfg.SourcePath, opts...)

	// Feature: Run store
	var runRepo run.Repository = run.NewMemoryRepo()
	if deps.DB != nil {
		runRepo = run.NewPostgresRepo(deps.DB)
	}

	answers, err := answerlog.NewFile(cfg.AnswerLogPath)
	if err != nil {
		slog.Warn("failed to create answer log, falling back to stdout", "error", err)
		answers = answerlog.New(os.Stdout)
	}

	// Feature: Message
	dispatchOpts := []message.Option{message.WithTimeout(cfg.RunTimeout())}
	if deps.NSQProducer != nil {
		dispatchOpts = append(dispatchOpts, message.WithPublisher(deps.NSQProducer))
	}
	dispatcher := message.NewDispatcher(orch, answers, runRepo, dispatchOpts...)
	messageHandler := message.NewHandler(dispatcher)

	// Feature: Stats
	statsHandler := stats.NewHandler(runRepo)

	// Routes
	mux := http.NewServeMux()
	mux.Handle("POST /message", middleware.CorrelationID(http.HandlerFunc(messageHandler.Post)))
	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	a := &App{
		Handler:    mux,
		Dispatcher: dispatcher,
		Pipeline:   orch,
		answers:    answers,
		port:       cfg.ServerPort,
	}
	if deps.NSQProducer != nil {
		a.Consumer = worker.NewQuestionConsumer(dispatcher)
	}
	return a, nil
}

func indexBuilder(cfg *config.Config, deps *Dependencies, embedder domain.Embedder) (pipeline.IndexBuilder, error) {
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		if deps.Weaviate == nil {
			return nil, fmt.Errorf("%w: weaviate backend selected but no client bootstrapped", config.ErrInvalidValue)
		}
		store := wstore.NewStore(deps.Weaviate, embedder, cfg.EmbedBatchSize)
		return pipeline.IndexBuilderFunc(func(ctx context.Context, segments []domain.Segment) (pipeline.Index, error) {
			b, err := store.Build(ctx, segments)
			if err != nil {
				return nil, err
			}
			return b, nil
		}), nil
	default:
		builder := index.NewBuilder(embedder, cfg.EmbedBatchSize)
		return pipeline.IndexBuilderFunc(func(ctx context.Context, segments []domain.Segment) (pipeline.Index, error) {
			m, err := builder.Build(ctx, segments)
			if err != nil {
				return nil, err
			}
			return m, nil
		}), nil
	}
}

func consumerConfig(cfg *config.Config) *nsq.Config {
	c := nsq.NewConfig()
	c.MaxInFlight = max(cfg.NSQMaxInFlight, 1)
	c.MsgTimeout = cfg.RunTimeout() + msgTimeoutMargin
	return c
}

// ConnectConsumer subscribes the question consumer to NSQ. Close stops it
// before the runs it started are drained.
func (a *App) ConnectConsumer(cfg *config.Config) error {
	if a.Consumer == nil {
		return nil
	}
	nsqCfg := consumerConfig(cfg)
	consumer, err := nsq.NewConsumer(config.TopicQuestionTask, config.ChannelPipeline, nsqCfg)
	if err != nil {
		return fmt.Errorf("failed to create NSQ consumer: %w", err)
	}
	consumer.AddConcurrentHandlers(a.Consumer, nsqCfg.MaxInFlight)
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return fmt.Errorf("failed to connect to NSQLookupd: %w", err)
	}

	a.stopConsumer = func(ctx context.Context) error {
		consumer.Stop()
		select {
		case <-consumer.StopChan:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	slog.Info("NSQ question consumer connected",
		"topic", config.TopicQuestionTask,
		"max_in_flight", nsqCfg.MaxInFlight,
		"msg_timeout", nsqCfg.MsgTimeout.String())
	return nil
}

// Run serves HTTP until ctx is done, then drains in-flight runs.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", a.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	return a.Close(shutdownCtx)
}

// Close stops taking questions, waits for in-flight runs and releases the
// index and the answer log, in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.stopConsumer != nil {
		if err := a.stopConsumer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping consumer: %w", err))
		}
	}
	if err := a.Dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for runs: %w", err))
	}
	if err := a.Pipeline.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.answers.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

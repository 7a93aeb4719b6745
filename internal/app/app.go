package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cloudyy74/diconnect-pairup/internal/config"
	"github.com/cloudyy74/diconnect-pairup/internal/directory"
	"github.com/cloudyy74/diconnect-pairup/internal/durable"
	router "github.com/cloudyy74/diconnect-pairup/internal/http"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/internal/pairup"
	"github.com/cloudyy74/diconnect-pairup/internal/queue"
	"github.com/cloudyy74/diconnect-pairup/internal/scheduler"
	"github.com/cloudyy74/diconnect-pairup/internal/service"
	"github.com/cloudyy74/diconnect-pairup/internal/storage"
	"github.com/cloudyy74/diconnect-pairup/pkg/postgres"
)

type App struct {
	cfg        *config.Config
	httpServer *http.Server
	database   *postgres.Postgres
	producer   *queue.Producer
	matching   *service.MatchingService
	scheduler  *scheduler.Scheduler
	log        *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	database, err := postgres.New(ctx, cfg.DBURL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	a := &App{cfg: cfg, database: database, log: log}
	if err := a.init(ctx); err != nil {
		database.Close()
		if a.producer != nil {
			a.producer.Close()
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	groupStorage, err := storage.NewResourceGroupStorage(a.database, log)
	if err != nil {
		return fmt.Errorf("failed to create resource group storage: %w", err)
	}
	pairUpStorage, err := storage.NewPairUpStorage(a.database, log)
	if err != nil {
		return fmt.Errorf("failed to create pair-up storage: %w", err)
	}
	txManager, err := storage.NewTxManager(a.database, log)
	if err != nil {
		return fmt.Errorf("failed to create tx manager: %w", err)
	}
	history, err := a.newHistory()
	if err != nil {
		return err
	}

	graph, err := directory.NewGraphClient(ctx, directory.Config{
		BaseURL:         cfg.Graph.BaseURL,
		TokenURL:        cfg.Graph.TokenURL,
		TenantID:        cfg.Graph.TenantID,
		ClientID:        cfg.Graph.ClientID,
		ClientSecret:    cfg.Graph.ClientSecret,
		ProfileCacheTTL: cfg.Graph.ProfileCacheTTL,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create directory client: %w", err)
	}
	a.producer, err = queue.NewProducer(cfg.Queue.Brokers, cfg.Queue.DeliveryTimeout, log)
	if err != nil {
		return fmt.Errorf("failed to create queue producer: %w", err)
	}

	runtime, err := durable.NewRuntime(history, log,
		durable.LeaseTTL(cfg.Orchestration.LeaseTTL),
		durable.MaxConcurrency(cfg.Orchestration.MaxConcurrency),
	)
	if err != nil {
		return fmt.Errorf("failed to create orchestration runtime: %w", err)
	}
	activities, err := pairup.NewActivities(groupStorage, pairUpStorage, txManager, graph, a.producer, cfg.Queue.BatchTopic, log)
	if err != nil {
		return fmt.Errorf("failed to create activities: %w", err)
	}
	orchestrators, err := pairup.NewOrchestrators(retryOptions(cfg.Orchestration), log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrators: %w", err)
	}
	if err := pairup.Register(runtime, activities, orchestrators); err != nil {
		return fmt.Errorf("failed to register pair-up pipeline: %w", err)
	}

	groupService, err := service.NewResourceGroupService(groupStorage, log)
	if err != nil {
		return fmt.Errorf("failed to create resource group service: %w", err)
	}
	pairUpService, err := service.NewPairUpService(pairUpStorage, log)
	if err != nil {
		return fmt.Errorf("failed to create pair-up service: %w", err)
	}
	a.matching, err = service.NewMatchingService(runtime, log)
	if err != nil {
		return fmt.Errorf("failed to create matching service: %w", err)
	}
	if cfg.Scheduler.Enabled {
		a.scheduler, err = scheduler.New(a.matching, cfg.Scheduler.Interval, log)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	mux := http.NewServeMux()
	if err := router.SetupRouter(mux, groupService, pairUpService, a.matching, log); err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}
	a.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Timeout,
		ReadTimeout:       cfg.Timeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return nil
}

func (a *App) newHistory() (durable.HistoryStore, error) {
	if a.cfg.Orchestration.History == config.HistoryMemory {
		a.log.Warn("orchestration history is kept in memory, runs will not survive a restart")
		h, err := durable.NewMemoryHistory()
		if err != nil {
			return nil, fmt.Errorf("failed to create memory history: %w", err)
		}
		return h, nil
	}
	h, err := storage.NewHistoryStorage(a.database, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create history storage: %w", err)
	}
	return h, nil
}

func retryOptions(cfg config.Orchestration) durable.RetryOptions {
	opts := durable.NewRetryOptions(cfg.FirstRetryInterval, cfg.MaxAttempts)
	opts.BackoffCoefficient = cfg.BackoffCoefficient
	opts.MaxRetryInterval = cfg.MaxRetryInterval
	return opts
}

// Run serves the admin API and, when enabled, the daily matching scheduler until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler != nil {
		go a.scheduler.Run(ctx)
	}
	a.log.Info("starting http server", slog.String("addr", a.cfg.Addr))
	return a.httpServer.ListenAndServe()
}

func (a *App) MustRun(ctx context.Context) {
	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("failed to run http server", slog.Any("error", err))
		panic(err)
	}
}

// RunMatching runs one preparation for frequency and returns the finished instance.
func (a *App) RunMatching(ctx context.Context, frequency models.MatchingFrequency, instanceID string) (*models.OrchestrationInstance, error) {
	return a.matching.RunMatching(ctx, frequency, instanceID)
}

// RunMatchWorker consumes pair-up batches and publishes matched pairs until ctx ends.
func (a *App) RunMatchWorker(ctx context.Context) error {
	worker, err := pairup.NewMatchWorker(a.producer, a.cfg.Queue.MatchTopic, a.log)
	if err != nil {
		return fmt.Errorf("failed to create match worker: %w", err)
	}
	consumer, err := queue.NewConsumer(a.cfg.Queue.Brokers, a.cfg.Queue.GroupID, a.cfg.Queue.BatchTopic, a.cfg.Queue.PollTimeout, a.log)
	if err != nil {
		return fmt.Errorf("failed to create queue consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			a.log.Warn("failed to close queue consumer", slog.Any("error", err))
		}
	}()

	a.log.Info("starting match worker", slog.String("topic", a.cfg.Queue.BatchTopic))
	err = consumer.Consume(ctx, worker.HandleBatch)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close(ctx context.Context) {
	a.log.Info("trying to shutdown server")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Warn("failed to close http server", slog.Any("error", err))
	}
	if err := a.matching.Shutdown(ctx); err != nil {
		a.log.Warn("failed to stop matching runs", slog.Any("error", err))
	}
	a.producer.Close()
	a.database.Close()
}

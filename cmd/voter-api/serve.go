package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/handler"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/repository"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/service"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/cache"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/database"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/jobs"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/logger"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/tracing"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/whatsapp"
)

func newServeCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(parent context.Context, migrateFirst bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	shutdownTracing, err := tracing.Init(cfg.Tracing, cfg.Env)
	if err != nil {
		return err
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if migrateFirst {
		n, err := database.MigrateUp(db.DB)
		if err != nil {
			return err
		}
		logr.Info("migrations applied", zap.Int("count", n))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	app, err := buildApp(ctx, cfg, db, redisClient, logr)
	if err != nil {
		return err
	}
	app.queue.Start(context.Background())

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Tokens:         service.NewTokenService(cfg.JWT),
		Metrics:        app.metrics,
		Logger:         logr,
		References:     app.references,
		Health:         handler.NewMetricsHandler(app.metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	app.shutdown(shutdownCtx, logr)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown incomplete", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	return nil
}

// pipeline holds the wired services so serve can drain them in order.
type pipeline struct {
	metrics    *service.MetricsService
	queue      *jobs.Queue
	effects    *service.SideEffects
	intake     *service.ReferenceService
	references *handler.ReferenceHandler
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*pipeline, error) {
	metrics := service.NewMetricsService()

	refRepo := repository.NewReferenceRepository(db)
	voterRepo := repository.NewVoterRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.References.CacheTTL, logr, redisClient != nil)

	indexer, err := service.NewSearchIndexer(ctx, cfg.Search, logr)
	if err != nil {
		return nil, fmt.Errorf("init search indexer: %w", err)
	}

	recorder := service.NewAuditRecorder(auditRepo, metrics, logr)
	worker := service.NewSideEffectWorker(recorder, indexer, logr)

	var effects *service.SideEffects
	queue := jobs.NewQueue("side-effects", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Pipeline.SideEffectWorkers,
		BufferSize: cfg.Pipeline.SideEffectBuffer,
		MaxRetries: cfg.Pipeline.IndexRetries,
		RetryDelay: cfg.Pipeline.RetryDelay,
		Logger:     logr,
		OnDrop: func(job jobs.Job, err error) {
			effects.OnDrop(job, err)
		},
	})
	effects = service.NewSideEffects(queue, worker, metrics, logr)

	if !cfg.WhatsApp.Configured() {
		logr.Warn("whatsapp credentials missing, reference notifications will be skipped")
	}
	dispatcher := service.NewNotificationDispatcher(whatsapp.NewClient(cfg.WhatsApp, nil), metrics, logr)

	intake := service.NewReferenceService(
		refRepo,
		voterRepo,
		service.NewReferenceValidator(nil),
		dispatcher,
		effects,
		cacheSvc,
		metrics,
		cfg.Pipeline,
		cfg.References.CacheTTL,
		logr,
	)
	workflow := service.NewStatusWorkflow(refRepo, effects, cacheSvc, metrics, cfg.Pipeline.EnforceForwardTransitions, logr)
	exporter := service.NewExportService(refRepo, nil, nil, logr)

	return &pipeline{
		metrics:    metrics,
		queue:      queue,
		effects:    effects,
		intake:     intake,
		references: handler.NewReferenceHandler(intake, workflow, recorder, exporter),
	}, nil
}

// shutdown drains notification tasks first since they enqueue side effects,
// then the queue, then any side effects that overflowed the queue.
func (a *pipeline) shutdown(ctx context.Context, logr *zap.Logger) {
	if err := a.intake.Shutdown(ctx); err != nil {
		logr.Warn("notification tasks still running at shutdown", zap.Error(err))
	}
	if err := a.queue.Shutdown(ctx); err != nil {
		logr.Warn("side-effect queue not drained", zap.Error(err))
	}
	if err := a.effects.Wait(ctx); err != nil {
		logr.Warn("detached side effects still running at shutdown", zap.Error(err))
	}
}

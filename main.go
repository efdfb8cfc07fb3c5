package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scentroute-cloud/internal/audit"
	catalogapp "scentroute-cloud/internal/catalog/application"
	catalogrepo "scentroute-cloud/internal/catalog/infrastructure/postgres"
	cataloghttp "scentroute-cloud/internal/catalog/interfaces/http"
	"scentroute-cloud/internal/config"
	"scentroute-cloud/internal/observability/logging"
	"scentroute-cloud/internal/observability/metrics"
	reconcileapp "scentroute-cloud/internal/reconcile/application"
	reconcileredis "scentroute-cloud/internal/reconcile/infrastructure/redis"
	reconcilehttp "scentroute-cloud/internal/reconcile/interfaces/http"
	scheduleapp "scentroute-cloud/internal/schedule/application"
	schedulerepo "scentroute-cloud/internal/schedule/infrastructure/postgres"
	schedulehttp "scentroute-cloud/internal/schedule/interfaces/http"
	"scentroute-cloud/internal/store"
	summaryapp "scentroute-cloud/internal/summary/application"
	summaryrepo "scentroute-cloud/internal/summary/infrastructure/postgres"
	summaryhttp "scentroute-cloud/internal/summary/interfaces/http"
	visitapp "scentroute-cloud/internal/visits/application"
	visitrepo "scentroute-cloud/internal/visits/infrastructure/postgres"
	visithttp "scentroute-cloud/internal/visits/interfaces/http"
)

func main() {
	reconcileOnce := flag.Bool("reconcile-once", false, "run one past-due sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "scentroute-cloud")
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("store open error", zap.Error(err))
	}
	defer db.Close()

	loc := cfg.Location()
	metrics.Init(db.DB.DB, logger)
	auditRepo := audit.NewRepository(db)

	catalogRepo := catalogrepo.NewRepository(db)
	visitRepo := visitrepo.NewRepository(db)
	scheduleRepo := schedulerepo.NewRepository(db)

	reconciler, err := reconcileapp.NewReconciler(visitRepo, reconcileapp.SystemClock{}, loc, cfg.Reconcile.Workers, logger)
	if err != nil {
		logger.Fatal("reconciler error", zap.Error(err))
	}
	if *reconcileOnce {
		result, err := reconciler.ReconcileNow(ctx)
		if err != nil {
			logger.Fatal("reconcile error", zap.Error(err))
		}
		logger.Info("reconcile finished",
			zap.Int("found", result.Found),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
		)
		return
	}

	catalogService, err := catalogapp.NewService(catalogRepo, db, catalogapp.SystemClock{})
	if err != nil {
		logger.Fatal("catalog service error", zap.Error(err))
	}
	expander, err := visitapp.NewExpander(catalogRepo, visitRepo, db, visitapp.SystemClock{}, loc, logger)
	if err != nil {
		logger.Fatal("expander error", zap.Error(err))
	}
	scheduleService, err := scheduleapp.NewService(scheduleRepo, catalogRepo, expander, visitRepo, db, scheduleapp.SystemClock{}, loc, logger)
	if err != nil {
		logger.Fatal("schedule service error", zap.Error(err))
	}
	manualService, err := visitapp.NewManualVisitService(visitRepo, db, visitapp.SystemClock{})
	if err != nil {
		logger.Fatal("manual visit service error", zap.Error(err))
	}
	quantityService, err := visitapp.NewQuantityService(visitRepo)
	if err != nil {
		logger.Fatal("quantity service error", zap.Error(err))
	}
	servicePoints, err := visitapp.NewServicePointService(visitRepo)
	if err != nil {
		logger.Fatal("service point service error", zap.Error(err))
	}
	summaryService, err := summaryapp.NewService(summaryrepo.NewReader(db), loc)
	if err != nil {
		logger.Fatal("summary service error", zap.Error(err))
	}

	catalogHandler, err := cataloghttp.NewHandler(catalogService, auditRepo, logger)
	if err != nil {
		logger.Fatal("catalog handler error", zap.Error(err))
	}
	scheduleHandler, err := schedulehttp.NewHandler(scheduleService, auditRepo, logger)
	if err != nil {
		logger.Fatal("schedule handler error", zap.Error(err))
	}
	visitHandler, err := visithttp.NewHandler(manualService, quantityService, servicePoints, loc, auditRepo, logger)
	if err != nil {
		logger.Fatal("visit handler error", zap.Error(err))
	}
	summaryHandler, err := summaryhttp.NewHandler(summaryService, auditRepo, logger)
	if err != nil {
		logger.Fatal("summary handler error", zap.Error(err))
	}
	reconcileHandler, err := reconcilehttp.NewHandler(reconciler, auditRepo, logger)
	if err != nil {
		logger.Fatal("reconcile handler error", zap.Error(err))
	}
	auditHandler, err := audit.NewHandler(auditRepo, logger)
	if err != nil {
		logger.Fatal("audit handler error", zap.Error(err))
	}

	var locker reconcileapp.Locker
	if client := reconcileredis.NewClient(cfg.Redis); client != nil {
		defer client.Close()
		redisLocker, err := reconcileredis.NewLocker(client)
		if err != nil {
			logger.Fatal("redis locker error", zap.Error(err))
		}
		if err := redisLocker.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, sweeps fall back to local runs", zap.Error(err))
		}
		locker = redisLocker
	}
	scheduler := reconcileapp.NewScheduler(reconciler, locker, reconcileapp.SchedulerConfig{
		DailyAt:   cfg.Reconcile.DailyAt,
		OnStartup: cfg.Reconcile.OnStartup,
		LockTTL:   cfg.Reconcile.LockTTL,
		Location:  loc,
	}, reconcileapp.SystemClock{}, logger)
	go scheduler.Start(ctx)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(logging.Middleware(logger))
	catalogHandler.Register(router)
	scheduleHandler.Register(router)
	visitHandler.Register(router)
	summaryHandler.Register(router)
	reconcileHandler.Register(router)
	auditHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("timezone", loc.String()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"librarydesk/internal/config"
	"librarydesk/internal/database"
	"librarydesk/internal/handlers"
	"librarydesk/internal/middleware"
	"librarydesk/internal/observability"
	"librarydesk/internal/payments"
	"librarydesk/internal/pkg/logger"
	"librarydesk/internal/repositories"
	"librarydesk/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		l, _ := logger.New("production")
		l.Fatal("failed to load config", "error", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, log, cfg.Telemetry)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := database.Open(database.Options{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Migrate:         cfg.Database.AutoMigrate,
		Logger:          log,
	})
	if err != nil {
		log.Fatal("failed to connect database", "error", err)
	}

	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	libraryService := services.NewLibraryService(db, bookRepo, loanRepo, log)
	paymentService := services.NewPaymentService(libraryService, log)

	var gateway payments.Gateway
	switch cfg.Gateway.Mode {
	case "http":
		gateway = payments.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	default:
		log.Warn("using in-process sandbox payment gateway")
		gateway = payments.NewSandbox()
	}
	gateway = payments.NewTraced(gateway)

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		middleware.CORS(cfg.CORSOrigins),
		middleware.RequestLogger(log),
	)

	handlers.RegisterRoutes(router, libraryService, paymentService, gateway, log)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.ServerAddr, "gateway", cfg.Gateway.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down server")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}
}

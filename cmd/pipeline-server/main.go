// cmd/pipeline-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-pipeline/internal/applications"
	"loan-pipeline/internal/audit"
	"loan-pipeline/internal/common/config"
	"loan-pipeline/internal/common/database"
	commonhttp "loan-pipeline/internal/common/http"
	"loan-pipeline/internal/common/logger"
	"loan-pipeline/internal/common/observability"
	"loan-pipeline/internal/documents"
	"loan-pipeline/internal/httpapi"
	"loan-pipeline/internal/idempotency"
	"loan-pipeline/internal/lender"
	"loan-pipeline/internal/models"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("address", cfg.Server.Address),
	)

	obs := observability.New("pipeline-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Postgres with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pg.Ping(pingCtx)
	}, 10, 2*time.Second, zapLog, "Postgres initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	// --- Init Redis with retry ---
	var rds *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rds, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rds.Ping(pingCtx)
	}, 10, 2*time.Second, zapLog, "Redis initialization")
	if err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}
	defer rds.Close()

	// --- Wire services ---
	clock := models.RealClock{}
	sink := audit.NewPostgresSink()

	appsRepo := applications.NewPostgresRepository()
	docsRepo := documents.NewPostgresRepository()
	lenderRepo := lender.NewPostgresRepository()

	gateway := lender.NewHTTPGateway(
		commonhttp.NewClient(cfg.Lender.GatewayTimeout()),
		cfg.Lender.BaseURL,
		cfg.Lender.APIKey,
	)

	appsSvc := applications.NewService(pg.GetDB(), appsRepo, sink, clock, log)
	docsSvc := documents.NewService(pg.GetDB(), docsRepo, appsRepo, sink, clock, log)
	lenderSvc := lender.NewService(pg.GetDB(), lenderRepo, appsRepo, docsRepo, gateway, sink, clock, cfg.Lender.GatewayTimeout(), log)

	idemStore := idempotency.NewRedisStore(rds.Client)
	replayTTL := time.Duration(cfg.Lender.ReplayTTL) * time.Second

	api := httpapi.NewServer(appsSvc, docsSvc, lenderSvc, idemStore, replayTTL, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      obs.Middleware(api.Routes()),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zapLog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("shutdown error", zap.Error(err))
	}
	zapLog.Info("Server stopped")
}

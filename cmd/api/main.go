package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-shop-api/internal/application/limit"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/logger"
	"github.com/go-shop-api/internal/infrastructure/memory"
	"github.com/go-shop-api/internal/infrastructure/metrics"
	redisinfra "github.com/go-shop-api/internal/infrastructure/redis"
	s3infra "github.com/go-shop-api/internal/infrastructure/s3"
	"github.com/go-shop-api/internal/infrastructure/smtp"
	"github.com/go-shop-api/internal/infrastructure/sns"
	"github.com/go-shop-api/internal/infrastructure/zarinpal"
	"github.com/go-shop-api/internal/pkg/clientip"
	transporthttp "github.com/go-shop-api/internal/transport/http"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	zlog, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables, zlog.Named("bootstrap"))

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	counters, err := counterStore(ctx, cfg, dynamoClient, zlog)
	if err != nil {
		return err
	}

	ips, err := clientip.New(cfg.TrustedProxies...)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	deps := &transporthttp.Deps{
		Users:    dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		Products: dynamo.NewProductRepo(dynamoClient, cfg.DynamoTables.Products),
		Payments: dynamo.NewPaymentRepo(dynamoClient, cfg.DynamoTables.Payments, cfg.DynamoTables.Users),
		Counters: counters,
		Objects:  s3infra.NewStore(s3infra.NewClient(awsCfg, cfg), cfg.S3BucketName),
		Mailer:   smtp.NewMailer(cfg),
		SMS:      sns.NewSender(awsCfg, cfg),
		Gateway:  zarinpal.NewClient(cfg),
		Tokens:   tokens,
		Metrics:  metrics.New(),
		ClientIP: ips,
		Logger:   zlog,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting",
			zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv), zap.String("counters", cfg.CounterBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	zlog.Info("server stopped")
	return nil
}

// counterStore picks the attempt-counter backend for the guard and for
// verification codes. The memory backend is swept until ctx is done.
func counterStore(ctx context.Context, cfg *config.Config, client *dynamodb.Client, zlog *zap.Logger) (limit.Store, error) {
	switch cfg.CounterBackend {
	case "redis":
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			_ = rdb.Close()
		}()
		return redisinfra.NewStore(rdb, "shop:"), nil
	case "dynamo":
		return dynamo.NewCounterRepo(client, cfg.DynamoTables.Counters), nil
	case "memory", "":
		store := memory.NewStore()
		go store.Run(ctx, time.Minute)
		return store, nil
	default:
		zlog.Warn("unknown counter backend", zap.String("backend", cfg.CounterBackend))
		return nil, fmt.Errorf("unknown COUNTER_BACKEND %q", cfg.CounterBackend)
	}
}

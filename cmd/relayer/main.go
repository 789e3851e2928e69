package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-anchor/internal/config"
	"github.com/noah-isme/gema-anchor/internal/database"
	"github.com/noah-isme/gema-anchor/internal/ledger"
	"github.com/noah-isme/gema-anchor/internal/models"
	"github.com/noah-isme/gema-anchor/internal/observability"
	"github.com/noah-isme/gema-anchor/internal/repository"
	"github.com/noah-isme/gema-anchor/internal/service"
)

// The relayer runs as a one-shot batch job under an external scheduler. A
// pass that finds no work, skips anomalous sessions or leaves lines for the
// next pass still exits zero; only configuration and top-level store errors
// are fatal.
func main() {
	if err := run(); err != nil {
		log.Fatalf("relayer failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", cfg.AppName).Logger()
	ctx := context.Background()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	// The platform owns the rating tables; the relayer owns only its audit trail.
	if err := db.AutoMigrate(&models.AnchorAttempt{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ledgerClient, err := ledger.New(ctx, ledger.Config{
		RPCURL:         cfg.LedgerRPCURL,
		WIF:            cfg.LedgerWIF,
		Contract:       cfg.LedgerContract,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create ledger client: %w", err)
	}

	var events service.EventPublisher
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, anchored events will not be published")
		} else {
			defer conn.Close()
			events = service.NewNATSPublisher(conn, cfg.AnchorSubject, logger)
		}
	}

	var lock *service.PassLock
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		lock = service.NewPassLock(redisClient, cfg.PassLockTTL, logger)
	}

	ratingRepo := repository.NewRatingRepository(db)
	identityRepo := repository.NewIdentityRepository(db, logger)
	anchorService := service.NewAnchorService(ratingRepo, identityRepo, ledgerClient, events, logger)

	if lock != nil {
		held, err := lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire pass lock: %w", err)
		}
		if !held {
			logger.Info().Msg("another pass is running, nothing to do")
			return nil
		}
		defer lock.Release(ctx)
	}

	report, runErr := anchorService.RunPass(ctx)

	// Push whatever the pass counted, aborted or not; a one-shot process has
	// no scrape surface. Best-effort: a missing gateway never fails the pass.
	if cfg.PushgatewayURL != "" {
		if err := observability.PushMetrics(cfg.PushgatewayURL); err != nil {
			logger.Warn().Err(err).Msg("failed to push metrics to gateway")
		}
	}

	if runErr != nil {
		return fmt.Errorf("anchoring pass %s aborted: %w", report.PassID, runErr)
	}

	return nil
}

package main

import (
	"context"
	"fmt"

	"community-platform/config"
	"community-platform/database"
	"community-platform/handlers"
	"community-platform/logging"
	"community-platform/services"
	"community-platform/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the wired dependencies shared by every command
type runtime struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
	svc *handlers.Services
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if !cfg.EnvFileLoaded {
		log.Info("no .env file found, reading environment variables directly")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := newObjectStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, db: db, svc: wireServices(db, store, cfg, log)}, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (utils.ObjectStore, error) {
	if cfg.IsR2Configured() {
		store, err := utils.NewR2Store(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		log.Info("object storage: R2", zap.String("bucket", cfg.Storage.R2Bucket))
		return store, nil
	}
	store, err := utils.NewLocalStore(cfg.Storage.LocalDir, "/uploads")
	if err != nil {
		return nil, err
	}
	log.Warn("R2 not configured, storing uploads on local disk", zap.String("dir", cfg.Storage.LocalDir))
	return store, nil
}

func wireServices(db *gorm.DB, store utils.ObjectStore, cfg *config.Config, log *zap.Logger) *handlers.Services {
	referrals := services.NewReferralResolver(db, log.Named("referrals"))
	ledger := services.NewLedgerService(db, services.WeightsFromConfig(cfg.Points), log.Named("ledger"))
	badges := services.NewBadgeService(db, store, log.Named("badges"))
	board := services.NewLeaderboardService(db, referrals, log.Named("leaderboard"))

	return &handlers.Services{
		Membership:  services.NewMembershipService(db, referrals, ledger, badges, board, log.Named("membership")),
		Ledger:      ledger,
		Leaderboard: board,
		Badges:      badges,
		Voting:      services.NewVotingService(db, ledger, log.Named("voting")),
		Wishes:      services.NewWishService(db, ledger, log.Named("wishes")),
		Diagnostics: services.NewDiagnosticsService(db, ledger, log.Named("diagnostics")),
	}
}

func (r *runtime) close() {
	if err := database.Close(r.db); err != nil {
		r.log.Warn("closing database", zap.Error(err))
	}
	_ = r.log.Sync()
}

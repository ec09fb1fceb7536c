// Package main is the whale role bot entry point.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/whale-role-bot/internal/adapter"
	"github.com/whale-role-bot/internal/api"
	"github.com/whale-role-bot/internal/bot"
	"github.com/whale-role-bot/internal/config"
	"github.com/whale-role-bot/internal/cooldown"
	"github.com/whale-role-bot/internal/logging"
	"github.com/whale-role-bot/internal/retry"
	"github.com/whale-role-bot/internal/service"
	"github.com/whale-role-bot/internal/storage"
	"github.com/whale-role-bot/internal/types"
	"github.com/whale-role-bot/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	logger.WithFields(map[string]interface{}{
		"guildId":     cfg.Discord.GuildID,
		"whaleRoleId": cfg.Discord.WhaleRoleID,
		"cooldown":    cfg.Cooldown.Backend,
		"audit":       cfg.Audit.Enabled,
		"communities": len(cfg.Community.Mappings),
	}).Info("Starting whale role bot")

	// Storage
	if cfg.Database.AutoMigrate {
		path := filepath.Join(cfg.Database.MigrationsPath, "postgres")
		if err := storage.RunMigrations(cfg.Database.Postgres.URL(), path); err != nil {
			logger.WithError(err).Fatal("Failed to run Postgres migrations")
		}
	}

	var postgres *storage.PostgresDB
	err = retry.WithRetry(ctx, "connect postgres", func(ctx context.Context, attempt int) error {
		var err error
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	checks := map[string]api.Pinger{"postgres": postgres}

	var redisCache *storage.RedisCache
	if cfg.Cooldown.Backend == config.CooldownBackendRedis {
		err = retry.WithRetry(ctx, "connect redis", func(ctx context.Context, attempt int) error {
			var err error
			redisCache, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
			return err
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() { _ = redisCache.Close() }()
		checks["redis"] = redisCache
	}

	// Left nil when auditing is off so the reconcilers skip it
	var events service.RoleEventSink
	if cfg.Audit.Enabled {
		var clickhouse *storage.ClickHouseDB
		err = retry.WithRetry(ctx, "connect clickhouse", func(ctx context.Context, attempt int) error {
			var err error
			clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
			return err
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer func() { _ = clickhouse.Close() }()

		if cfg.Database.AutoMigrate {
			path := filepath.Join(cfg.Database.MigrationsPath, "clickhouse")
			if err := storage.RunClickHouseMigrations(ctx, clickhouse, path); err != nil {
				logger.WithError(err).Fatal("Failed to run ClickHouse migrations")
			}
		}

		events = storage.NewRoleEventRepository(clickhouse)
		checks["clickhouse"] = clickhouse
	}

	verifications := storage.NewVerificationRepository(postgres)
	leaderboard := storage.NewLeaderboardRepository(postgres)
	whales := storage.NewWhaleRepository(postgres)
	communities := storage.NewCommunityRepository(postgres)

	mappings := make([]service.CommunityMapping, 0, len(cfg.Community.Mappings))
	for _, m := range cfg.Community.Mappings {
		if err := communities.EnsureCollection(ctx, m.Collection); err != nil {
			logger.WithError(err).WithField("collection", m.Collection).Fatal("Failed to prepare community collection")
		}
		mappings = append(mappings, service.CommunityMapping{Collection: m.Collection, RoleID: m.RoleID})
	}

	// Discord and reconcilers
	session, err := bot.NewSession(cfg.Discord.Token)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Discord session")
	}

	gateway := adapter.NewDiscordGateway(session, cfg.Discord.GuildID, cfg.Discord.RequestsPerSecond)
	source := adapter.NewLeaderboardClient(&cfg.Leaderboard)
	checks["leaderboard"] = source

	roles := service.NewRoleReconciler(verifications, gateway, source, leaderboard, whales, events, service.RoleReconcilerConfig{
		WhaleRoleID:         cfg.Discord.WhaleRoleID,
		LeaderboardLimit:    cfg.Leaderboard.Limit,
		BatchSize:           types.DefaultBatchSize,
		RevokeOrphanedRoles: cfg.Reconcile.RevokeOrphanedRoles,
	})
	community := service.NewCommunityReconciler(verifications, gateway, communities, events, mappings, types.DefaultBatchSize)

	leaderboardGate, communityGate := newCooldownGates(cfg, redisCache)
	commands := bot.NewCommandHandler(roles, community, leaderboardGate, communityGate, bot.NewDiscordResponder(session))

	// Scheduler, started once Discord reports ready
	scheduler := worker.NewScheduler(cfg.Reconcile.CycleTimeout)
	var communityJobs worker.CommunityCycles
	if len(mappings) > 0 {
		communityJobs = community
	}
	for _, job := range worker.ReconcileJobs(cfg.Schedule, roles, communityJobs) {
		if err := scheduler.Register(job); err != nil {
			logger.WithError(err).Fatal("Failed to schedule job")
		}
	}

	discordBot := bot.NewBot(session, cfg.Discord.GuildID, commands, roles, func(ctx context.Context) {
		if err := scheduler.Start(ctx); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Scheduler not started")
		}
	})
	if err := discordBot.Open(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Discord")
	}

	// Health server
	serverConfig := api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(serverConfig, checks)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("HTTP server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout+cfg.Reconcile.CycleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	if err := discordBot.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close Discord session")
	}

	logger.Info("Whale role bot exited")
}

// newCooldownGates builds the leaderboard and community command gates
func newCooldownGates(cfg *config.Config, redisCache *storage.RedisCache) (cooldown.Gate, cooldown.Gate) {
	if cfg.Cooldown.Backend == config.CooldownBackendRedis && redisCache != nil {
		return cooldown.NewRedisGate(redisCache.Client(), "leaderboard", cfg.Cooldown.LeaderboardWindow),
			cooldown.NewRedisGate(redisCache.Client(), "community", cfg.Cooldown.CommunityWindow)
	}

	return cooldown.NewMemoryGate(cfg.Cooldown.LeaderboardWindow), cooldown.NewMemoryGate(cfg.Cooldown.CommunityWindow)
}

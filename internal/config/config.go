// Package config provides configuration management for the whale role bot.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Discord     DiscordConfig
	Leaderboard LeaderboardConfig
	Community   CommunityConfig
	Cooldown    CooldownConfig
	Schedule    ScheduleConfig
	Reconcile   ReconcileConfig
	Audit       AuditConfig
	Logging     LoggingConfig
}

// ServerConfig holds health server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	// AutoMigrate applies pending migrations from MigrationsPath on startup
	AutoMigrate    bool
	MigrationsPath string
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL shared by the pool and the migration tool.
// Credentials are escaped.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// DiscordConfig holds the bot credentials and the guild it manages
type DiscordConfig struct {
	Token       string
	GuildID     string
	WhaleRoleID string
	// RequestsPerSecond throttles role mutations and member fetches
	RequestsPerSecond float64
}

// LeaderboardConfig holds the remote leaderboard API configuration
type LeaderboardConfig struct {
	Endpoint          string
	Limit             int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// CommunityMapping binds a static address collection to a Discord role
type CommunityMapping struct {
	Collection string
	RoleID     string
}

// CommunityConfig holds the community role mappings
type CommunityConfig struct {
	Mappings []CommunityMapping
}

// Cooldown backends
const (
	CooldownBackendMemory = "memory"
	CooldownBackendRedis  = "redis"
)

// CooldownConfig holds per-command cooldown windows
type CooldownConfig struct {
	Backend           string
	LeaderboardWindow time.Duration
	CommunityWindow   time.Duration
}

// ScheduleConfig holds cron specs for the periodic jobs. An empty spec disables the job.
type ScheduleConfig struct {
	AssignSpec    string
	RefreshSpec   string
	SyncSpec      string
	CommunitySpec string
}

// ReconcileConfig holds reconciliation policy
type ReconcileConfig struct {
	CycleTimeout        time.Duration
	RevokeOrphanedRoles bool
}

// AuditConfig controls the ClickHouse role event trail
type AuditConfig struct {
	Enabled bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	mappings, err := parseCommunityMappings(getEnv("COMMUNITY_ROLE_MAPPINGS", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "4000"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_verification"),
				User:           getEnv("POSTGRES_USER", "whalebot"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "whale_bot"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
			AutoMigrate:    getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "migrations"),
		},
		Discord: DiscordConfig{
			Token:             getEnv("DISCORD_TOKEN", ""),
			GuildID:           getEnv("GUILD_ID", ""),
			WhaleRoleID:       getEnv("WHALE_ROLE_ID", ""),
			RequestsPerSecond: getEnvAsFloat("DISCORD_REQUESTS_PER_SECOND", 5),
		},
		Leaderboard: LeaderboardConfig{
			Endpoint:          getEnv("LEADERBOARD_ENDPOINT", "https://testnet-api-server.nad.fun/reward/top"),
			Limit:             getEnvAsInt("LEADERBOARD_LIMIT", 30),
			Timeout:           getEnvAsDuration("LEADERBOARD_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("LEADERBOARD_REQUESTS_PER_SECOND", 1),
		},
		Community: CommunityConfig{
			Mappings: mappings,
		},
		Cooldown: CooldownConfig{
			Backend:           getEnv("COOLDOWN_BACKEND", CooldownBackendMemory),
			LeaderboardWindow: getEnvAsDuration("COOLDOWN_LEADERBOARD_WINDOW", 5*time.Minute),
			CommunityWindow:   getEnvAsDuration("COOLDOWN_COMMUNITY_WINDOW", 5*time.Minute),
		},
		Schedule: ScheduleConfig{
			AssignSpec:    getEnv("SCHEDULE_ASSIGN", "@every 5m"),
			RefreshSpec:   getEnv("SCHEDULE_REFRESH", "@every 10m"),
			SyncSpec:      getEnv("SCHEDULE_SYNC", "@every 10m"),
			CommunitySpec: getEnv("SCHEDULE_COMMUNITY", "@every 5m"),
		},
		Reconcile: ReconcileConfig{
			CycleTimeout:        getEnvAsDuration("RECONCILE_CYCLE_TIMEOUT", 5*time.Minute),
			RevokeOrphanedRoles: getEnvAsBool("RECONCILE_REVOKE_ORPHANED_ROLES", false),
		},
		Audit: AuditConfig{
			Enabled: getEnvAsBool("AUDIT_ENABLED", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks the settings the bot cannot start without
func (c *Config) Validate() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "GUILD_ID")
	}
	if c.Discord.WhaleRoleID == "" {
		missing = append(missing, "WHALE_ROLE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Leaderboard.Limit <= 0 {
		return fmt.Errorf("LEADERBOARD_LIMIT must be positive, got %d", c.Leaderboard.Limit)
	}

	switch c.Cooldown.Backend {
	case CooldownBackendMemory, CooldownBackendRedis:
	default:
		return fmt.Errorf("unknown cooldown backend: %s", c.Cooldown.Backend)
	}

	return nil
}

// parseCommunityMappings parses "collection:roleID,collection:roleID"
func parseCommunityMappings(raw string) ([]CommunityMapping, error) {
	var mappings []CommunityMapping
	seen := make(map[string]bool)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid community mapping %q: expected collection:roleID", pair)
		}

		collection := strings.TrimSpace(parts[0])
		roleID := strings.TrimSpace(parts[1])
		if collection == "" || roleID == "" {
			return nil, fmt.Errorf("invalid community mapping %q: empty collection or role", pair)
		}
		if seen[collection] {
			return nil, fmt.Errorf("duplicate community mapping for collection %q", collection)
		}
		seen[collection] = true

		mappings = append(mappings, CommunityMapping{Collection: collection, RoleID: roleID})
	}

	return mappings, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is read once at startup. Nothing re-reads the environment later.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Realtime RealtimeConfig
	Logging  LoggingConfig

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8090"`
}

type DatabaseConfig struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"3306"`
	Username     string `envconfig:"DB_USER" default:"huddle"`
	Password     string `envconfig:"DB_PASSWORD" default:""`
	DatabaseName string `envconfig:"DB_NAME" default:"huddle"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

// RealtimeConfig bounds the connection pool and the idle sweep. The device
// command timeout is deliberately absent: it is a fixed contract, not tuning.
type RealtimeConfig struct {
	MaxConnections    int           `envconfig:"REALTIME_MAX_CONNECTIONS" default:"10000"`
	ConnectionTimeout time.Duration `envconfig:"REALTIME_CONNECTION_TIMEOUT" default:"5m"`
	SweepInterval     time.Duration `envconfig:"REALTIME_SWEEP_INTERVAL" default:"30s"`
	SendBufferSize    int           `envconfig:"REALTIME_SEND_BUFFER" default:"256"`

	// Whether platform moderators bypass a session-wide mute-all the way
	// session admins do. Left to deployment policy.
	ModeratorBypassMuteAll bool `envconfig:"REALTIME_MODERATOR_BYPASS_MUTE_ALL" default:"false"`
}

type LoggingConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or console
}

// Load parses the environment, reading a .env file first if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}

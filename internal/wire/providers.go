package wire

import (
	"os"
	"strings"

	"huddle/internal/chat/repository"
	"huddle/internal/chat/service"
	"huddle/internal/common"
	"huddle/internal/config"
	"huddle/internal/device"
	"huddle/internal/gateway"
	"huddle/internal/registry"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Application holds everything main needs to run and shut down.
type Application struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *gorm.DB
	Registry  *registry.Registry
	Pool      *device.Pool
	Commander *device.Commander
	Gateway   *gateway.Gateway
}

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Logging.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func ProvideAuthenticator(cfg *config.Config) common.Authenticator {
	return common.NewJWTAuthenticator(cfg.JWTSecret)
}

func ProvidePool(cfg *config.Config, log zerolog.Logger) *device.Pool {
	return device.NewPool(
		cfg.Realtime.MaxConnections,
		cfg.Realtime.ConnectionTimeout,
		cfg.Realtime.SweepInterval,
		log,
	)
}

func ProvideSessionService(
	sessions repository.SessionRepository,
	memberships repository.MembershipRepository,
	publisher service.Publisher,
	log zerolog.Logger,
) service.SessionService {
	return service.NewSessionService(sessions, memberships, publisher, log)
}

func ProvideMessageService(
	cfg *config.Config,
	sessions repository.SessionRepository,
	memberships repository.MembershipRepository,
	messages repository.MessageRepository,
	reactions repository.ReactionRepository,
	publisher service.Publisher,
	log zerolog.Logger,
) service.MessageService {
	return service.NewMessageService(
		sessions, memberships, messages, reactions,
		publisher, cfg.Realtime.ModeratorBypassMuteAll, log,
	)
}

func ProvideGateway(
	cfg *config.Config,
	reg *registry.Registry,
	pool *device.Pool,
	commander *device.Commander,
	sessions service.SessionService,
	messages service.MessageService,
	auth common.Authenticator,
	log zerolog.Logger,
) *gateway.Gateway {
	return gateway.New(reg, pool, commander, sessions, messages, auth, cfg.Realtime.SendBufferSize, log)
}

//go:build wireinject
// +build wireinject

package wire

import (
	"huddle/internal/chat/repository"
	"huddle/internal/chat/service"
	"huddle/internal/config"
	"huddle/internal/dbmysql"
	"huddle/internal/device"
	"huddle/internal/gateway"
	"huddle/internal/registry"

	"github.com/google/wire"
)

func InitializeApplication() (*Application, error) {
	wire.Build(
		config.Load,
		ProvideLogger,
		ProvideAuthenticator,
		dbmysql.NewMySQL,
		repository.NewSessionRepository,
		repository.NewMembershipRepository,
		repository.NewMessageRepository,
		repository.NewReactionRepository,
		registry.New,
		wire.Bind(new(service.Publisher), new(*registry.Registry)),
		ProvidePool,
		device.NewCommander,
		ProvideSessionService,
		ProvideMessageService,
		ProvideGateway,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}

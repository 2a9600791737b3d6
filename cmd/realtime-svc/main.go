package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"huddle/internal/wire"

	"github.com/gofiber/fiber/v2"
)

func main() {
	app, err := wire.InitializeApplication()
	if err != nil {
		// No logger yet if config failed; stderr is all we have.
		os.Stderr.WriteString("failed to initialize: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := app.Logger
	log.Info().Str("addr", app.Config.Addr()).Msg("starting realtime service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background loops: idle-connection sweep and pending-command eviction.
	go func() {
		if err := app.Pool.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("pool sweep stopped")
		}
	}()
	go func() {
		if err := app.Commander.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("commander stopped")
		}
	}()

	srv := fiber.New(fiber.Config{
		AppName:               "huddle-realtime",
		DisableStartupMessage: true,
	})
	app.Gateway.Routes(srv)

	go func() {
		if err := srv.Listen(app.Config.Addr()); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down realtime service")
	cancel()
	if err := srv.Shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("realtime service stopped")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lmswatch/internal/bot"
	"lmswatch/internal/core"
	"lmswatch/internal/events"
	"lmswatch/internal/poller"
	"lmswatch/internal/portal"
	"lmswatch/internal/server"
	"lmswatch/internal/store"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	logger := core.NewLogger()

	config, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(config, logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(config *core.Config, logger *core.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	box, err := store.LoadOrCreateKey(config.Database.KeyPath)
	if err != nil {
		return err
	}

	subscribers, err := store.Open(config.Database.Path, box, logger.ForComponent("store"))
	if err != nil {
		return err
	}
	defer subscribers.Close()

	source := portal.New(config.Portal.BaseURL, config.Portal.FetchTimeout,
		logger.ForComponent("portal"))
	detector := events.NewDetector()

	p := poller.New(source, subscribers, nil, detector,
		logger.ForComponent("poller"), poller.Config{
			InitialDelay:    config.Poll.InitialDelay,
			Interval:        config.Poll.Interval,
			FetchTimeout:    config.Portal.FetchTimeout,
			MaxConcurrent:   config.Poll.MaxConcurrent,
			ViewWindowWeeks: config.Poll.ViewWindowWeeks,
		})

	discord, err := bot.New(bot.Config{
		Token:         config.Discord.Token,
		OwnerID:       config.Discord.OwnerID,
		CommandPrefix: config.Discord.CommandPrefix,
	}, subscribers, p, detector, logger.ForComponent("bot"))
	if err != nil {
		return err
	}
	p.SetNotifier(discord)

	if err := discord.Start(); err != nil {
		return err
	}
	defer discord.Stop()

	ops := server.New(config.Server.Addr, subscribers, p, logger.ForComponent("server"))
	ops.Start()

	p.Start(ctx)

	logger.Info("lmswatch is running", "poll_interval", config.Poll.Interval)
	<-ctx.Done()
	logger.Info("Shutting down")

	p.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Stop(shutdownCtx); err != nil {
		logger.Error("Ops server shutdown failed", "error", err)
	}

	return nil
}

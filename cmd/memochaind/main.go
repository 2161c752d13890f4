package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"memochain/internal/config"
	"memochain/internal/infra/logging"
)

func main() {
	cfg := config.FromEnv()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("memochaind exited")
	}
}

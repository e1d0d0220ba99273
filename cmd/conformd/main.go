package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"conform/internal/config"
	"conform/internal/daemon"
	"conform/internal/deps"
	"conform/internal/logging"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Printf("load config: %v", err)
		return err
	}
	if err := deps.Verify(cfg); err != nil {
		log.Printf("check dependencies: %v", err)
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Printf("init logger: %v", err)
		return err
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return err
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon run", logging.Error(err))
		return err
	}
	return nil
}

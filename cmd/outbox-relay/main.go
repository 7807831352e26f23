package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arklim/tenant-access/internal/infra/app"
	"github.com/arklim/tenant-access/internal/infra/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("outbox relay: load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relay, err := app.NewRelay(ctx, cfg)
	if err != nil {
		log.Fatalf("outbox relay: init: %v", err)
	}

	if err := relay.Run(ctx); err != nil {
		log.Printf("outbox relay stopped: %v", err)
		os.Exit(1)
	}
}

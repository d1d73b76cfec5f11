package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/susu3304/zaisekibot/internal/api"
	"github.com/susu3304/zaisekibot/internal/bot"
	"github.com/susu3304/zaisekibot/internal/config"
	"github.com/susu3304/zaisekibot/internal/store"
	"github.com/susu3304/zaisekibot/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open the datastore: Postgres when configured, JSON files otherwise
	var st store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.NewPgStore(context.Background(), cfg.DatabaseURL)
	} else {
		st, err = store.NewFileStore(cfg.DataDir)
	}
	if err != nil {
		log.Fatalf("Failed to open datastore: %v", err)
	}
	defer st.Close()

	// Restore presence state
	trk := tracker.New(st, cfg.HistoryLimit)
	if err := trk.LoadState(context.Background()); err != nil {
		log.Fatalf("Failed to load presence state: %v", err)
	}

	// Initialize Discord bot (owns the stay keeper)
	discordBot, err := bot.New(cfg, trk, st)
	if err != nil {
		log.Fatalf("Failed to create discord bot: %v", err)
	}

	// Initialize API server
	apiServer := api.New(cfg, trk)

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		log.Fatalf("Failed to start discord bot: %v", err)
	}
	defer discordBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")

	// Best-effort final flush; in-memory state stays authoritative until exit
	if err := trk.Flush(context.Background()); err != nil {
		log.Printf("Failed to flush presence state: %v", err)
	}
	if err := discordBot.Keeper().Flush(context.Background()); err != nil {
		log.Printf("Failed to flush stay map: %v", err)
	}
}

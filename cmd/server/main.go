package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	speech "cloud.google.com/go/speech/apiv1"

	fieldvoice "github.com/agnivade/fieldvoice"
	"github.com/agnivade/fieldvoice/chatbot"
	"github.com/agnivade/fieldvoice/config"
	"github.com/agnivade/fieldvoice/providers"
	"github.com/agnivade/fieldvoice/providers/deepgram"
	"github.com/agnivade/fieldvoice/providers/google"
	"github.com/agnivade/fieldvoice/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer st.Close()

	dg := deepgram.NewProvider(cfg.DeepgramAPIKey, deepgram.WithModel(cfg.STTModel))

	liveProviders := []providers.Provider{dg}
	if cfg.GoogleSpeech {
		ctx := context.Background()
		speechClient, err := speech.NewClient(ctx)
		if err != nil {
			log.Fatalf("Failed to create Google speech client: %v", err)
		}
		defer speechClient.Close()
		liveProviders = append(liveProviders, google.NewProvider(speechClient))
	}

	s := fieldvoice.New(fieldvoice.ServerConfig{
		Addr:              cfg.Addr,
		TelegramToken:     cfg.TelegramBotToken,
		STTModel:          cfg.STTModel,
		TranscribeTimeout: cfg.TranscribeTimeout,
	}, st, dg, nil, liveProviders...)

	// The chat adapter shares the lifecycle manager with the HTTP
	// surface so both see the same session state.
	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	sender := chatbot.NewClient(cfg.TelegramBotToken)
	bot := chatbot.New(s.Manager(), st, sender, logger)
	s.SetDispatcher(bot)

	go func() {
		if err := s.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := s.Stop(); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
}

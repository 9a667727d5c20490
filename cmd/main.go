package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lessonloop/chat-service/internal/archive"
	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/internal/handler"
	"github.com/lessonloop/chat-service/internal/hub"
	"github.com/lessonloop/chat-service/internal/registry"
	"github.com/lessonloop/chat-service/internal/service"
	"github.com/lessonloop/chat-service/internal/store"
	"github.com/lessonloop/chat-service/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat coordination server")

	// Durable store client. The server tolerates the store being down
	// at startup and during operation; only a malformed URL is fatal.
	var durable store.DurableStore
	if cfg.Store.NATSURL == "" {
		l.Warn().Msg("durable store not configured, running relay-only")
		durable = store.NewDisabled()
	} else {
		natsStore, err := store.NewNATSStore(cfg.Store.NATSURL, cfg.Store.SubjectPrefix)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to initialize durable store client")
		}
		durable = natsStore
		l.Info().Str("url", cfg.Store.NATSURL).Msg("durable store client ready")
	}

	// Presence mirror, best-effort.
	var mirror registry.PresenceMirror
	if cfg.Redis.Address == "" {
		mirror = registry.NewDisabled()
	} else {
		redisMirror, err := registry.NewRedisMirror(cfg.Redis)
		if err != nil {
			l.Warn().Err(err).Msg("presence mirror unavailable, continuing without it")
			mirror = registry.NewDisabled()
		} else {
			mirror = redisMirror
			l.Info().Str("address", cfg.Redis.Address).Msg("presence mirror connected")
		}
	}

	// Archive feed, best-effort.
	var producer archive.MessageProducer
	if cfg.Kafka.Brokers == "" {
		producer = archive.NewNoop()
	} else {
		confluent, err := archive.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			l.Warn().Err(err).Msg("archive feed unavailable, continuing without it")
			producer = archive.NewNoop()
		} else {
			producer = confluent
			l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("archive feed connected")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := hub.New(cfg.Lifecycle)
	chatSvc := service.NewChatService(wsHub, durable, producer, mirror, cfg.Store.RequestTimeout)
	wsHub.SetDepartureHook(chatSvc.HandleDeparture)

	go wsHub.Run(ctx)
	mirror.StartHeartbeat(ctx)
	defer chatSvc.Stop()

	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)
	healthHandler := handler.NewHealthHandler(wsHub)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)
	healthHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("address", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Gena/ai"
	"Gena/bot"
	"Gena/chat"
	"Gena/core"
	"Gena/lib/sl"
	"Gena/server"
	"Gena/session"
	"Gena/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.Gemini.Model),
		sl.Secret(conf.Gemini.ApiKey),
	).Info("starting bank chatbot backend")

	// Initialize storage based on config
	var store storage.ConversationStorage
	if conf.Mongo.Enabled {
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Mongo.User, conf.Mongo.Password,
			conf.Mongo.Host, conf.Mongo.Port)
		var err error
		store, err = storage.NewMongoStorage(mongoURI, conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("user", conf.Mongo.User),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			store = storage.NewMemoryStorage()
		} else {
			log.Info("using MongoDB storage")
		}
	} else {
		store = storage.NewMemoryStorage()
		log.Info("using in-memory storage")
	}

	gemini := ai.NewGemini(conf, log)

	// Resolve the cached grounding context up front. A bad document is a
	// configuration error and stops the process; a remote failure is
	// retried on the first message.
	resolveCtx, cancelResolve := context.WithTimeout(context.Background(), 2*time.Minute)
	if _, err := gemini.Resolve(resolveCtx); err != nil {
		if ai.IsRemote(err) {
			log.Warn("context cache not resolved at startup", sl.Err(err))
		} else {
			log.Error("initializing context cache", sl.Err(err))
			cancelResolve()
			os.Exit(1)
		}
	}
	cancelResolve()

	sessions := session.NewManager(conf, log, gemini)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sessions.Run(sweepCtx)

	chatService := chat.NewService(conf, log, store, gemini, sessions)
	httpServer := server.New(conf, log, chatService, sessions, gemini, store)

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf, log)
		if err != nil {
			log.Error("creating telegram bot", sl.Err(err))
		} else {
			tgBot.SetChat(chatService)
			go func() {
				if err := tgBot.Start(); err != nil {
					log.Error("telegram bot stopped with error", sl.Err(err))
				}
			}()
			log.Info("telegram channel started")
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error("http server stopped with error", sl.Err(err))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	// Graceful shutdown
	stopSweep()
	if tgBot != nil {
		tgBot.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutting down http server", sl.Err(err))
	}

	if err := store.Close(); err != nil {
		log.Error("closing storage", sl.Err(err))
	}

	log.Info("shutdown complete")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

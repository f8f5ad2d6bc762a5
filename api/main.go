package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"inidars/api/internal/handlers"
	"inidars/internal/alert"
	"inidars/internal/engine"
	"inidars/internal/metrics"
	"inidars/internal/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		listenAddr = flag.String("listen", "", "API listen address (overrides application.listen_addr)")
		showVer    = flag.Bool("version", false, "Print version and exit")
		testTG     = flag.Bool("test-telegram", false, "Send a Telegram test message and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.Print("inidars"))
		return
	}

	config, fromFile, err := utils.LoadConfigOrDefault(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		config.Application.ListenAddr = *listenAddr
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)
	if fromFile {
		logger.Infof("Loaded configuration from %s", *configFile)
	} else {
		logger.Warnf("Config file %s not found, using defaults", *configFile)
	}
	if *testTG {
		testTelegram(config, logger)
		return
	}

	logger.Infof("Starting INIDARS %s", version.Info())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, config, logger)
	if err != nil {
		logger.Fatalf("Failed to initialise engine: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	router := mux.NewRouter()
	router.Use(corsMiddleware(config.Application.AllowedOrigin))
	handlers.NewHandlers(eng, logger).Register(router)
	router.Handle("/metrics", metrics.Handler(eng.Registry)).Methods("GET")
	router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	srv := &http.Server{
		Addr:              config.Application.ListenAddr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(config.Application.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.Infof("API server listening on %s", config.Application.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("Server failed: %v", err)
		stop()
	}

	wg.Wait()
	if err := eng.Close(); err != nil {
		logger.Errorf("Error closing engine: %v", err)
	}
	logger.Info("INIDARS stopped")
}

func testTelegram(config *utils.Config, logger *logrus.Logger) {
	tg := config.Alerting.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		logger.Error("Telegram bot_token and chat_id must be configured")
		return
	}

	tn := alert.NewTelegramNotifier(alert.TelegramConfig{
		BotToken:  tg.BotToken,
		ChatID:    tg.ChatID,
		ParseMode: tg.ParseMode,
	}, logger)

	logger.Info("Sending test message to Telegram...")
	if err := tn.SendTestMessage(); err != nil {
		logger.Errorf("Failed to send test message: %v", err)
		return
	}
	logger.Info("Test message sent to Telegram")
}

func corsMiddleware(allowedOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Actor")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if allowedOrigin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

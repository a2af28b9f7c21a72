package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/config"
	"solroll-backend/internal/handlers"
	"solroll-backend/internal/logger"
	"solroll-backend/internal/services"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.LogFile, cfg.LogLevel, cfg.IsProduction())
	if envErr != nil {
		log.Info("No .env file found, using environment variables")
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerService := services.NewLedgerService(redisService, cfg, log)
	if err := ledgerService.InitializePool(ctx); err != nil {
		log.Fatalf("Failed to initialize pool: %v", err)
	}
	log.WithFields(logrus.Fields{
		"program": ledgerService.ProgramID().String(),
		"pool":    ledgerService.Pool().String(),
		"mint":    ledgerService.Mint().String(),
	}).Info("Pool ready")

	jwtService := services.NewJWTService(cfg)
	wsHandler := handlers.NewWebSocketHandler(ledgerService, log)
	ledgerService.SetBroadcaster(wsHandler)

	producer := services.NewSlotProducer(redisService, cfg.SlotInterval, cfg.SlotSecret, log)
	producer.SetBroadcaster(wsHandler)
	go producer.Run(ctx)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reaped, err := ledgerService.ReapExpiredBets(ctx)
				if err != nil {
					log.WithError(err).Warn("Failed to reap expired bets")
					continue
				}
				if reaped > 0 {
					log.WithField("count", reaped).Info("Refunded expired bets")
				}
			}
		}
	}()

	router := handlers.NewRouter(cfg, redisService, ledgerService, jwtService, wsHandler, log)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown failed")
		}
	}()

	log.Infof("Server starting on port %s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

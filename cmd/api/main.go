package main

import (
	"context"
	"log"

	"agentpost/internal/archive"
	"agentpost/internal/config"
	appcrypto "agentpost/internal/crypto"
	"agentpost/internal/handler"
	"agentpost/internal/notify"
	"agentpost/internal/payment"
	"agentpost/internal/ratelimit"
	"agentpost/internal/server"
	"agentpost/internal/services"
	"agentpost/internal/store"
	"agentpost/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.Server.Environment)
	defer l.Sync()
	logger.SetGlobalLogger(l)

	recordStore := store.NewRedisStore(store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	policy := payment.Policy{
		Scheme:    cfg.Payment.Scheme,
		Network:   cfg.Payment.Network,
		Asset:     cfg.Payment.Asset,
		MinAmount: cfg.Payment.MinAmount,
	}
	relay := payment.NewRelayClient(payment.RelayConfig{
		URL:                 cfg.Payment.RelayURL,
		Timeout:             cfg.Payment.SettleTimeout,
		MaxSettlesPerSecond: cfg.Payment.MaxSettlesPerSecond,
	})
	indexer := payment.NewHTTPIndexer(cfg.Payment.IndexerURL, cfg.Payment.SettleTimeout)
	liveVerifier := payment.NewLiveVerifier(policy, relay, l)
	recoveryVerifier := payment.NewRecoveryVerifier(policy, indexer)

	hub := notify.NewHub(l)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var archiver services.ProofArchiver
	if cfg.Archive.Bucket != "" {
		s3Archiver, err := archive.NewS3Archiver(context.Background(), cfg.Archive, l)
		if err != nil {
			l.Errorf("Proof archive disabled: %v", err)
		} else {
			archiver = s3Archiver
		}
	}

	verifier := appcrypto.Secp256k1Verifier{}
	inboxService := services.NewInboxService(recordStore, l)
	deliveryService := services.NewDeliveryService(
		recordStore,
		liveVerifier,
		recoveryVerifier,
		inboxService,
		hub,
		archiver,
		policy,
		services.DeliveryConfig{
			SettleTimeout:   cfg.Payment.SettleTimeout,
			RequirementsTTL: cfg.Payment.RequirementsTTL,
			RedemptionTTL:   cfg.Payment.RedemptionTTL,
			MaxContentLen:   cfg.Payment.MaxContentLength,
		},
		l,
	)
	messageService := services.NewMessageService(recordStore, inboxService, verifier, cfg.Payment.MaxContentLength, l)
	agentService := services.NewAgentService(recordStore)
	adminService := services.NewAdminService(recordStore, inboxService, cfg.Admin.JWTSecret, cfg.Admin.PasswordHash, cfg.Admin.TokenTTL, l)
	limiter := ratelimit.NewLimiter(recordStore, ratelimit.Config{
		Window:            cfg.RateLimit.Window,
		RegisteredLimit:   cfg.RateLimit.RegisteredLimit,
		UnregisteredLimit: cfg.RateLimit.UnregisteredLimit,
		FailedLimit:       cfg.RateLimit.FailedLimit,
	})

	handlers := &server.Handlers{
		Messages: handler.NewMessageHandler(deliveryService, messageService, inboxService),
		Agents:   handler.NewAgentHandler(agentService),
		Admin:    handler.NewAdminHandler(adminService),
		Stream:   handler.NewStreamHandler(hub, agentService, verifier, l),
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, adminService, limiter, recordStore)

	if err := srv.Start(); err != nil {
		l.Errorf("Server exited with error: %v", err)
	}
}

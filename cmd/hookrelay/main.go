package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/digkill/HookRelay/internal/admin"
	"github.com/digkill/HookRelay/internal/api"
	"github.com/digkill/HookRelay/internal/config"
	"github.com/digkill/HookRelay/internal/database"
	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/repository"
	"github.com/digkill/HookRelay/internal/service"
	"github.com/digkill/HookRelay/internal/session"
	"github.com/digkill/HookRelay/internal/storage"
	"github.com/digkill/HookRelay/internal/telegram"
	"github.com/digkill/HookRelay/internal/throttle"
	"github.com/digkill/HookRelay/internal/token"
	"github.com/digkill/HookRelay/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	var store docstore.Store
	switch cfg.DocstoreBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		store = docstore.NewRedisStore(rdb, "hookrelay", "authKey", "accessId", "accountStatus")
	default:
		store = docstore.NewMySQLStore(db)
	}
	logr.Info("profile store ready", "backend", cfg.DocstoreBackend, "collection", cfg.ProfilesCollection)

	deps := session.Dependencies{
		Store:      store,
		Tokens:     token.NewGenerator(store, cfg.ProfilesCollection, cfg.TokenMaxAttempts, logr),
		Collection: cfg.ProfilesCollection,
		Guard: throttle.NewGuard(store, cfg.ProfilesCollection, throttle.Policy{
			Window:      cfg.ThrottleWindow,
			MaxAttempts: cfg.ThrottleMaxAttempts,
		}, logr),
		SignupBonus: cfg.SignupBonusPoints,
	}
	builder := session.NewBuilder(repository.NewAccountRepository(db), deps, logr)
	sessions := session.NewRegistry(cfg.SessionTTL)

	issuer, err := api.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	planService := service.NewPlanService(cfg.PaymentCurrency, repository.NewPlanRepository(db))
	if err := planService.EnsureDefaultPlans(ctx); err != nil {
		log.Fatalf("ensure default plans: %v", err)
	}

	var receipts service.ReceiptArchiver
	if cfg.ReceiptsEnabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		receipts = uploader
	}

	paymentService := service.NewPaymentService(service.PaymentConfig{
		Provider:    cfg.PaymentProvider,
		KeyID:       cfg.PaymentKeyID,
		ProductName: "HookRelay",
	}, repository.NewPaymentRepository(db), planService, receipts, logr)
	usageService := service.NewUsageService(repository.NewUsageRepository(db))
	profileService := service.NewProfileService(store, cfg.ProfilesCollection, logr)

	apiServer := api.NewServer(api.Options{
		Addr:       cfg.APIListenAddr,
		WebhookURL: cfg.WebhookEndpointURL,
	}, logr, builder, sessions, issuer, planService, paymentService, usageService)

	var botAPI *tgbotapi.BotAPI
	if cfg.BotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
	}

	var adminBot admin.Sender
	if botAPI != nil {
		adminBot = botAPI
	}
	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, planService, profileService, adminBot)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error(name+" stopped", "err", err)
				stop()
			}
		}()
	}

	run("api server", apiServer.Run)
	run("admin server", adminServer.Run)
	if botAPI != nil {
		bot := telegram.NewBot(botAPI, logr, profileService)
		run("bot", bot.Run)
	} else {
		logr.Info("telegram bot disabled, TELEGRAM_BOT_TOKEN is empty")
	}
	go apiServer.SweepSessions(ctx, time.Minute)

	<-ctx.Done()
	wg.Wait()
}

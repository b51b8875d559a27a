package di

import (
	"context"
	"fmt"
	"strings"

	"fightzone/backend/internal/access"
	"fightzone/backend/internal/repository"
	"fightzone/backend/internal/service"
	"fightzone/backend/internal/stripe"
	"fightzone/backend/internal/ws"
	"fightzone/backend/pkg/cache"
	"fightzone/backend/pkg/config"
	"fightzone/backend/pkg/jwt"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/pkg/secrets"
	sharedRedis "fightzone/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB             *gorm.DB
	Logger         *logger.Logger
	Config         *config.Config
	Secrets        secrets.Provider
	Redis          *sharedRedis.Client
	JWTService     *jwt.Service
	UserService    *service.UserService
	MessageService *service.MessageService
	AccessStore    access.Store
	AccessCache    *cache.Cache
	StripeClient   stripe.API
	Relay          *stripe.Relay
	Hub            *ws.Hub

	// StripeWebhookSecret verifies incoming webhook signatures; resolved
	// through the secrets provider like the other credentials
	StripeWebhookSecret string
}

// New creates a new dependency injection container
func New(db *gorm.DB, log *logger.Logger) (*Container, error) {
	cfg := config.Get()
	if log == nil {
		log = logger.GetGlobal()
	}

	// Secrets come from Vault when enabled, with env fallback
	vault, err := secrets.NewVaultManager(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}
	ctx := context.Background()

	jwtSecret := vault.GetSecretWithDefault(ctx, secrets.KeyJWTSecret, cfg.JWT.Secret)
	stripeKey := vault.GetSecretWithDefault(ctx, secrets.KeyStripeSecretKey, cfg.Stripe.SecretKey)
	webhookSecret := vault.GetSecretWithDefault(ctx, secrets.KeyStripeWebhookSecret, cfg.Stripe.WebhookSecret)
	discordSecret := vault.GetSecretWithDefault(ctx, secrets.KeyDiscordClientSecret, cfg.Discord.ClientSecret)

	jwtService := jwt.NewService(jwtSecret, cfg.JWT.Expiry)

	kv := sharedRedis.NewClient()

	var oauth = service.NewDiscordOAuthConfig(
		cfg.Discord.ClientID,
		discordSecret,
		strings.TrimRight(cfg.Server.BaseURL, "/")+cfg.Discord.RedirectPath,
	)
	if cfg.Discord.ClientID == "" {
		oauth = nil
	}

	userService := service.NewUserService(db, jwtService, kv, nil, oauth, log)

	messageRepo := repository.NewGormMessageRepository(db)
	messageService := service.NewMessageService(messageRepo, nil, cfg.Chat.ViewLimit, cfg.Chat.PollBatchLimit, log)

	hub := ws.NewHub(messageService, log)
	messageService.SetBroadcaster(hub)

	accessStore := access.NewRedisStore(kv)
	accessCache := cache.NewCache(cfg.Paywall.AccessCacheTTL, cfg.Paywall.AccessCacheTTL*2, 10000)

	stripeClient := stripe.NewClient(stripeKey, log)
	relay := stripe.NewRelay(stripeClient, accessStore, cfg.Stripe.GraceWindow, log)

	return &Container{
		DB:             db,
		Logger:         log,
		Config:         cfg,
		Secrets:        vault,
		Redis:          kv,
		JWTService:     jwtService,
		UserService:    userService,
		MessageService: messageService,
		AccessStore:    accessStore,
		AccessCache:    accessCache,
		StripeClient:   stripeClient,
		Relay:          relay,
		Hub:            hub,

		StripeWebhookSecret: webhookSecret,
	}, nil
}

package secrets

import (
	"context"
)

// Well-known secret keys used by the application. Each maps to an
// environment variable of the same name in uppercase when Vault is
// disabled or the secret is missing from the Vault path.
const (
	KeyJWTSecret           = "jwt_secret"
	KeyStripeSecretKey     = "stripe_secret_key"
	KeyStripeWebhookSecret = "stripe_webhook_secret"
	KeyDiscordClientSecret = "discord_client_secret"
)

// Provider retrieves named secrets
type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

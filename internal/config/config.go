package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	ProviderName     string        `env:"OIDC_PROVIDER_NAME" envDefault:"oidc"`
	Issuer           string        `env:"OIDC_ISSUER"`
	ClientID         string        `env:"OIDC_CLIENT_ID"`
	ClientSecret     string        `env:"OIDC_CLIENT_SECRET"`
	RedirectURL      string        `env:"OIDC_REDIRECT_URL"`
	Scopes           []string      `env:"OIDC_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	TokenTimeout     time.Duration `env:"OIDC_TIMEOUT" envDefault:"10s"`
	Leeway           time.Duration `env:"OIDC_LEEWAY" envDefault:"120s"`
	JWKSCacheTTL     time.Duration `env:"OIDC_JWKS_CACHE_TTL" envDefault:"1h"`
	JWKSRefreshEvery time.Duration `env:"OIDC_JWKS_MIN_REFRESH_INTERVAL" envDefault:"30s"`

	DefaultSuccessURL string        `env:"DEFAULT_SUCCESS_URL" envDefault:"/"`
	LoginURL          string        `env:"LOGIN_URL" envDefault:"/login/"`
	InvitationExpiry  time.Duration `env:"INVITATION_EXPIRY" envDefault:"336h"`
	AutoAcceptDomains []string      `env:"AUTO_ACCEPT_DOMAINS" envSeparator:","`
	PermissionsFile   string        `env:"PERMISSIONS_FILE"`
	SSOMigration      bool          `env:"SSO_MIGRATION" envDefault:"false"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	LogEnv   string `env:"LOG_ENV" envDefault:"prod"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the callback flow cannot run without.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("OIDC_ISSUER is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required"))
	}
	if c.RedirectURL == "" {
		errs = append(errs, errors.New("OIDC_REDIRECT_URL is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.TokenTimeout <= 0 {
		errs = append(errs, errors.New("OIDC_TIMEOUT must be positive"))
	}
	if c.Leeway < 0 {
		errs = append(errs, errors.New("OIDC_LEEWAY must not be negative"))
	}
	if c.InvitationExpiry <= 0 {
		errs = append(errs, errors.New("INVITATION_EXPIRY must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	return errors.Join(errs...)
}

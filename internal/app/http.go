package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"auth-client/internal/auth/handler"
	"auth-client/internal/auth/invitation"
	"auth-client/internal/auth/keyset"
	"auth-client/internal/auth/provider"
	"auth-client/internal/auth/resolver"
	"auth-client/internal/auth/validator"
	"auth-client/internal/config"
	"auth-client/internal/db"
	"auth-client/internal/logger"
	"auth-client/internal/middleware"
	"auth-client/internal/permissions"
	"auth-client/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	authHandler, err := newAuthHandler(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return newRouter(authHandler, infra.Sessions), infra.Close, nil
}

func newAuthHandler(ctx context.Context, cfg config.Config, infra *Infra) (*handler.Handler, error) {
	endpoints, err := provider.Discover(ctx, cfg.Issuer, cfg.TokenTimeout)
	if err != nil {
		return nil, err
	}

	exchanger, err := provider.NewExchanger(cfg.ProviderName, provider.ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}, endpoints, cfg.TokenTimeout)
	if err != nil {
		return nil, err
	}

	keys := keyset.NewRemote(endpoints.JWKSURL,
		keyset.WithTTL(cfg.JWKSCacheTTL),
		keyset.WithRefreshInterval(cfg.JWKSRefreshEvery),
	)

	store := db.NewStore(infra.DB)

	assigner, err := newPermissionAssigner(cfg.PermissionsFile, store)
	if err != nil {
		return nil, err
	}

	provisioner := resolver.NewProvisioner(store,
		resolver.WithPermissions(assigner),
		resolver.WithInvitationExpiry(cfg.InvitationExpiry),
		resolver.WithAutoAcceptDomains(cfg.AutoAcceptDomains),
		resolver.WithSSOMigration(cfg.SSOMigration),
	)

	logger.Info("oidc provider ready", map[string]any{
		"provider": cfg.ProviderName,
		"issuer":   endpoints.Issuer,
	})

	return handler.NewHandler(handler.Deps{
		Exchanger: exchanger,
		Validator: validator.New(keys, validator.Config{
			Issuer:   cfg.Issuer,
			ClientID: cfg.ClientID,
			Leeway:   cfg.Leeway,
		}),
		Invitations: invitation.NewResolver(store, cfg.InvitationExpiry),
		Resolver:    provisioner,
		Sessions:    infra.Sessions,
	}, handler.Config{
		LoginURL:          cfg.LoginURL,
		DefaultSuccessURL: cfg.DefaultSuccessURL,
		SessionTTL:        cfg.SessionTTL,
		Cookie: session.CookieOptions{
			Secure:   cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
	}), nil
}

func newPermissionAssigner(path string, granter permissions.Granter) (resolver.PermissionAssigner, error) {
	if path == "" {
		return permissions.Noop{}, nil
	}
	rules, err := permissions.Load(path)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	logger.Info("permission rules loaded", map[string]any{
		"file":  path,
		"rules": len(rules.Rules),
	})
	return permissions.NewAssigner(rules, granter), nil
}

func newRouter(authHandler *handler.Handler, sessions session.Store) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(sessions)

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		userID, _ := middleware.UserIDFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
		})
	})

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// the query may carry an authorization code
		logger.Info("request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"ip":       c.ClientIP(),
		})
	}
}

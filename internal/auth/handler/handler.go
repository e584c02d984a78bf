package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auth-client/internal/auth"
	"auth-client/internal/auth/provider"
	"auth-client/internal/auth/resolver"
	"auth-client/internal/auth/state"
	"auth-client/internal/logger"
	"auth-client/internal/metrics"
	"auth-client/internal/session"

	"github.com/gin-gonic/gin"
)

// noCache keeps the callback response, which carries a one-time code, out of
// every cache.
const noCache = "max-age=0, no-cache, no-store, must-revalidate, private"

// ClaimsValidator verifies a raw ID token against the nonce of the login
// attempt.
type ClaimsValidator interface {
	Validate(ctx context.Context, rawIDToken, expectedNonce string) (auth.Claims, error)
}

// InvitationResolver checks the invitation referenced by the session, if any.
type InvitationResolver interface {
	Resolve(ctx context.Context, slug string, claims auth.Claims) (*auth.Invitation, error)
}

type Config struct {
	LoginURL          string
	DefaultSuccessURL string
	SessionTTL        time.Duration
	Cookie            session.CookieOptions
	Now               func() time.Time
}

type Deps struct {
	Exchanger   provider.TokenExchanger
	Validator   ClaimsValidator
	Invitations InvitationResolver
	Resolver    resolver.Resolver
	Sessions    session.Store
}

type Handler struct {
	exchanger    provider.TokenExchanger
	validator    ClaimsValidator
	invitations  InvitationResolver
	resolver     resolver.Resolver
	sessionStore session.Store
	cfg          Config
}

func NewHandler(deps Deps, cfg Config) *Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultSuccessURL == "" {
		cfg.DefaultSuccessURL = "/"
	}
	return &Handler{
		exchanger:    deps.Exchanger,
		validator:    deps.Validator,
		invitations:  deps.Invitations,
		resolver:     deps.Resolver,
		sessionStore: deps.Sessions,
		cfg:          cfg,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/oauth/callback", h.Callback)
	r.POST("/auth/logout", h.Logout)
}

// Callback completes an authorization code login and redirects to the
// target stored when the login started.
func (h *Handler) Callback(c *gin.Context) {
	c.Header("Cache-Control", noCache)
	ctx := c.Request.Context()

	sess, err := h.loadSession(ctx, c.Request)
	if err != nil {
		h.fail(c, nil, fmt.Errorf("load session: %w", err))
		return
	}

	params := state.ParamsFromQuery(c.Request.URL.Query())
	attempt, err := state.Correlate(h.exchanger.Name(), params, sess)

	// the attempt is gone from the session whatever happens next
	if sess.ID != "" {
		if uerr := h.sessionStore.Update(ctx, *sess); uerr != nil {
			h.fail(c, sess, fmt.Errorf("save session: %w", uerr))
			return
		}
	}
	if err != nil {
		h.fail(c, sess, err)
		return
	}

	tokens, err := h.exchanger.Exchange(ctx, params.Code, attempt.CodeVerifier)
	if err != nil {
		var pe *auth.ProviderError
		if errors.As(err, &pe) && pe.CodeAlreadyUsed() {
			err = fmt.Errorf("%w: %v", auth.ErrStaleState, pe)
		}
		h.fail(c, sess, err)
		return
	}

	claims, err := h.validator.Validate(ctx, tokens.IDToken, attempt.Nonce)
	if err != nil {
		h.fail(c, sess, err)
		return
	}

	if _, err := h.invitations.Resolve(ctx, sess.InvitationSlug, claims); err != nil {
		h.fail(c, sess, err)
		return
	}

	user, err := h.resolver.Resolve(ctx, resolver.Input{
		Provider:       h.exchanger.Name(),
		Claims:         claims,
		Tokens:         tokens,
		InvitationSlug: sess.InvitationSlug,
	})
	if err != nil {
		h.fail(c, sess, err)
		return
	}

	target := sess.RedirectTarget
	if target == "" {
		target = h.cfg.DefaultSuccessURL
	}

	if err := h.login(c, sess, user.ID); err != nil {
		h.fail(c, sess, err)
		return
	}

	logger.Info("login succeeded", map[string]any{
		"provider": h.exchanger.Name(),
		"user_id":  user.ID,
		"ip":       c.ClientIP(),
	})
	metrics.ObserveCallback(metrics.OutcomeSuccess)
	c.Redirect(http.StatusFound, target)
}

// loadSession returns the request's session, or an unsaved empty one when
// the request has none.
func (h *Handler) loadSession(ctx context.Context, r *http.Request) (*session.Session, error) {
	id, ok := session.ReadCookie(r)
	if !ok {
		return &session.Session{}, nil
	}
	sess, err := h.sessionStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil || !h.cfg.Now().Before(sess.ExpiresAt) {
		return &session.Session{}, nil
	}
	return sess, nil
}

// login moves the user onto a fresh session so the pre-login id can not be
// reused.
func (h *Handler) login(c *gin.Context, old *session.Session, userID string) error {
	ctx := c.Request.Context()

	sess, err := session.New(h.cfg.Now(), h.cfg.SessionTTL)
	if err != nil {
		return err
	}
	sess.UserID = userID

	if err := h.sessionStore.Create(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if old.ID != "" {
		if err := h.sessionStore.Delete(ctx, old.ID); err != nil {
			logger.Warn("failed to delete pre-login session", map[string]any{"error": err})
		}
	}

	session.SetCookie(c.Writer, sess.ID, sess.ExpiresAt, h.cfg.Cookie)
	return nil
}

// fail renders err. A stale flow restarts the login; everything else ends
// the request.
func (h *Handler) fail(c *gin.Context, sess *session.Session, err error) {
	fields := map[string]any{
		"provider": h.exchanger.Name(),
		"error":    err,
	}

	var (
		pe *auth.ProviderError
		ve *auth.TokenValidationError
	)
	switch {
	case errors.Is(err, auth.ErrStaleState):
		target := ""
		if sess != nil {
			target = sess.RedirectTarget
		}
		logger.Info("stale callback, restarting login", fields)
		metrics.ObserveCallback(metrics.OutcomeRestart)
		c.Redirect(http.StatusFound, state.RestartURL(h.cfg.LoginURL, target))

	case errors.As(err, &pe):
		logger.Warn("provider reported an error", fields)
		metrics.ObserveCallback(metrics.OutcomeProviderError)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "provider_error",
			"message": pe.Error(),
		})

	case errors.Is(err, auth.ErrMissingCode):
		logger.Warn("callback without code", fields)
		metrics.ObserveCallback(metrics.OutcomeProviderError)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})

	case errors.Is(err, auth.ErrUnresolvableKey):
		logger.Error("id token signed with an unknown key", fields)
		metrics.ObserveCallback(metrics.OutcomeUnresolvableKey)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "unresolvable_key",
		})

	case errors.Is(err, auth.ErrKeySetUnavailable):
		logger.Error("provider key set unavailable", fields)
		metrics.ObserveCallback(metrics.OutcomeInternalError)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})

	case errors.As(err, &ve):
		fields["reason"] = string(ve.Reason)
		logger.Warn("id token rejected", fields)
		metrics.ObserveCallback(metrics.OutcomeInvalidToken)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid_token",
		})

	case auth.IsPermissionDenied(err):
		logger.Info("login denied", fields)
		metrics.ObserveCallback(metrics.OutcomePermissionDenied)
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "permission_denied",
			"message": err.Error(),
		})

	default:
		logger.Error("callback failed", fields)
		metrics.ObserveCallback(metrics.OutcomeInternalError)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})
	}
}

func (h *Handler) Logout(c *gin.Context) {
	if id, ok := session.ReadCookie(c.Request); ok {
		// best-effort
		if err := h.sessionStore.Delete(c.Request.Context(), id); err != nil {
			logger.Warn("failed to delete session on logout", map[string]any{"error": err})
		}
	}

	session.ClearCookie(c.Writer, h.cfg.Cookie)

	c.Status(http.StatusNoContent)
}

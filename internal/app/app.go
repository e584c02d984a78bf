package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"auth-client/internal/config"
)

// App owns the HTTP server and the infrastructure behind it.
type App struct {
	httpServer *http.Server
	cleanup    func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	router, cleanup, err := setupHTTP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			// covers a token exchange plus a JWKS refresh
			WriteTimeout: cfg.TokenTimeout + 20*time.Second,
			IdleTimeout:  2 * time.Minute,
		},
		cleanup: cleanup,
	}, nil
}

func (a *App) Run() error {
	return a.httpServer.ListenAndServe()
}

// Shutdown drains in-flight callbacks, then releases the database pool and
// the session store even when draining timed out.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.httpServer.Shutdown(ctx)
	if a.cleanup != nil {
		err = errors.Join(err, a.cleanup())
	}
	return err
}

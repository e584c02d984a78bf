// Package keyset resolves ID token signing keys from a provider's JWKS.
package keyset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"auth-client/internal/auth"
	"auth-client/internal/logger"
	"auth-client/internal/metrics"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultTTL             = time.Hour
	defaultRefreshInterval = 30 * time.Second
)

// Static serves keys from a fixed JWKS.
type Static struct {
	keys jose.JSONWebKeySet
}

func NewStatic(keys jose.JSONWebKeySet) *Static {
	return &Static{keys: keys}
}

func (s *Static) Key(_ context.Context, kid string) (any, error) {
	if k, ok := lookup(&s.keys, kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", auth.ErrUnresolvableKey, kid)
}

// Remote fetches the JWKS from the provider and caches it for ttl.
// An unknown kid forces a refetch, throttled by a rate limiter so a flood of
// forged tokens cannot turn into a flood of JWKS requests.
type Remote struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time

	mu        sync.RWMutex
	keys      *jose.JSONWebKeySet
	fetchedAt time.Time
	etag      string
}

type Option func(*Remote)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Remote) { r.client = c }
}

func WithTTL(ttl time.Duration) Option {
	return func(r *Remote) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRefreshInterval sets the minimum spacing of forced refetches.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Remote) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Remote) { r.now = now }
}

func NewRemote(jwksURL string, opts ...Option) *Remote {
	r := &Remote{
		url:     jwksURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     defaultTTL,
		limiter: rate.NewLimiter(rate.Every(defaultRefreshInterval), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the signing key for kid. Fetch failures are reported with
// auth.ErrKeySetUnavailable, unknown ids with auth.ErrUnresolvableKey.
func (r *Remote) Key(ctx context.Context, kid string) (any, error) {
	keys, fetched, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := lookup(keys, kid); ok {
		return k, nil
	}

	// the provider may have rotated its keys since the last fetch
	if fetched || !r.limiter.Allow() {
		return nil, fmt.Errorf("%w: kid %q", auth.ErrUnresolvableKey, kid)
	}
	keys, err = r.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := lookup(keys, kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", auth.ErrUnresolvableKey, kid)
}

// current returns the cached set, fetching it when missing or older than
// ttl. fetched reports whether this call went to the provider.
func (r *Remote) current(ctx context.Context) (keys *jose.JSONWebKeySet, fetched bool, err error) {
	r.mu.RLock()
	keys = r.keys
	fresh := keys != nil && r.now().Sub(r.fetchedAt) < r.ttl
	r.mu.RUnlock()

	if fresh {
		return keys, false, nil
	}
	keys, err = r.refresh(ctx)
	return keys, true, err
}

func (r *Remote) refresh(ctx context.Context) (*jose.JSONWebKeySet, error) {
	v, err, _ := r.group.Do("jwks", func() (any, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		metrics.KeySetRefreshTotal.WithLabelValues("error").Inc()
		logger.Error("jwks fetch failed", map[string]any{
			"url":   r.url,
			"error": err,
		})
		return nil, fmt.Errorf("%w: %v", auth.ErrKeySetUnavailable, err)
	}
	metrics.KeySetRefreshTotal.WithLabelValues("ok").Inc()
	return v.(*jose.JSONWebKeySet), nil
}

func (r *Remote) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("keyset: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	r.mu.RLock()
	etag, cached := r.etag, r.keys
	r.mu.RUnlock()
	if etag != "" && cached != nil {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyset: get %s: %w", r.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		r.mu.Lock()
		r.fetchedAt = r.now()
		r.mu.Unlock()
		return cached, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("keyset: get %s: http %d", r.url, resp.StatusCode)
	}

	var keys jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("keyset: decode: %w", err)
	}

	r.mu.Lock()
	r.keys = &keys
	r.fetchedAt = r.now()
	r.etag = resp.Header.Get("ETag")
	r.mu.Unlock()

	return &keys, nil
}

// lookup returns the public signing key for kid. A token without kid is
// accepted only when the set holds exactly one signing key.
func lookup(set *jose.JSONWebKeySet, kid string) (any, bool) {
	var candidates []jose.JSONWebKey
	if kid == "" {
		candidates = set.Keys
	} else {
		candidates = set.Key(kid)
	}

	var found []jose.JSONWebKey
	for _, k := range candidates {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.Valid() || !k.IsPublic() {
			continue
		}
		found = append(found, k)
	}
	if len(found) != 1 {
		return nil, false
	}
	return found[0].Key, true
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Callback outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeRestart          = "restart"
	OutcomeProviderError    = "provider_error"
	OutcomeInvalidToken     = "invalid_token"
	OutcomeUnresolvableKey  = "unresolvable_key"
	OutcomePermissionDenied = "permission_denied"
	OutcomeInternalError    = "internal_error"
)

var (
	CallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "callback_total",
		Help:      "OIDC callbacks handled, by outcome.",
	}, []string{"outcome"})

	TokenExchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "auth",
		Name:      "token_exchange_duration_seconds",
		Help:      "Latency of authorization code exchanges at the provider token endpoint.",
		Buckets:   prometheus.DefBuckets,
	})

	KeySetRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "keyset_refresh_total",
		Help:      "Provider JWKS fetches, by result.",
	}, []string{"result"})
)

func ObserveCallback(outcome string) {
	CallbackTotal.WithLabelValues(outcome).Inc()
}

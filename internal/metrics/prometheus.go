package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Metrics are usable before registration so services never trip over a nil
// collector; InitCustomMetrics wires them into the server's registry.
var (
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_tokens_issued_total",
		Help: "Total number of access tokens minted.",
	})
	TokensRenewedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_tokens_renewed_total",
		Help: "Total number of access token renewals.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_tokens_revoked_total",
		Help: "Total number of access tokens revoked.",
	})
	TokenVerificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_token_verifications_total",
		Help: "Total number of successful token verifications.",
	})
	AuthDenialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekey_auth_denials_total",
		Help: "Total number of denied authentication attempts, by reason.",
	}, []string{"reason"})
	ConfigWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_config_writes_total",
		Help: "Total number of auth method config writes.",
	})
	ConfigConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_config_conflicts_total",
		Help: "Total number of config writes rejected due to a concurrent writer.",
	})
	TokenCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_token_cache_hits_total",
		Help: "Total number of verifications served from the token cache.",
	})
	TokenCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekey_token_cache_misses_total",
		Help: "Total number of verifications that fell through to the token ledger.",
	})
)

// InitCustomMetrics registers the package metrics with reg. It should be
// called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := []prometheus.Collector{
		TokensIssuedTotal,
		TokensRenewedTotal,
		TokensRevokedTotal,
		TokenVerificationsTotal,
		AuthDenialsTotal,
		ConfigWritesTotal,
		ConfigConflictsTotal,
		TokenCacheHitsTotal,
		TokenCacheMissesTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}

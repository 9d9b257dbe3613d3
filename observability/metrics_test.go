package observability

import (
	"context"
	"testing"
	"time"

	"github.com/deicod/bearerauth/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordValidation(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry, Namespace: "bearerauth"})
	require.NoError(t, err)

	metrics.RecordValidation(context.Background(), config.MetricsEvent{
		Issuer:   "https://issuer",
		Outcome:  config.MetricsOutcomeSuccess,
		Duration: 150 * time.Millisecond,
	})
	metrics.RecordValidation(context.Background(), config.MetricsEvent{
		Issuer:    "https://issuer",
		Outcome:   config.MetricsOutcomeFailure,
		ErrorCode: "invalid_token",
		Duration:  200 * time.Millisecond,
	})

	success := testutil.ToFloat64(metrics.requestTotal.WithLabelValues("https://issuer", string(config.MetricsOutcomeSuccess), "none"))
	require.Equal(t, 1.0, success)

	failure := testutil.ToFloat64(metrics.requestTotal.WithLabelValues("https://issuer", string(config.MetricsOutcomeFailure), "invalid_token"))
	require.Equal(t, 1.0, failure)

	count := testutil.CollectAndCount(metrics.requestDuration, "bearerauth_duration_seconds")
	require.Greater(t, count, 0)

	require.Equal(t, 0, testutil.CollectAndCount(metrics.renderFailures))
}

func TestMetricsRecordChallengesByKind(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry})
	require.NoError(t, err)

	for _, kind := range []string{"invalid_token", "invalid_token", "missing_authentication"} {
		metrics.RecordValidation(context.Background(), config.MetricsEvent{
			Outcome:   config.MetricsOutcomeFailure,
			ErrorCode: kind,
			Kind:      kind,
		})
	}
	metrics.RecordValidation(context.Background(), config.MetricsEvent{
		Outcome:   config.MetricsOutcomeFailure,
		ErrorCode: "server_error",
	})

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.challengeTotal.WithLabelValues("invalid_token")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.challengeTotal.WithLabelValues("missing_authentication")))
	require.Equal(t, 2, testutil.CollectAndCount(metrics.challengeTotal, "challenges_total"))
	require.Equal(t, 0, testutil.CollectAndCount(metrics.renderFailures))
}

func TestMetricsRecordRenderFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry})
	require.NoError(t, err)

	metrics.RecordValidation(context.Background(), config.MetricsEvent{
		Outcome:      config.MetricsOutcomeFailure,
		ErrorCode:    "invalid_token",
		Kind:         "invalid_token",
		RenderFailed: true,
	})

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.renderFailures.WithLabelValues("invalid_token")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.challengeTotal.WithLabelValues("invalid_token")))
}

func TestMetricsRegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry})
	require.NoError(t, err)

	metrics.RecordValidation(context.Background(), config.MetricsEvent{Outcome: config.MetricsOutcomeSuccess})

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 2)
	require.Len(t, metrics.Collectors(), 4)
}

func TestMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewMetrics(MetricsOptions{Registerer: registry})
	require.NoError(t, err)
	second, err := NewMetrics(MetricsOptions{Registerer: registry})
	require.NoError(t, err)

	first.RecordValidation(context.Background(), config.MetricsEvent{Outcome: config.MetricsOutcomeSuccess})
	second.RecordValidation(context.Background(), config.MetricsEvent{Outcome: config.MetricsOutcomeSuccess})

	total := testutil.ToFloat64(second.requestTotal.WithLabelValues("unknown", string(config.MetricsOutcomeSuccess), "none"))
	require.Equal(t, 2.0, total)
}

package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/deicod/bearerauth/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for authentication outcomes.
type Metrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	challengeTotal  *prometheus.CounterVec
	renderFailures  *prometheus.CounterVec
}

// MetricsOptions configures Metrics construction.
type MetricsOptions struct {
	Registerer      prometheus.Registerer
	Namespace       string
	Subsystem       string
	DurationBuckets []float64
}

// NewMetrics constructs Metrics and registers the collectors with the provided registerer.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}

	requestTotal, err := registerCounter(registerer, prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "requests_total",
		Help:      "Total number of bearer authentication attempts.",
	}, "issuer", "outcome", "error_code")
	if err != nil {
		return nil, err
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "duration_seconds",
		Help:      "Duration of bearer authentication attempts in seconds.",
		Buckets:   buckets,
	}, []string{"issuer", "outcome"})
	registeredHistogram, err := registerCollector(registerer, histogram)
	if err != nil {
		return nil, err
	}
	histogramVec, ok := registeredHistogram.(*prometheus.HistogramVec)
	if !ok {
		return nil, fmt.Errorf("observability: duration_seconds collector has unexpected type %T", registeredHistogram)
	}

	challengeTotal, err := registerCounter(registerer, prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "challenges_total",
		Help:      "Bearer challenges raised, by challenge kind.",
	}, "kind")
	if err != nil {
		return nil, err
	}

	renderFailures, err := registerCounter(registerer, prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "render_failures_total",
		Help:      "Challenges that could not be encoded as a WWW-Authenticate header value, by challenge kind.",
	}, "kind")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestTotal:    requestTotal,
		requestDuration: histogramVec,
		challengeTotal:  challengeTotal,
		renderFailures:  renderFailures,
	}, nil
}

// RecordValidation implements config.MetricsRecorder.
func (m *Metrics) RecordValidation(_ context.Context, event config.MetricsEvent) {
	if m == nil {
		return
	}
	issuer := event.Issuer
	if issuer == "" {
		issuer = "unknown"
	}
	outcome := string(event.Outcome)
	if outcome == "" {
		outcome = string(config.MetricsOutcomeFailure)
	}
	errorCode := event.ErrorCode
	if errorCode == "" {
		errorCode = "none"
	}
	m.requestTotal.WithLabelValues(issuer, outcome, errorCode).Inc()
	m.requestDuration.WithLabelValues(issuer, outcome).Observe(event.Duration.Seconds())
	if event.Kind == "" {
		return
	}
	m.challengeTotal.WithLabelValues(event.Kind).Inc()
	if event.RenderFailed {
		m.renderFailures.WithLabelValues(event.Kind).Inc()
	}
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	registered, err := registerCollector(reg, prometheus.NewCounterVec(opts, labels))
	if err != nil {
		return nil, err
	}
	counterVec, ok := registered.(*prometheus.CounterVec)
	if !ok {
		return nil, fmt.Errorf("observability: %s collector has unexpected type %T", opts.Name, registered)
	}
	return counterVec, nil
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if reg == nil {
		return nil, errors.New("observability: registerer is nil")
	}
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if are.ExistingCollector == nil {
				return nil, errors.New("observability: collector already registered but missing reference")
			}
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

// Collectors exposes the underlying collectors for advanced registration scenarios.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.requestTotal, m.requestDuration, m.challengeTotal, m.renderFailures}
}

// Package metrics exposes Prometheus instrumentation for the session
// lifecycle. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "freightdesk_console"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct {
	Logins        *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	Logouts       prometheus.Counter
	Invalidations *prometheus.CounterVec
	Authenticated prometheus.Gauge
}

// New registers the session metrics with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		Registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Registration attempts by result",
			},
			[]string{"result"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Silent token refresh attempts by result",
			},
			[]string{"result"},
		),
		Logouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logouts_total",
				Help:      "Explicit logouts",
			},
		),
		Invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_invalidations_total",
				Help:      "Sessions forcibly ended by the client, by reason",
			},
			[]string{"reason"},
		),
		Authenticated: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_authenticated",
				Help:      "1 while the console holds an authenticated session",
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveRegistration(err error) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}

func (m *Metrics) ObserveInvalidation(reason string) {
	if m == nil {
		return
	}
	m.Invalidations.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetAuthenticated(authenticated bool) {
	if m == nil {
		return
	}
	if authenticated {
		m.Authenticated.Set(1)
		return
	}
	m.Authenticated.Set(0)
}

package gateway

import "github.com/prometheus/client_golang/prometheus"

const (
	requestOK              = "ok"
	requestRefreshed       = "refreshed"
	requestUnauthenticated = "unauthenticated"
	requestTransportError  = "transport_error"

	refreshSuccess        = "success"
	refreshRejected       = "rejected"
	refreshMalformed      = "malformed"
	refreshTransportError = "transport_error"
	refreshStoreError     = "store_error"
)

// Metrics counts gateway outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway requests by final outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "gateway",
			Name:      "refreshes_total",
			Help:      "Token refresh calls by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.requests, m.refreshes)

	return m
}

func (m *Metrics) observeRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

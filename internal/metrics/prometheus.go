package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PaymentConfirmations *prometheus.CounterVec
	GatewayRequests      *prometheus.CounterVec
	Submissions          *prometheus.CounterVec
	WinnersDeclared      prometheus.Counter
	HTTPRequests         *prometheus.CounterVec
	HTTPLatency          *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PaymentConfirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_payment_confirmations_total",
			Help: "Payment confirmations by outcome",
		}, []string{"outcome"}),
		GatewayRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_gateway_requests_total",
			Help: "Payment gateway calls by operation and status",
		}, []string{"op", "status"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_submissions_total",
			Help: "Submission attempts by outcome",
		}, []string{"outcome"}),
		WinnersDeclared: f.NewCounter(prometheus.CounterOpts{
			Name: "contest_winners_declared_total",
			Help: "Total number of declared contest winners",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contest_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// The helpers below are no-ops on a nil *Metrics.

func (m *Metrics) IncConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.PaymentConfirmations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncGateway(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GatewayRequests.WithLabelValues(op, status).Inc()
}

func (m *Metrics) IncSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncWinners() {
	if m == nil {
		return
	}
	m.WinnersDeclared.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(seconds)
}

// Package metrics exposes Prometheus counters for the authentication flows.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletauth"

// Recorder records authentication metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	verify          *prometheus.CounterVec
	rotate          *prometheus.CounterVec
	sessionsRevoked *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewRecorder creates a Recorder on a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_total",
			Help:      "Wallet signature verifications by result.",
		}, []string{"result"}),
		rotate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotate_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Revoked sessions by revocation reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.verify,
		r.rotate,
		r.sessionsRevoked,
		r.httpRequests,
	)
	return r
}

// Verify counts one verification with result ("ok" or an error kind).
func (r *Recorder) Verify(result string) {
	if r == nil {
		return
	}
	r.verify.WithLabelValues(result).Inc()
}

// Rotate counts one rotation with result ("ok" or an error kind).
func (r *Recorder) Rotate(result string) {
	if r == nil {
		return
	}
	r.rotate.WithLabelValues(result).Inc()
}

// SessionsRevoked adds n revoked sessions for reason.
func (r *Recorder) SessionsRevoked(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

// HTTPRequest counts one served request.
func (r *Recorder) HTTPRequest(route string, status int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

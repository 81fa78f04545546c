// Package metrics exposes Prometheus instrumentation for the server event subsystem.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventlink"

// Drop reasons for malformed messages.
const (
	ReasonEnvelope       = "envelope"
	ReasonUnknownType    = "unknown_type"
	ReasonInvalidPayload = "invalid_payload"
)

// Collector groups the subsystem's metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	messagesReceived   prometheus.Counter
	duplicatesDropped  prometheus.Counter
	malformedDropped   *prometheus.CounterVec
	eventsDispatched   *prometheus.CounterVec
	handlerFailures    *prometheus.CounterVec
	sessionsOpened     prometheus.Counter
	dialFailures       prometheus.Counter
	reopens            *prometheus.CounterVec
	subscribedProjects prometheus.Gauge
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		messagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Raw messages received on the streaming connection",
		}),
		duplicatesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Raw messages dropped as redelivered duplicates",
		}),
		malformedDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_malformed_total",
			Help:      "Raw messages dropped because they could not be parsed",
		}, []string{"reason"}),
		eventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Server events handed to a dispatcher",
		}, []string{"kind"}),
		handlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Event handlers that returned an error or panicked",
		}, []string{"kind"}),
		sessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Streaming sessions that reached the open state",
		}),
		dialFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_dial_failures_total",
			Help:      "Streaming sessions whose connection attempt failed",
		}),
		reopens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reopens_total",
			Help:      "Streaming session reopenings by reason",
		}, []string{"reason"}),
		subscribedProjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribed_projects",
			Help:      "Distinct projects currently subscribed on the wire",
		}),
	}
}

func (c *Collector) MessageReceived() {
	if c != nil {
		c.messagesReceived.Inc()
	}
}

func (c *Collector) DuplicateDropped() {
	if c != nil {
		c.duplicatesDropped.Inc()
	}
}

func (c *Collector) MalformedDropped(reason string) {
	if c != nil {
		c.malformedDropped.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) EventDispatched(kind string) {
	if c != nil {
		c.eventsDispatched.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) HandlerFailed(kind string) {
	if c != nil {
		c.handlerFailures.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) SessionOpened() {
	if c != nil {
		c.sessionsOpened.Inc()
	}
}

func (c *Collector) DialFailed() {
	if c != nil {
		c.dialFailures.Inc()
	}
}

func (c *Collector) Reopened(reason string) {
	if c != nil {
		c.reopens.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) SetSubscribedProjects(n int) {
	if c != nil {
		c.subscribedProjects.Set(float64(n))
	}
}

// NewServer returns an HTTP server exposing the gathered metrics on /metrics.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

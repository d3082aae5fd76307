// Package metrics holds the relay's Prometheus collectors.
//
// Every method is safe on a nil *Metrics so packages can be used without
// wiring metrics in tests.
package metrics

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "aero_room_relay"

// Drop reasons for frames that never reach a recipient.
const (
	DropReasonInvalid       = "invalid"
	DropReasonQueueFull     = "queue_full"
	DropReasonPeerClosed    = "peer_closed"
	DropReasonUnknownTarget = "unknown_target"
	DropReasonRateLimited   = "rate_limited"
)

// Gateway request outcomes.
const (
	GatewayOutcomeSuccess    = "success"
	GatewayOutcomeError      = "error"
	GatewayOutcomeUnexpected = "unexpected"
	GatewayOutcomeTransport  = "transport"
)

type Metrics struct {
	reg *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	roomsActive       prometheus.Gauge
	framesIn          *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	recordingForwards *prometheus.CounterVec
	gatewayRequests   *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Signaling WebSocket connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Signaling WebSocket connections accepted.",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms with at least one member.",
		}),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound signaling frames by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded before delivery, by reason.",
		}, []string{"reason"}),
		recordingForwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_forwards_total",
			Help:      "ICE candidates posted by the recording component, by result.",
		}, []string{"result"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Media gateway requests by verb and outcome.",
		}, []string{"verb", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Media gateway round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsActive,
		m.connectionsTotal,
		m.roomsActive,
		m.framesIn,
		m.framesDropped,
		m.recordingForwards,
		m.gatewayRequests,
		m.gatewayLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WriteText writes the families named aero_room_relay_<prefix>* in the
// Prometheus text format. Families without samples are omitted.
func (m *Metrics) WriteText(w io.Writer, prefix string) error {
	if m == nil {
		return nil
	}
	families, err := m.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_"+prefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.roomsActive.Set(float64(n))
}

func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(frameType).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordingForward(delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "not_found"
	}
	m.recordingForwards.WithLabelValues(result).Inc()
}

func (m *Metrics) GatewayRequest(verb, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(verb, outcome).Inc()
	m.gatewayLatency.WithLabelValues(verb).Observe(elapsed.Seconds())
}

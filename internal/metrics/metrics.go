// Package metrics provides Prometheus metrics for dgram endpoints.
//
// All Record methods are safe to call on a nil *Metrics, so components can
// treat metrics as optional.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dgram"
)

// Metrics contains all Prometheus metrics for endpoints.
type Metrics struct {
	// Endpoint lifecycle
	EndpointsOpen   *prometheus.GaugeVec
	EndpointsOpened *prometheus.CounterVec
	OpenErrors      *prometheus.CounterVec
	Registrations   prometheus.Counter
	SubsystemActive prometheus.Gauge

	// Datagram traffic
	DatagramsSent     prometheus.Counter
	DatagramsReceived prometheus.Counter
	BytesSent         prometheus.Counter
	BytesReceived     prometheus.Counter
	Truncated         prometheus.Counter

	// Errors
	IOErrors        *prometheus.CounterVec
	ReceiveTimeouts prometheus.Counter

	// Benchmark
	RoundTripLatency prometheus.Histogram
	PacketMismatches prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EndpointsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints_open",
			Help:      "Number of currently open endpoints by mode",
		}, []string{"mode"}),
		EndpointsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoints_opened_total",
			Help:      "Total endpoints opened by mode",
		}, []string{"mode"}),
		OpenErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "open_errors_total",
			Help:      "Endpoint open failures by failing operation",
		}, []string{"op"}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total endpoints registered with a poller",
		}),
		SubsystemActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subsystem_references",
			Help:      "References currently held on the platform network subsystem",
		}),

		DatagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Total datagrams sent",
		}),
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams received",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}),
		Truncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_truncated_total",
			Help:      "Datagrams larger than the receive buffer",
		}),

		IOErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_errors_total",
			Help:      "Socket I/O errors by operation",
		}, []string{"op"}),
		ReceiveTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_timeouts_total",
			Help:      "Receives that ended without data",
		}),

		RoundTripLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Echo round trip latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us .. ~0.3s
		}),
		PacketMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_mismatches_total",
			Help:      "Echoed packets whose content did not match",
		}),
	}
}

// RecordOpen records a successfully opened endpoint.
func (m *Metrics) RecordOpen(mode string) {
	if m == nil {
		return
	}
	m.EndpointsOpen.WithLabelValues(mode).Inc()
	m.EndpointsOpened.WithLabelValues(mode).Inc()
}

// RecordClose records a closed endpoint.
func (m *Metrics) RecordClose(mode string) {
	if m == nil {
		return
	}
	m.EndpointsOpen.WithLabelValues(mode).Dec()
}

// RecordOpenError records a failed open.
func (m *Metrics) RecordOpenError(op string) {
	if m == nil {
		return
	}
	m.OpenErrors.WithLabelValues(op).Inc()
}

// RecordRegister records a poller registration.
func (m *Metrics) RecordRegister() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

// SetSubsystemReferences sets the subsystem reference gauge.
func (m *Metrics) SetSubsystemReferences(count int) {
	if m == nil {
		return
	}
	m.SubsystemActive.Set(float64(count))
}

// RecordSend records a sent datagram.
func (m *Metrics) RecordSend(bytes int) {
	if m == nil {
		return
	}
	m.DatagramsSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// RecordReceive records a received datagram.
func (m *Metrics) RecordReceive(bytes int) {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(float64(bytes))
}

// RecordTruncated records a truncated datagram.
func (m *Metrics) RecordTruncated() {
	if m == nil {
		return
	}
	m.Truncated.Inc()
}

// RecordIOError records a socket error.
func (m *Metrics) RecordIOError(op string) {
	if m == nil {
		return
	}
	m.IOErrors.WithLabelValues(op).Inc()
}

// RecordReceiveTimeout records a receive that returned no data.
func (m *Metrics) RecordReceiveTimeout() {
	if m == nil {
		return
	}
	m.ReceiveTimeouts.Inc()
}

// RecordRoundTrip records an echo round trip.
func (m *Metrics) RecordRoundTrip(latencySeconds float64) {
	if m == nil {
		return
	}
	m.RoundTripLatency.Observe(latencySeconds)
}

// RecordPacketMismatch records an echoed packet with unexpected content.
func (m *Metrics) RecordPacketMismatch() {
	if m == nil {
		return
	}
	m.PacketMismatches.Inc()
}

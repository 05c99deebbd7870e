// Package metrics exposes Prometheus instrumentation for the goslip
// command-line tools: frame-level SLIP counters, protocol-level checksum
// failures, and the ping RTT histogram.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "goslip"
	subsystem = "link"
)

// Label names.
const (
	labelProto = "proto" // ip, udp, tcp
	labelTool  = "tool"  // ping, nslookup, ntpdate, minisock
)

// -------------------------------------------------------------------------
// Collector — Prometheus goslip Metrics
// -------------------------------------------------------------------------

// Collector holds all goslip Prometheus metrics. A single SLIP link and a
// single protocol client run per process invocation, so every metric is
// cumulative for the lifetime of that process.
type Collector struct {
	// FramesSent counts complete SLIP frames written to the serial link.
	FramesSent prometheus.Counter

	// FramesReceived counts complete SLIP frames decoded off the serial
	// link, including ones later discarded for protocol mismatch.
	FramesReceived prometheus.Counter

	// Resyncs counts how many times the SLIP decoder had to resynchronize
	// on the IPv4 signature bytes instead of finding a clean END-delimited
	// frame boundary.
	Resyncs prometheus.Counter

	// ChecksumFailures counts checksum verification failures on received
	// packets, labeled by protocol: "ip" for the IPv4 header checksum
	// rejected before a frame is handed to any protocol decoder, "udp" or
	// "tcp" for the transport-layer checksum rejected inside that
	// protocol's own client.
	ChecksumFailures *prometheus.CounterVec

	// Retransmits counts TCP segment retransmissions: each resend of the
	// in-flight handshake, data, or teardown segment after a reply that
	// did not acknowledge it.
	Retransmits prometheus.Counter

	// PingRTT observes round-trip latency, in seconds, for each
	// successfully echoed ICMP ping.
	PingRTT prometheus.Histogram
}

// NewCollector creates a Collector with all goslip metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FramesSent,
		c.FramesReceived,
		c.Resyncs,
		c.ChecksumFailures,
		c.Retransmits,
		c.PingRTT,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	return &Collector{
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total SLIP frames transmitted on the serial link.",
		}),

		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total SLIP frames decoded from the serial link.",
		}),

		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resyncs_total",
			Help:      "Total times the SLIP decoder resynchronized on the IPv4 signature bytes.",
		}),

		ChecksumFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checksum_failures_total",
			Help:      "Total checksum verification failures on received packets, by protocol.",
		}, []string{labelProto}),

		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tcp_retransmits_total",
			Help:      "Total TCP segment retransmissions.",
		}),

		PingRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ping",
			Name:      "rtt_seconds",
			Help:      "Round-trip time for successfully echoed ICMP pings.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// -------------------------------------------------------------------------
// Frame Counters
// -------------------------------------------------------------------------

// IncFramesSent increments the transmitted SLIP frame counter.
func (c *Collector) IncFramesSent() {
	c.FramesSent.Inc()
}

// IncFramesReceived increments the decoded SLIP frame counter.
func (c *Collector) IncFramesReceived() {
	c.FramesReceived.Inc()
}

// IncResyncs increments the SLIP resynchronization counter.
func (c *Collector) IncResyncs() {
	c.Resyncs.Inc()
}

// -------------------------------------------------------------------------
// Protocol Counters
// -------------------------------------------------------------------------

// IncChecksumFailures increments the checksum failure counter for proto
// (one of "ip", "udp", "tcp").
func (c *Collector) IncChecksumFailures(proto string) {
	c.ChecksumFailures.WithLabelValues(proto).Inc()
}

// IncRetransmits increments the TCP retransmit counter.
func (c *Collector) IncRetransmits() {
	c.Retransmits.Inc()
}

// ObservePingRTT records one successful ping round-trip time, in seconds.
func (c *Collector) ObservePingRTT(seconds float64) {
	c.PingRTT.Observe(seconds)
}

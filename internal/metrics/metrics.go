// Package metrics exposes the station's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "airwave"

var (
	// TracksPlayed counts queue advances, including loops
	TracksPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_played_total",
		Help:      "Number of times a track started playing.",
	})

	// PrefetchStarted counts downloads begun by the prefetch buffer
	PrefetchStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "started_total",
		Help:      "Number of prefetch downloads started.",
	})

	// PrefetchBytes counts bytes received by the prefetch buffer
	PrefetchBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "bytes_total",
		Help:      "Audio bytes downloaded into the prefetch buffer.",
	})

	// PrefetchEvictions counts entries dropped to respect the bound
	PrefetchEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "evictions_total",
		Help:      "Number of prefetch entries evicted.",
	})

	// PrefetchFailures counts downloads discarded for errors or size mismatch
	PrefetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "failures_total",
		Help:      "Number of prefetch downloads that failed.",
	})

	// PrefetchEntries tracks live buffer entries
	PrefetchEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "entries",
		Help:      "Live prefetch entries.",
	})

	// StreamResponses counts /get responses by status code
	StreamResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "responses_total",
		Help:      "Audio stream responses by status code.",
	}, []string{"code"})

	// StreamBytes counts audio bytes written to listeners
	StreamBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "bytes_total",
		Help:      "Audio bytes written to HTTP listeners.",
	})

	// SocketClients tracks connected real-time clients
	SocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "socket",
		Name:      "clients",
		Help:      "Connected real-time clients.",
	})

	// SocketWriteFailures counts messages that could not be pushed to a client
	SocketWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "socket",
		Name:      "write_failures_total",
		Help:      "Failed writes to real-time clients.",
	})

	// ProviderFailures counts stream URL resolutions given up on
	ProviderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "resolve_failures_total",
		Help:      "Stream URL resolutions that exhausted their retries.",
	})
)

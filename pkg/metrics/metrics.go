package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "evflow"

// Write results recorded in StreamWrites.
const (
	WriteAccepted  = "accepted"
	WriteCongested = "congested"
	WriteDropped   = "dropped"
)

// Registry holds all metric instances for evflow streams.
type Registry struct {
	// Stream core
	StreamWrites        *prometheus.CounterVec
	StreamEvents        *prometheus.CounterVec
	BackpressureSignals *prometheus.CounterVec
	StreamPipes         *prometheus.GaugeVec

	// Producers and sinks
	SourceTicks        *prometheus.CounterVec
	ThrottleDelay      *prometheus.HistogramVec
	WriterFlushes      *prometheus.CounterVec
	WriterBytesWritten *prometheus.CounterVec
}

// DefaultRegistry is registered on prometheus.DefaultRegisterer.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: DefaultNamespace,
	})
}

// NewRegistryWithConfig creates a registry from config. It returns nil when
// config.Enabled is false; streams treat a nil registry as "no metrics".
func NewRegistryWithConfig(config Config) *Registry {
	if !config.Enabled {
		return nil
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}

	factory := promauto.With(config.Registry)
	ns := config.Namespace
	labels := config.Labels

	return &Registry{
		StreamWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "stream",
				Name:        "writes_total",
				Help:        "Total number of chunks written to streams, by result",
				ConstLabels: labels,
			},
			[]string{"stream", "result"},
		),

		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "stream",
				Name:        "events_total",
				Help:        "Total number of events emitted by streams",
				ConstLabels: labels,
			},
			[]string{"stream", "event"},
		),

		BackpressureSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "backpressure",
				Name:        "signals_total",
				Help:        "Total number of pause and resume calls received by streams",
				ConstLabels: labels,
			},
			[]string{"stream", "signal"},
		),

		StreamPipes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "stream",
				Name:        "pipes",
				Help:        "Number of pipe destinations currently wired to a stream",
				ConstLabels: labels,
			},
			[]string{"stream"},
		),

		SourceTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "source",
				Name:        "ticks_total",
				Help:        "Scheduled producer ticks, by result",
				ConstLabels: labels,
			},
			[]string{"stream", "result"},
		),

		ThrottleDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "throttle",
				Name:        "delay_seconds",
				Help:        "Backoff imposed on producers by throttled streams",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"stream"},
		),

		WriterFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "flushes_total",
				Help:        "Total number of writer sink flushes",
				ConstLabels: labels,
			},
			[]string{"stream"},
		),

		WriterBytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "bytes_written_total",
				Help:        "Total bytes written by writer sinks",
				ConstLabels: labels,
			},
			[]string{"stream"},
		),
	}
}

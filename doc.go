/*
Package evflow provides event-driven streams for Go with explicit
backpressure.

Core (pkg/stream):
  - ReadableStream, WritableStream: producer and consumer sides
  - ThroughStream: pass-through duplex that forwards Pause and Resume upstream
  - CompositeStream: one duplex from an independent readable and writable
  - Pipe: data forwarding with pause on congestion and resume on drain

Producers and consumers:
  - source: slice, channel and cron-scheduled producers
  - sink: in-memory collector and buffered io.Writer sink
  - throttle: token bucket rate limiting as a pass-through stream
  - redisstream: Redis pub/sub publisher and subscriber
  - wsstream: a WebSocket connection as a duplex

Observability (pkg/metrics): Prometheus counters and gauges for writes,
events, backpressure signals and pipes. Streams log through zap.

Example usage:

	import (
		"github.com/vnykmshr/evflow/pkg/sink"
		"github.com/vnykmshr/evflow/pkg/source"
		"github.com/vnykmshr/evflow/pkg/stream"
	)

	src := source.FromSlice([]string{"a", "b", "c"}, stream.DefaultConfig())
	out := sink.NewCollector[string](0, stream.DefaultConfig())

	src.Pipe(stream.NewThrough[string]()).(*stream.ThroughStream[string]).Pipe(out)
	src.Start()
*/
package evflow

// Package metrics provides Prometheus instrumentation for evflow streams.
//
// Streams are instrumented by passing a *Registry in their config:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	through := stream.NewThroughWithConfig[string](stream.Config{
//		Name:    "ingest",
//		Metrics: reg,
//	})
//
// A nil registry disables instrumentation. DefaultRegistry is registered on
// prometheus.DefaultRegisterer, so it can be served with promhttp.Handler().
//
// # Available Metrics
//
//   - evflow_stream_writes_total{stream,result}: chunks written; result is
//     "accepted", "congested" (accepted but Write returned false) or
//     "dropped" (stream was not writable)
//   - evflow_stream_events_total{stream,event}: data, end, error, close, drain
//   - evflow_backpressure_signals_total{stream,signal}: pause and resume calls
//   - evflow_stream_pipes{stream}: wired pipe destinations
//   - evflow_source_ticks_total{stream,result}: cron ticks emitted or skipped
//   - evflow_throttle_delay_seconds{stream}: backoff imposed by throttles
//   - evflow_writer_flushes_total{stream}, evflow_writer_bytes_written_total{stream}
package metrics

// Package sink provides writable streams that consume chunks: an in-memory
// Collector and a buffered Writer over any io.Writer.
//
// Both report congestion through the Write return value and emit drain once
// they can take more, so a piped source is paused and resumed automatically.
package sink

/*
Package stream provides event-driven, backpressure-aware streams.

A stream is a set of capabilities rather than a class hierarchy:

  - Readable streams emit data, end, error and close, and can be paused,
    resumed and piped into writables.
  - Writable streams accept chunks with Write, End and EndWith and emit
    drain, error and close.
  - ThroughStream is both at once and passes every written chunk straight
    through as data, without buffering.
  - CompositeStream pairs an independent readable and writable half, like
    the two directions of a socket.

# Events

Each stream has a fixed event vocabulary with typed handler lists:

	through := stream.NewThrough[string]()
	through.OnData(func(chunk string) { fmt.Println(chunk) })
	through.OnClose(func() { fmt.Println("closed") })

Events are emitted synchronously, in registration order, to the handlers
registered when emission starts. Handlers may call back into the stream that
is emitting; in particular a data handler may close or end it. Write reports
the state observed after every handler has returned:

	through.OnData(func(string) { through.Close() })
	through.Write("foo") // false: the stream was closed while emitting

# Lifecycle

End and Close are idempotent. End writes an optional final chunk, emits end,
then closes. Close makes the stream neither readable nor writable, emits
close exactly once and releases every handler. Writing to a stream that is
not writable returns false and drops the chunk; it is not an error.

# Pipes and backpressure

Pipe wires a readable into a writable:

	src.Pipe(through).Pipe(sink)

Every data chunk of src is written into the destination. When Write returns
false the source is paused; when the destination emits drain the source is
resumed. A ThroughStream forwards Pause and Resume to every source piped into
it, so a congested sink at the end of a chain pauses the producer at its
head. By default the destination is ended when the source ends; WithEnd(false)
keeps it open, which is useful when several sources feed one destination.

Failures while forwarding are reported as error events on the destination;
they are never thrown back into the producer.

# Concurrency

Every operation runs to completion on the caller's goroutine. Streams guard
their state so they may be used from several goroutines, but the protocol
assumes one logical producer per stream: goroutine-driven producers such as
those in package source serialize their own emissions.
*/
package stream

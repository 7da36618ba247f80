/*
Package source provides producers that drive readable streams and honor
backpressure.

Every source embeds *stream.ReadableStream and overrides Pause and Resume,
so piping one into a slow destination actually stops it:

	src := source.FromSlice([]int{1, 2, 3}, stream.DefaultConfig())
	src.Pipe(sink)
	src.Start()

Slice emits synchronously on the goroutine that calls Start or Resume.
Channel and Cron emit from a goroutine they own; Channel holds at most one
received value while paused and Cron skips ticks that fire while paused.
Each source ends its stream when its input is exhausted and closes it on
Close.
*/
package source

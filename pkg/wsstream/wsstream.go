// Package wsstream exposes a WebSocket connection as a duplex stream.
//
// Received messages are emitted as data; written chunks are sent as
// messages. Pausing the stream stops reading from the socket, so the peer is
// slowed down by TCP flow control instead of by an unbounded queue.
package wsstream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/vnykmshr/evflow/internal/flowgate"
	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
	"github.com/vnykmshr/evflow/pkg/common/validation"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// Config holds configuration options for a WebSocket stream.
type Config struct {
	stream.Config

	// MessageType is used for every written chunk.
	// Default: websocket.BinaryMessage
	MessageType int

	// WriteTimeout bounds each message and the close frame.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// ReadLimit is the maximum accepted message size in bytes (0 = no limit).
	ReadLimit int64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Config:       stream.DefaultConfig(),
		MessageType:  websocket.BinaryMessage,
		WriteTimeout: 10 * time.Second,
	}
}

// Conn is a WebSocket connection as a stream.Duplex of messages. It owns the
// underlying connection and closes it on Close.
type Conn struct {
	*stream.CompositeStream[[]byte]

	ws     *websocket.Conn
	config Config
	in     *reader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// New wraps an established connection. Reading starts with Start.
func New(ws *websocket.Conn, config Config) (*Conn, error) {
	if err := validation.ValidateNotNil("wsstream", "conn", ws); err != nil {
		return nil, err
	}
	if config.MessageType != websocket.TextMessage && config.MessageType != websocket.BinaryMessage {
		return nil, eferrors.NewValidationError("wsstream", "MessageType", config.MessageType, "must be text or binary").
			WithHint("use websocket.TextMessage or websocket.BinaryMessage")
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if config.ReadLimit > 0 {
		ws.SetReadLimit(config.ReadLimit)
	}

	c := &Conn{ws: ws, config: config}
	c.in = newReader(ws, config.Config)
	out := stream.NewWritableFunc[[]byte](c.send, config.Config)
	out.OnEnd(c.sendClose)

	c.CompositeStream = stream.NewCompositeWithConfig[[]byte](c.in, out, config.Config)
	c.OnClose(c.release)
	return c, nil
}

// Dial connects to url and wraps the connection.
func Dial(ctx context.Context, url string, header http.Header, config Config) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, eferrors.NewOperationError("wsstream", "Dial", err).WithContext(url)
	}
	c, err := New(ws, config)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

// Accept upgrades an HTTP request and wraps the connection. On failure the
// upgrader has already replied to the client.
func Accept(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, config Config) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, eferrors.NewOperationError("wsstream", "Accept", err)
	}
	c, err := New(ws, config)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

// Start launches the read loop. Calls after the first are no-ops.
func (c *Conn) Start() {
	c.in.start()
}

// Done is closed once the read loop has exited, or on Close when Start was
// never called.
func (c *Conn) Done() <-chan struct{} {
	return c.in.done
}

// Pipe implements stream.Readable.Pipe.
func (c *Conn) Pipe(dst stream.Writable[[]byte], opts ...stream.PipeOption) stream.Writable[[]byte] {
	return stream.Pipe[[]byte](c, dst, opts...)
}

// Unpipe implements stream.Readable.Unpipe.
func (c *Conn) Unpipe(dst stream.Writable[[]byte]) {
	stream.Unpipe[[]byte](c, dst)
}

// send is the writable half's consumer. A failed send is an error event;
// the stream is not paused since no drain would follow.
func (c *Conn) send(chunk []byte) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := multierr.Append(
		c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)),
		c.ws.WriteMessage(c.config.MessageType, chunk),
	)
	if err != nil {
		c.EmitError(eferrors.NewOperationError("wsstream", "Write", err))
	}
	return true
}

func (c *Conn) sendClose() {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteTimeout))
		// once the peer has closed, its socket may already be gone
		if err != nil && !c.in.peerClosed() && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
			c.EmitError(eferrors.NewOperationError("wsstream", "End", err))
		}
	})
}

// release runs on close, while error handlers are still attached.
func (c *Conn) release() {
	c.sendClose()
	c.in.stop()
	if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.EmitError(eferrors.NewOperationError("wsstream", "Close", err))
	}
}

// reader is the readable half: a producer driven by ReadMessage.
type reader struct {
	*stream.ReadableStream[[]byte]

	ws     *websocket.Conn
	gate   *flowgate.Gate
	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}

	closedByPeer int32 // atomic
}

func newReader(ws *websocket.Conn, config stream.Config) *reader {
	ctx, cancel := context.WithCancel(context.Background())
	return &reader{
		ReadableStream: stream.NewReadableWithConfig[[]byte](config),
		ws:             ws,
		gate:           flowgate.New(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

func (r *reader) Pause() {
	r.ReadableStream.Pause()
	r.gate.Pause()
}

func (r *reader) Resume() {
	r.ReadableStream.Resume()
	r.gate.Resume()
}

func (r *reader) start() {
	r.once.Do(func() { go r.run() })
}

// stop ends a parked read loop. A loop blocked in ReadMessage exits when the
// connection is closed.
func (r *reader) stop() {
	r.cancel()
	r.once.Do(func() { close(r.done) })
}

func (r *reader) peerClosed() bool {
	return atomic.LoadInt32(&r.closedByPeer) != 0
}

func (r *reader) run() {
	defer close(r.done)

	for {
		if err := r.gate.Wait(r.ctx); err != nil {
			return
		}
		_, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.finish(err)
			return
		}
		if err := r.gate.Wait(r.ctx); err != nil {
			return
		}
		r.EmitData(msg)
	}
}

// finish reports why reading stopped. A normal close from the peer is a plain
// end; anything else is an error followed by end.
func (r *reader) finish(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		atomic.StoreInt32(&r.closedByPeer, 1)
	}
	if r.IsClosed() {
		return
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		r.EmitError(eferrors.NewOperationError("wsstream", "Read", err))
	}
	r.EmitEnd()
}

// Package redisstream connects streams to Redis pub/sub.
//
// A Publisher is a writable stream that PUBLISHes every chunk to one
// channel. A Subscriber is a readable stream of the messages received on
// one or more channels; pausing it stops delivery, and messages keep
// queueing in the client until it is resumed.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
	"github.com/vnykmshr/evflow/pkg/common/validation"
	"github.com/vnykmshr/evflow/pkg/source"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// Config holds configuration for publishers and subscribers.
type Config struct {
	stream.Config

	// Channel is the channel a Publisher publishes to.
	Channel string

	// Channels are the channels a Subscriber listens on.
	Channels []string

	// Timeout bounds each PUBLISH and the subscription handshake.
	// Default: 500ms
	Timeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Config:  stream.DefaultConfig(),
		Timeout: 500 * time.Millisecond,
	}
}

func applyDefaults(config Config) Config {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return config
}

// Publisher publishes every written chunk to a Redis channel.
type Publisher struct {
	*stream.WritableStream[string]

	client    redis.UniversalClient
	config    Config
	published int64 // atomic
}

// NewPublisher creates a publisher. The client is not owned; closing the
// publisher leaves it open.
func NewPublisher(client redis.UniversalClient, config Config) (*Publisher, error) {
	if err := validation.First(
		validation.ValidateNotNil("redisstream", "client", client),
		validation.ValidateNotEmpty("redisstream", "Channel", config.Channel),
	); err != nil {
		return nil, err
	}

	p := &Publisher{client: client, config: applyDefaults(config)}
	p.WritableStream = stream.NewWritableFunc[string](p.publish, config.Config)
	return p, nil
}

// Published returns the number of chunks Redis accepted.
func (p *Publisher) Published() int64 {
	return atomic.LoadInt64(&p.published)
}

// publish never reports congestion: a failed PUBLISH is an error event and
// the stream stays writable.
func (p *Publisher) publish(chunk string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.config.Channel, chunk).Err(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			err = fmt.Errorf("%w: %w", eferrors.ErrTimeout, err)
		}
		p.EmitError(eferrors.NewOperationError("redisstream", "Publish", err).WithContext(p.config.Channel))
		return true
	}
	atomic.AddInt64(&p.published, 1)
	return true
}

// Subscriber is a readable stream of messages received from Redis.
type Subscriber struct {
	*source.Channel[*redis.Message]

	pubsub *redis.PubSub
}

// Subscribe subscribes to config.Channels and waits for Redis to confirm.
// Messages are emitted once Start is called. The subscription is released
// when the stream closes, including when ctx is done.
func Subscribe(ctx context.Context, client redis.UniversalClient, config Config) (*Subscriber, error) {
	if err := validation.ValidateNotNil("redisstream", "client", client); err != nil {
		return nil, err
	}
	if len(config.Channels) == 0 {
		return nil, eferrors.NewValidationError("redisstream", "Channels", config.Channels, "cannot be empty").
			WithHint("name at least one channel")
	}
	config = applyDefaults(config)

	pubsub := client.Subscribe(ctx, config.Channels...)
	hctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if _, err := pubsub.Receive(hctx); err != nil {
		_ = pubsub.Close()
		return nil, eferrors.NewOperationError("redisstream", "Subscribe", err)
	}

	s := &Subscriber{
		Channel: source.FromChannel[*redis.Message](ctx, pubsub.Channel(), config.Config),
		pubsub:  pubsub,
	}
	s.OnClose(func() {
		if err := s.pubsub.Close(); err != nil {
			s.EmitError(eferrors.NewOperationError("redisstream", "Close", err))
		}
	})
	return s, nil
}

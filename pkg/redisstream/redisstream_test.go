package redisstream

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/evflow/internal/testutil"
	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
	"github.com/vnykmshr/evflow/pkg/source"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// liveClient returns a client for a local Redis, skipping the test when none
// answers.
func liveClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func deadClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// silentClient returns a client connected to a server that accepts
// connections and never replies.
func silentClient(t *testing.T) *redis.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testutil.AssertNoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	client := redis.NewClient(&redis.Options{
		Addr:                  ln.Addr().String(),
		DialTimeout:           50 * time.Millisecond,
		ReadTimeout:           50 * time.Millisecond,
		WriteTimeout:          50 * time.Millisecond,
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
	})
	t.Cleanup(func() {
		_ = client.Close()
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	return client
}

func TestConfigValidation(t *testing.T) {
	_, err := NewPublisher(nil, DefaultConfig())
	testutil.AssertEqual(t, eferrors.IsValidationError(err), true)

	var typedNil *redis.Client
	_, err = NewPublisher(typedNil, DefaultConfig())
	testutil.AssertEqual(t, eferrors.IsValidationError(err), true)

	_, err = NewPublisher(deadClient(t), DefaultConfig())
	testutil.AssertEqual(t, errors.Is(err, eferrors.ErrInvalidConfiguration), true)

	_, err = Subscribe(context.Background(), nil, DefaultConfig())
	testutil.AssertEqual(t, eferrors.IsValidationError(err), true)

	_, err = Subscribe(context.Background(), deadClient(t), DefaultConfig())
	testutil.AssertEqual(t, errors.Is(err, eferrors.ErrInvalidConfiguration), true)
}

func TestPublisherFailureIsErrorEvent(t *testing.T) {
	config := DefaultConfig()
	config.Channel = "events"
	pub, err := NewPublisher(deadClient(t), config)
	testutil.AssertNoError(t, err)

	var errs []error
	pub.OnError(func(err error) { errs = append(errs, err) })

	testutil.AssertEqual(t, pub.Write("hello"), true)
	testutil.AssertEqual(t, len(errs), 1)

	var opErr *eferrors.OperationError
	if !errors.As(errs[0], &opErr) {
		t.Fatalf("got %T, want *OperationError", errs[0])
	}
	testutil.AssertEqual(t, opErr.Operation, "Publish")
	testutil.AssertEqual(t, opErr.Context, "events")
	testutil.AssertEqual(t, errors.Is(errs[0], eferrors.ErrTimeout), false)
	testutil.AssertEqual(t, pub.IsWritable(), true)
	testutil.AssertEqual(t, pub.Published(), int64(0))
}

func TestPublisherTimeoutIsRetryable(t *testing.T) {
	config := DefaultConfig()
	config.Channel = "events"
	config.Timeout = 50 * time.Millisecond
	pub, err := NewPublisher(silentClient(t), config)
	testutil.AssertNoError(t, err)

	errs := testutil.NewCallbackTracker()
	pub.OnError(func(err error) { errs.Mark(err) })

	pub.Write("hello")

	errs.AssertCallCount(t, 1)
	err, _ = errs.Value().(error)
	if !errors.Is(err, eferrors.ErrTimeout) || !eferrors.IsRetryable(err) {
		t.Fatalf("got %v, want a retryable ErrTimeout", err)
	}
}

func TestSubscribeUnreachable(t *testing.T) {
	config := DefaultConfig()
	config.Channels = []string{"events"}

	_, err := Subscribe(context.Background(), deadClient(t), config)
	testutil.AssertError(t, err)
	if !strings.Contains(err.Error(), "redisstream.Subscribe failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := DefaultConfig()
	config.Channels = []string{"evflow:test"}
	sub, err := Subscribe(ctx, client, config)
	testutil.AssertNoError(t, err)

	received := make(chan string, 3)
	sub.OnData(func(msg *redis.Message) { received <- msg.Payload })
	sub.Start()

	pubConfig := DefaultConfig()
	pubConfig.Channel = "evflow:test"
	pub, err := NewPublisher(client, pubConfig)
	testutil.AssertNoError(t, err)

	src := source.FromSlice([]string{"a", "b", "c"}, stream.DefaultConfig())
	src.Pipe(pub)
	src.Start()

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-received:
			testutil.AssertEqual(t, got, want)
		case <-ctx.Done():
			t.Fatal("message not received")
		}
	}
	testutil.AssertEqual(t, pub.Published(), int64(3))
	testutil.AssertEqual(t, pub.IsClosed(), true)

	sub.Close()
	<-sub.Done()
}

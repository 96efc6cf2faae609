package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrroy5640/NotificationService/config"
	"github.com/rrroy5640/NotificationService/consumer"
	"github.com/rrroy5640/NotificationService/source"
	"github.com/rrroy5640/NotificationService/store"
)

func TestSQSConfig(t *testing.T) {
	sc := sqsConfig(config.QueueConfig{VisibilityTimeout: 45 * time.Second})
	assert.Equal(t, int32(45), sc.VisibilityTimeoutSeconds)
	assert.Nil(t, sc.FailVisibilityTimeoutSeconds)

	sc = sqsConfig(config.QueueConfig{ReleaseOnFailure: true, FailVisibilityTimeout: 10 * time.Second})
	require.NotNil(t, sc.FailVisibilityTimeoutSeconds)
	assert.Equal(t, int32(10), *sc.FailVisibilityTimeoutSeconds)
}

func TestConsumerOptions_WiresRetries(t *testing.T) {
	cc := config.ConsumerConfig{
		WaitTime:       time.Second,
		ProcessTimeout: time.Second,
		InsertAttempts: 1,
		AckAttempts:    1,
	}
	assert.Len(t, consumerOptions(cc), 4)

	cc.InsertAttempts = 3
	assert.Len(t, consumerOptions(cc), 5)

	cc.AckAttempts = 3
	assert.Len(t, consumerOptions(cc), 6)

	b := backoff(config.ConsumerConfig{RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Second}, 3)
	assert.Equal(t, 3, b.Attempts)
	assert.Equal(t, time.Millisecond, b.BaseDelay)
	assert.Equal(t, time.Second, b.MaxDelay)
	assert.True(t, b.Jitter)
}

func TestEndpoint(t *testing.T) {
	assert.Nil(t, endpoint(config.AWSConfig{}))
	assert.Equal(t, "http://localhost:4566", *endpoint(config.AWSConfig{Endpoint: "http://localhost:4566"}))
}

type stubQueue struct {
	calls atomic.Int32
	err   error
}

func (q *stubQueue) ReceiveOne(ctx context.Context, _ time.Duration) (*source.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *stubQueue) Delete(context.Context, string) error { return nil }

func (q *stubQueue) Stats(context.Context) (source.QueueStats, error) {
	q.calls.Add(1)
	if q.err != nil {
		return source.QueueStats{}, q.err
	}
	return source.QueueStats{Available: 3, InFlight: 1}, nil
}

type nopStore struct{}

func (nopStore) Insert(context.Context, store.Record) error { return nil }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitor(t *testing.T) {
	out := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(out)
	t.Cleanup(func() { log.Logger = prev })

	for _, tc := range []struct {
		name string
		err  error
		want string
	}{
		{name: "stats", want: `"queue_available":3`},
		{name: "stats error", err: errors.New("throttled"), want: "queue stats unavailable"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			q := &stubQueue{err: tc.err}
			cons, err := consumer.New(q, nopStore{})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				monitor(ctx, 5*time.Millisecond, q, cons)
			}()

			require.Eventually(t, func() bool { return q.calls.Load() >= 2 }, time.Second, time.Millisecond)
			cancel()
			<-done

			assert.Contains(t, out.String(), tc.want)
			assert.Contains(t, out.String(), "worker stats")
		})
	}
}

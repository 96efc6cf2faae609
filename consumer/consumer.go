// Package consumer drains a queue one message at a time and records messages
// of known types in a store.
//
// Each cycle receives at most one message (long poll), decodes it, dispatches
// it by type, deletes it from the queue once dispatch succeeded, and then
// waits a short poll interval. Failures are logged and never stop the loop;
// only cancellation of the Run context does. A message is deleted only after
// its handler returned successfully, so delivery to the store is at-least-once.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rrroy5640/NotificationService/envelope"
	"github.com/rrroy5640/NotificationService/source"
	"github.com/rrroy5640/NotificationService/store"
)

// Defaults applied by New when the matching option is not given.
const (
	DefaultWaitTime       = 20 * time.Second
	DefaultPollInterval   = 1 * time.Second
	DefaultProcessTimeout = 30 * time.Second
)

// Consumer runs the receive, dispatch and acknowledge loop over one queue.
type Consumer struct {
	queue source.Queue
	store store.Store
	log   zerolog.Logger

	wait           time.Duration
	pollInterval   time.Duration
	processTimeout time.Duration

	insertRetry RetryPolicy
	ackRetry    RetryPolicy

	handlers map[MessageType]HandlerFunc

	stats stats
}

// Option configures a Consumer in New.
type Option func(*Consumer)

// WithLogger replaces the global logger scoped to component=consumer.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Consumer) { c.log = l }
}

// WithWaitTime sets how long one receive may block waiting for a message.
func WithWaitTime(d time.Duration) Option {
	return func(c *Consumer) { c.wait = d }
}

// WithPollInterval sets the pause between cycles.
func WithPollInterval(d time.Duration) Option {
	return func(c *Consumer) { c.pollInterval = d }
}

// WithProcessTimeout bounds the dispatch and acknowledgement of one received
// message. The bound also applies while shutting down, since a message
// already received is finished rather than abandoned.
func WithProcessTimeout(d time.Duration) Option {
	return func(c *Consumer) { c.processTimeout = d }
}

// WithInsertRetry wraps store inserts. The default makes one attempt.
func WithInsertRetry(p RetryPolicy) Option {
	return func(c *Consumer) { c.insertRetry = p }
}

// WithAckRetry wraps queue deletes. The default makes one attempt.
func WithAckRetry(p RetryPolicy) Option {
	return func(c *Consumer) { c.ackRetry = p }
}

// New returns a Consumer reading from queue and recording into st.
func New(queue source.Queue, st store.Store, opts ...Option) (*Consumer, error) {
	if queue == nil {
		return nil, errors.New("queue is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}

	c := &Consumer{
		queue:          queue,
		store:          st,
		log:            log.Logger.With().Str("component", "consumer").Logger(),
		wait:           DefaultWaitTime,
		pollInterval:   DefaultPollInterval,
		processTimeout: DefaultProcessTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.wait < 0 {
		return nil, fmt.Errorf("wait time must not be negative, got %s", c.wait)
	}
	if c.pollInterval < 0 {
		return nil, fmt.Errorf("poll interval must not be negative, got %s", c.pollInterval)
	}
	if c.processTimeout <= 0 {
		return nil, fmt.Errorf("process timeout must be positive, got %s", c.processTimeout)
	}
	if c.insertRetry == nil {
		c.insertRetry = nopRetry{}
	}
	if c.ackRetry == nil {
		c.ackRetry = nopRetry{}
	}
	c.handlers = c.handlerTable()

	return c, nil
}

// Run consumes until ctx is canceled and then returns nil. Message level
// failures are logged and do not end the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Dur("wait", c.wait).
		Dur("poll_interval", c.pollInterval).
		Msg("consumer started")

	for {
		if ctx.Err() != nil {
			break
		}

		c.cycle(ctx)

		if !sleep(ctx, c.pollInterval) {
			break
		}
	}

	s := c.Stats()
	c.log.Info().
		Int64("received", s.Received).
		Int64("stored", s.Stored).
		Int64("acknowledged", s.Acknowledged).
		Int64("failed", s.DecodeFailed+s.DispatchFailed+s.AckFailed).
		Msg("consumer stopped")
	return nil
}

func (c *Consumer) cycle(ctx context.Context) {
	msg, err := c.queue.ReceiveOne(ctx, c.wait)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error().Err(err).Msg("receive failed")
		return
	}
	if msg == nil {
		return
	}
	c.stats.received.Add(1)

	// A received message is finished even if shutdown begins meanwhile, so it
	// is not left invisible on the queue until its visibility timeout.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.processTimeout)
	defer cancel()

	err = c.process(pctx, msg)
	if err == nil {
		return
	}

	l := c.log.With().Str("message_id", msg.ID).Logger()

	var (
		decodeErr   *envelope.DecodeError
		dispatchErr *DispatchError
		ackErr      *AcknowledgeError
	)
	switch {
	case errors.As(err, &decodeErr):
		c.stats.decodeFailed.Add(1)
		l.Error().Err(err).Msg("undecodable message left on queue")

	case errors.As(err, &dispatchErr):
		c.stats.dispatchFailed.Add(1)
		l.Error().Err(err).
			Str("message_type", string(dispatchErr.MessageType)).
			Msg("dispatch failed, message will be redelivered")

		if r, ok := c.queue.(source.Releaser); ok {
			if err := r.Release(pctx, msg.ReceiptHandle); err != nil {
				l.Warn().Err(err).Msg("release failed")
			}
		}

	case errors.As(err, &ackErr):
		c.stats.ackFailed.Add(1)
		l.Warn().Err(err).Msg("delete failed, message may be redelivered")

	default:
		l.Error().Err(err).Msg("message processing failed")
	}
}

// process decodes, dispatches and acknowledges one message. Panics in the
// handler or the delete are reported by dispatch and acknowledge; any other
// panic surfaces as a plain error and the message stays on the queue.
func (c *Consumer) process(ctx context.Context, msg *source.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message %s: %v", msg.ID, r)
		}
	}()

	env, err := envelope.Decode(msg.Body)
	if err != nil {
		return err
	}
	typ := MessageType(env.MessageType())

	l := c.log.With().
		Str("message_id", msg.ID).
		Str("message_type", string(typ)).
		Logger()
	l.Debug().Msg("processing message")

	if h, ok := c.handlers[typ]; ok {
		if err := c.dispatch(ctx, msg, typ, h, env); err != nil {
			return err
		}
		c.stats.stored.Add(1)
		l.Info().Msg("message stored")
	} else {
		c.stats.unrecognized.Add(1)
		l.Warn().Msg("unrecognized message type, acknowledging without action")
	}

	if err := c.acknowledge(ctx, msg); err != nil {
		return err
	}
	c.stats.acknowledged.Add(1)
	l.Debug().Msg("message deleted")
	return nil
}

// dispatch runs h and reports a failure or panic as a DispatchError.
func (c *Consumer) dispatch(ctx context.Context, msg *source.Message, typ MessageType, h HandlerFunc, env envelope.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{MessageID: msg.ID, MessageType: typ, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := h(ctx, env); err != nil {
		return &DispatchError{MessageID: msg.ID, MessageType: typ, Err: err}
	}
	return nil
}

// acknowledge deletes msg through the ack retry policy and reports a failure
// or panic as an AcknowledgeError.
func (c *Consumer) acknowledge(ctx context.Context, msg *source.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AcknowledgeError{MessageID: msg.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := c.ackRetry.Do(ctx, func(ctx context.Context) error {
		return c.queue.Delete(ctx, msg.ReceiptHandle)
	}); err != nil {
		return &AcknowledgeError{MessageID: msg.ID, Err: err}
	}
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats counts cycle outcomes since the consumer was created.
type Stats struct {
	Received       int64
	Stored         int64
	Acknowledged   int64
	Unrecognized   int64
	DecodeFailed   int64
	DispatchFailed int64
	AckFailed      int64
}

type stats struct {
	received, stored, acknowledged, unrecognized atomic.Int64
	decodeFailed, dispatchFailed, ackFailed      atomic.Int64
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Received:       c.stats.received.Load(),
		Stored:         c.stats.stored.Load(),
		Acknowledged:   c.stats.acknowledged.Load(),
		Unrecognized:   c.stats.unrecognized.Load(),
		DecodeFailed:   c.stats.decodeFailed.Load(),
		DispatchFailed: c.stats.dispatchFailed.Load(),
		AckFailed:      c.stats.ackFailed.Load(),
	}
}

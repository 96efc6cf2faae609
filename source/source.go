// Package source defines the queue a consumer drains and its SQS implementation.
package source

import (
	"context"
	"time"
)

// Message is one received queue message. It is borrowed for a single
// processing attempt; the queue owns it until deleted through ReceiptHandle.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queue receives at most one message per call and deletes acknowledged ones.
//
// ReceiveOne blocks up to wait for a message to become available and returns
// (nil, nil) when none did. It must return promptly once ctx is canceled.
type Queue interface {
	ReceiveOne(ctx context.Context, wait time.Duration) (*Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Releaser is implemented by queues that can hand a failed message back for
// earlier redelivery instead of waiting out the full visibility timeout.
type Releaser interface {
	Release(ctx context.Context, receiptHandle string) error
}

// QueueStats is an approximate snapshot of queue depth.
type QueueStats struct {
	Available int64
	InFlight  int64
	Delayed   int64
}

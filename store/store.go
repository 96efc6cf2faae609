// Package store persists consumed messages.
package store

import (
	"context"
	"errors"
)

// Record is the persisted form of an envelope. Identity is assigned by the
// backing store.
type Record struct {
	MessageType string `bson:"MessageType" parquet:"message_type"`
	Payload     string `bson:"Payload" parquet:"payload"`
}

// Store inserts one record per call. Inserts are not deduplicated: a message
// redelivered by the queue is stored again.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}

var ErrEmptyMessageType = errors.New("record message type is empty")

func (r Record) validate() error {
	if r.MessageType == "" {
		return ErrEmptyMessageType
	}
	return nil
}

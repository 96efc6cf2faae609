package consumer

import (
	"context"

	"github.com/rrroy5640/NotificationService/envelope"
	"github.com/rrroy5640/NotificationService/store"
)

// MessageType is the closed set of envelope types this worker acts on.
type MessageType string

const (
	SendEmail MessageType = "SendEmail"
)

// HandlerFunc acts on one decoded envelope. Handlers must tolerate being run
// again for the same message after a redelivery.
type HandlerFunc func(ctx context.Context, env envelope.Envelope) error

func (c *Consumer) handlerTable() map[MessageType]HandlerFunc {
	return map[MessageType]HandlerFunc{
		SendEmail: c.persist,
	}
}

// persist stores the envelope verbatim. Sending the email itself is done by
// a downstream reader of the store.
func (c *Consumer) persist(ctx context.Context, env envelope.Envelope) error {
	rec := store.Record{MessageType: env.MessageType(), Payload: env.Payload()}
	return c.insertRetry.Do(ctx, func(ctx context.Context) error {
		return c.store.Insert(ctx, rec)
	})
}

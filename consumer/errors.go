package consumer

import "fmt"

// DispatchError reports a failed handler for a recognized message type. The
// message is not deleted and will be redelivered by the queue.
type DispatchError struct {
	MessageID   string
	MessageType MessageType
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s message %s: %v", e.MessageType, e.MessageID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// AcknowledgeError reports a failed delete after a successful dispatch. The
// queue may redeliver the message, which then gets stored a second time.
type AcknowledgeError struct {
	MessageID string
	Err       error
}

func (e *AcknowledgeError) Error() string {
	return fmt.Sprintf("acknowledge message %s: %v", e.MessageID, e.Err)
}

func (e *AcknowledgeError) Unwrap() error { return e.Err }

package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// MaxWait is the longest long-poll SQS accepts.
const MaxWait = 20 * time.Second

var ErrEmptyReceiptHandle = errors.New("empty receipt handle")

type SQSConfig struct {
	// VisibilityTimeoutSeconds overrides the queue default when > 0.
	VisibilityTimeoutSeconds int32

	// FailVisibilityTimeoutSeconds, when set, is applied to messages released
	// after a failed dispatch so they come back sooner (0 = immediately).
	FailVisibilityTimeoutSeconds *int32
}

func (c SQSConfig) validate() error {
	if c.VisibilityTimeoutSeconds < 0 || c.VisibilityTimeoutSeconds > 43200 {
		return fmt.Errorf("visibility timeout must be between 0 and 43200 seconds, got %d", c.VisibilityTimeoutSeconds)
	}
	if c.FailVisibilityTimeoutSeconds != nil && (*c.FailVisibilityTimeoutSeconds < 0 || *c.FailVisibilityTimeoutSeconds > 43200) {
		return fmt.Errorf("fail visibility timeout must be between 0 and 43200 seconds, got %d", *c.FailVisibilityTimeoutSeconds)
	}
	return nil
}

var DefaultSQSConfig = SQSConfig{}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQS is a Queue backed by one SQS queue URL.
type SQS struct {
	cfg SQSConfig

	client      sqsAPI
	queueURL    string
	queueURLPtr *string
}

func NewSQS(client sqsAPI, queueURL string, cfg SQSConfig) (*SQS, error) {
	if client == nil {
		return nil, errors.New("sqs client is required")
	}
	if queueURL == "" {
		return nil, errors.New("queue url is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &SQS{
		cfg:      cfg,
		client:   client,
		queueURL: queueURL,
	}
	s.queueURLPtr = &s.queueURL
	return s, nil
}

// ReceiveOne long-polls for a single message.
func (s *SQS) ReceiveOne(ctx context.Context, wait time.Duration) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	waitSeconds := int32(wait / time.Second)
	if waitSeconds < 0 {
		waitSeconds = 0
	}
	if waitSeconds > int32(MaxWait/time.Second) {
		waitSeconds = int32(MaxWait / time.Second)
	}

	// The SDK call honours ctx; the extra deadline only guards against a
	// server that never answers the long poll.
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(waitSeconds+5)*time.Second)
	defer cancel()

	out, err := s.client.ReceiveMessage(reqCtx, &sqs.ReceiveMessageInput{
		QueueUrl:              s.queueURLPtr,
		MaxNumberOfMessages:   1,
		WaitTimeSeconds:       waitSeconds,
		VisibilityTimeout:     s.cfg.VisibilityTimeoutSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}
	if out == nil || len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	return &Message{
		ID:            aws.ToString(m.MessageId),
		Body:          aws.ToString(m.Body),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
	}, nil
}

// Delete acknowledges a message.
func (s *SQS) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return ErrEmptyReceiptHandle
	}
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      s.queueURLPtr,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// Release shortens the visibility timeout of a failed message. Without
// FailVisibilityTimeoutSeconds it does nothing and the queue default applies.
func (s *SQS) Release(ctx context.Context, receiptHandle string) error {
	if s.cfg.FailVisibilityTimeoutSeconds == nil {
		return nil
	}
	if receiptHandle == "" {
		return ErrEmptyReceiptHandle
	}
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          s.queueURLPtr,
		ReceiptHandle:     &receiptHandle,
		VisibilityTimeout: *s.cfg.FailVisibilityTimeoutSeconds,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sqs change visibility: %w", err)
	}
	return nil
}

// Stats reads the approximate queue depth attributes.
func (s *SQS) Stats(ctx context.Context) (QueueStats, error) {
	out, err := s.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: s.queueURLPtr,
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return QueueStats{}, fmt.Errorf("sqs queue attributes: %w", err)
	}

	attr := func(name sqstypes.QueueAttributeName) int64 {
		n, _ := strconv.ParseInt(out.Attributes[string(name)], 10, 64)
		return n
	}
	return QueueStats{
		Available: attr(sqstypes.QueueAttributeNameApproximateNumberOfMessages),
		InFlight:  attr(sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
		Delayed:   attr(sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed),
	}, nil
}

// Package queue provides the SQS-based producer for violation audit events.
// Enforcement never waits on the queue: publishing is fire-and-forget and a
// failed send only loses an audit record, never a decision.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"dmcaguard/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ViolationPublisher sends violation events to the review queue. It
// implements the event sink consumed by the abuse service.
type ViolationPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewViolationPublisher creates a ViolationPublisher for the given queue.
func NewViolationPublisher(client SQSSender, queueURL string, logger *slog.Logger) *ViolationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViolationPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// PublishViolation serializes the event to JSON and sends it to the review
// queue. The violation kind and abuse state ride along as message attributes
// so reviewers can filter without parsing bodies.
func (p *ViolationPublisher) PublishViolation(ctx context.Context, ev types.ViolationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal violation event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Kind)),
			},
			"state": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.State)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send violation event to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "violation event published",
		"event_id", ev.EventID,
		"user_id", ev.UserID,
		"kind", string(ev.Kind),
		"state", string(ev.State),
	)
	return nil
}

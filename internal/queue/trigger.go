// Package queue provides the SQS-based message producer that notifies the
// stats worker after an ingestion run lands new observations.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"wxarchive/internal/config"
	"wxarchive/internal/types"
)

// SQSSender is the one SQS call the trigger needs. *sqs.Client satisfies it
// in production; tests substitute a recorder.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// StatsRefreshTrigger serializes a types.StatsRefreshMessage and sends it to
// the stats refresh queue. The message is a trigger, not a data carrier: the
// worker recomputes all aggregates from storage, so duplicates are harmless
// and delivery is intentionally fire-and-forget from the ingester's side.
type StatsRefreshTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewStatsRefreshTrigger creates a trigger publishing to the configured
// stats refresh queue. It reads the queue URL from the AWSConfig.
func NewStatsRefreshTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *StatsRefreshTrigger {
	return &StatsRefreshTrigger{
		client:   client,
		queueURL: awsCfg.StatsRefreshQueue,
		logger:   logger,
	}
}

// Publish serializes the message to JSON and dispatches it to the stats
// refresh queue. The refresh reason is duplicated into a message attribute
// so operators can filter queue traffic without parsing bodies.
func (t *StatsRefreshTrigger) Publish(ctx context.Context, msg types.StatsRefreshMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal StatsRefreshMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Reason)),
			},
		},
	}

	_, err = t.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send StatsRefreshMessage to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "stats refresh message sent",
		"queue_url", t.queueURL,
		"run_id", msg.RunID,
		"reason", string(msg.Reason),
		"rows_written", msg.RowsWritten,
	)

	return nil
}

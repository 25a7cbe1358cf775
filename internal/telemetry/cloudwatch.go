// Package telemetry publishes job and API metrics to CloudWatch. Publishing
// is best-effort everywhere: a metrics outage must never fail an ingestion
// run or an API request.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"wxarchive/internal/core"
	"wxarchive/internal/ingest"
	"wxarchive/internal/stats"
	"wxarchive/internal/types"
)

// CloudWatchClient is the one CloudWatch call the publisher needs;
// *cloudwatch.Client satisfies it, and tests substitute a recorder.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// recordRequestTimeout bounds the detached publish done per API request.
const recordRequestTimeout = 5 * time.Second

// Publisher emits the archive's metrics to a CloudWatch namespace:
//   - LinesParsed, RowsAccepted, RowsRejected, FilesProcessed,
//     BatchesCommitted, IngestDuration, IngestSkipped: Dims {Job: ingest}
//   - StatsRows, StatsDuration: Dims {Job: stats}
//   - QueuePublishError: Dims {Job: ingest} -- failed refresh publishes
//   - APILatency, APIRequestCount: Dims {Method, Endpoint, Status}
type Publisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// Compile-time assertions that Publisher satisfies every consumer-side
// metrics interface it is wired into.
var (
	_ ingest.MetricPublisher = (*Publisher)(nil)
	_ stats.MetricPublisher  = (*Publisher)(nil)
	_ core.MetricsCollector  = (*Publisher)(nil)
)

// NewPublisher creates a Publisher for the given namespace. An empty
// namespace falls back to the default.
func NewPublisher(client CloudWatchClient, namespace string, logger *slog.Logger) *Publisher {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// jobDims returns the Job dimension shared by all batch job metrics.
func jobDims(job string) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimJob),
			Value: aws.String(job),
		},
	}
}

// count builds a Count datum.
func count(name string, value float64, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

// millis builds a Milliseconds datum.
func millis(name string, d time.Duration, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims,
	}
}

// PublishIngest emits the outcome of one ingestion run in a single
// PutMetricData call. A skipped run emits only the IngestSkipped marker so
// dashboards can tell "did nothing" from "wrote nothing".
func (p *Publisher) PublishIngest(ctx context.Context, summary types.IngestSummary) error {
	dims := jobDims("ingest")

	var data []cwtypes.MetricDatum
	if summary.Skipped {
		data = []cwtypes.MetricDatum{
			count(types.MetricIngestSkipped, 1, dims),
		}
	} else {
		data = []cwtypes.MetricDatum{
			count(types.MetricLinesParsed, float64(summary.Lines), dims),
			count(types.MetricRowsAccepted, float64(summary.Accepted), dims),
			count(types.MetricRowsRejected, float64(summary.Rejected), dims),
			count(types.MetricFilesProcessed, float64(len(summary.Files)), dims),
			count(types.MetricBatchesCommitted, float64(summary.Batches), dims),
			millis(types.MetricIngestDuration, summary.Duration(), dims),
		}
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("telemetry: failed to publish ingest metrics: %w", err)
	}
	return nil
}

// PublishQueueError counts one failed stats refresh publish.
func (p *Publisher) PublishQueueError(ctx context.Context) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(types.MetricQueuePublishError, 1, jobDims("ingest")),
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry: failed to publish queue error metric: %w", err)
	}
	return nil
}

// PublishStats emits the outcome of one aggregation sweep.
func (p *Publisher) PublishStats(ctx context.Context, summary types.StatsSummary) error {
	dims := jobDims("stats")

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(types.MetricStatsRows, float64(summary.Rows), dims),
			millis(types.MetricStatsDuration, summary.Duration(), dims),
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry: failed to publish stats metrics: %w", err)
	}
	return nil
}

// RecordRequest emits latency and count for one API request. It detaches
// from the request goroutine so a slow CloudWatch endpoint cannot hold open
// client connections; failures are logged and dropped.
func (p *Publisher) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimMethod),
			Value: aws.String(method),
		},
		{
			Name:  aws.String(types.DimEndpoint),
			Value: aws.String(endpoint),
		},
		{
			Name:  aws.String(types.DimStatus),
			Value: aws.String(status),
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordRequestTimeout)
		defer cancel()

		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace: aws.String(p.namespace),
			MetricData: []cwtypes.MetricDatum{
				millis(types.MetricAPILatency, duration, dims),
				count(types.MetricAPIRequestCount, 1, dims),
			},
		})
		if err != nil {
			p.logger.Error("failed to record request metrics",
				"error", err,
				"method", method,
				"endpoint", endpoint,
				"status", status,
			)
		}
	}()
}

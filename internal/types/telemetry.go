package types

// CloudWatch metric vocabulary.
// Publishers MUST NOT emit metric or dimension names outside this list.
const (
	// Metric Names
	MetricLinesParsed       = "LinesParsed"
	MetricRowsAccepted      = "RowsAccepted"
	MetricRowsRejected      = "RowsRejected"
	MetricFilesProcessed    = "FilesProcessed"
	MetricBatchesCommitted  = "BatchesCommitted"
	MetricIngestDuration    = "IngestDuration"
	MetricIngestSkipped     = "IngestSkipped"
	MetricStatsRows         = "StatsRows"
	MetricStatsDuration     = "StatsDuration"
	MetricAPILatency        = "APILatency"
	MetricAPIRequestCount   = "APIRequestCount"
	MetricQueuePublishError = "QueuePublishError"

	// Dimension Keys
	DimStation  = "Station"
	DimJob      = "Job"
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimReason   = "Reason"

	// Metric Namespace
	MetricNamespace = "WxArchive"
)

// Station file field layout.
// Canonical column order for the tab-separated daily records. The upstream
// extraction scripts MUST emit these positions.
const (
	FieldDate        = 0
	FieldMaxTemp     = 1
	FieldMinTemp     = 2
	FieldPrecip      = 3
	MinFieldsPerLine = 4
)

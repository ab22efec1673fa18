package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	QueryDuration       metric.Float64Histogram
	CacheEvents         metric.Int64Counter
	EmbeddingDuration   metric.Float64Histogram
	IngestDuration      metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	VectorOperations    metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("ragdocs-api")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"rag.query.duration",
		metric.WithDescription("End-to-end query pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvents, err := meter.Int64Counter(
		"rag.cache.events",
		metric.WithDescription("Query cache hits, misses and evictions"),
	)
	if err != nil {
		return nil, err
	}

	embeddingDuration, err := meter.Float64Histogram(
		"rag.embedding.duration",
		metric.WithDescription("Embedding call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"rag.ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	vectorOperations, err := meter.Int64Counter(
		"vectorstore.operations.total",
		metric.WithDescription("Total vector store operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		QueryDuration:       queryDuration,
		CacheEvents:         cacheEvents,
		EmbeddingDuration:   embeddingDuration,
		IngestDuration:      ingestDuration,
		TokensUsed:          tokensUsed,
		CircuitBreakerState: circuitBreakerState,
		VectorOperations:    vectorOperations,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordQuery records the end-to-end query pipeline duration
func (m *Metrics) RecordQuery(queryType string, cacheHit bool, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("rag.query_type", queryType),
		attribute.Bool("rag.cache_hit", cacheHit),
	}

	m.QueryDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCacheEvent records a query cache hit, miss or eviction
func (m *Metrics) RecordCacheEvent(event string) {
	m.CacheEvents.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("cache.event", event)))
}

// RecordEmbedding records an embedding call per lane
func (m *Metrics) RecordEmbedding(lane string, count int, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("rag.lane", lane),
		attribute.Int("rag.batch_size", count),
	}

	m.EmbeddingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngest records document ingestion metrics
func (m *Metrics) RecordIngest(status string, duration float64) {
	m.IngestDuration.Record(context.Background(), duration,
		metric.WithAttributes(attribute.String("ingest.status", status)))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordVectorOperation records a vector store operation per lane collection
func (m *Metrics) RecordVectorOperation(operation, collection string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("vectorstore.operation", operation),
		attribute.String("vectorstore.collection", collection),
		attribute.Bool("vectorstore.success", success),
	}

	m.VectorOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

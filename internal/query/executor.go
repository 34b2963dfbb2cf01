package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"phospho/internal/api"
)

// PivotRunner runs aggregations on the backend
type PivotRunner interface {
	RunPivot(ctx context.Context, projectID string, request *api.PivotRequest) (*api.PivotResponse, error)
}

// Executor runs analytics queries against the backend pivot endpoint
type Executor struct {
	client  PivotRunner
	catalog *FieldCatalog
}

// NewExecutor creates a new query executor
func NewExecutor(client PivotRunner, catalog *FieldCatalog) *Executor {
	return &Executor{
		client:  client,
		catalog: catalog,
	}
}

// Execute validates q, converts it to a pivot request and runs it
func (e *Executor) Execute(ctx context.Context, q AnalyticsQuery, chartType ChartType) (*QueryResult, error) {
	startTime := time.Now()

	if err := Validate(q, chartType, e.catalog); err != nil {
		return nil, fmt.Errorf("query validation failed: %w", err)
	}

	request := ToPivotRequest(q)
	response, err := e.client.RunPivot(ctx, q.ProjectID, request)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &QueryResult{
		QueryID:       uuid.NewString(),
		QueryHash:     api.PivotHash(q.ProjectID, request),
		Query:         q.Clone(),
		ChartType:     chartType,
		Axes:          ChartAxes(q, chartType),
		Rows:          response.PivotTable,
		RowCount:      len(response.PivotTable),
		ExecutedAt:    startTime,
		ExecutionTime: time.Since(startTime).String(),
		FromCache:     response.FromCache,
	}, nil
}

// ToPivotRequest converts a query into the backend pivot body. Counts use
// the per-collection counters; other operations aggregate the field.
func ToPivotRequest(q AnalyticsQuery) *api.PivotRequest {
	request := &api.PivotRequest{
		Metric:  PivotMetric(q.Collection, q.AggregationOperation),
		Filters: q.Filters,
	}
	if q.AggregationOperation != OperationCount && q.AggregationField != "" {
		field := q.AggregationField
		request.MetricMetadata = &field
	}
	if len(q.Dimensions) > 0 {
		breakdown := q.Dimensions[0]
		request.BreakdownBy = &breakdown
	}
	return request
}

// PivotMetric names the backend metric for a collection and operation
func PivotMetric(c Collection, op Operation) string {
	if op != OperationCount {
		return string(op)
	}
	switch c {
	case CollectionSessions:
		return "nb_sessions"
	case CollectionEvents:
		return "event_count"
	default:
		return "nb_messages"
	}
}

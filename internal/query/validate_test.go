package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuery() AnalyticsQuery {
	return AnalyticsQuery{
		ProjectID:            "proj-1",
		Collection:           CollectionTasks,
		AggregationOperation: OperationAvg,
		AggregationField:     "sentiment.score",
		Dimensions:           []string{"flag"},
		TimeStep:             TimeStepDay,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *AnalyticsQuery)
		chart  ChartType
		kind   error
	}{
		{"valid", func(q *AnalyticsQuery) {}, ChartLine, nil},
		{"missing project", func(q *AnalyticsQuery) { q.ProjectID = "" }, ChartLine, ErrMissingProjectID},
		{"bad collection", func(q *AnalyticsQuery) { q.Collection = "clusters" }, ChartLine, ErrInvalidCollection},
		{"bad operation", func(q *AnalyticsQuery) { q.AggregationOperation = "median" }, ChartLine, ErrInvalidOperation},
		{"events sum", func(q *AnalyticsQuery) {
			q.Collection = CollectionEvents
			q.AggregationOperation = OperationSum
			q.Dimensions = nil
		}, ChartLine, ErrInvalidAggregationForCollection},
		{"missing field", func(q *AnalyticsQuery) { q.AggregationField = "" }, ChartLine, ErrMissingAggregationField},
		{"field of other collection", func(q *AnalyticsQuery) { q.AggregationField = "session_length" }, ChartLine, ErrUnknownAggregationField},
		{"field with count", func(q *AnalyticsQuery) { q.AggregationOperation = OperationCount }, ChartLine, ErrUnexpectedAggregationField},
		{"unknown dimension", func(q *AnalyticsQuery) { q.Dimensions = []string{"event_name"} }, ChartLine, ErrUnknownDimension},
		{"duplicate dimension", func(q *AnalyticsQuery) { q.Dimensions = []string{"flag", "flag"} }, ChartLine, ErrDuplicateDimension},
		{"bad chart", func(q *AnalyticsQuery) {}, "scatter", ErrInvalidChartType},
		{"pie with time step", func(q *AnalyticsQuery) {}, ChartPie, ErrInvalidTimeStep},
		{"pie without time step", func(q *AnalyticsQuery) { q.TimeStep = "" }, ChartPie, nil},
		{"line without time step", func(q *AnalyticsQuery) { q.TimeStep = "" }, ChartLine, ErrInvalidTimeStep},
		{"inverted range", func(q *AnalyticsQuery) {
			q.Filters = Filters{CreatedAtStart: int64p(200), CreatedAtEnd: int64p(100)}
		}, ChartLine, ErrInvalidDateRange},
	}

	catalog := NewFieldCatalog()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery()
			tt.mutate(&q)

			err := Validate(q, tt.chart, catalog)
			if tt.kind == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.kind)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.NotEqual(t, "Invalid", verr.KindName())
		})
	}
}

func TestOperationsFor(t *testing.T) {
	assert.Equal(t, []Operation{OperationCount}, OperationsFor(CollectionEvents))
	assert.Equal(t, Operations, OperationsFor(CollectionSessions))
}

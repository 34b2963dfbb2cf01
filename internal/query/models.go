package query

import (
	"time"

	"phospho/internal/api"
)

// Collection is the record type an analytics query aggregates
type Collection string

const (
	CollectionTasks    Collection = "tasks"
	CollectionSessions Collection = "sessions"
	CollectionEvents   Collection = "events"
)

// Collections lists every collection in display order
var Collections = []Collection{CollectionTasks, CollectionSessions, CollectionEvents}

// Operation is the aggregation applied to the collection
type Operation string

const (
	OperationCount Operation = "count"
	OperationSum   Operation = "sum"
	OperationAvg   Operation = "avg"
	OperationMin   Operation = "min"
	OperationMax   Operation = "max"
)

// Operations lists every aggregation operation in display order
var Operations = []Operation{OperationCount, OperationSum, OperationAvg, OperationMin, OperationMax}

// ChartType selects how a query result is drawn
type ChartType string

const (
	ChartLine       ChartType = "line"
	ChartStackedBar ChartType = "stackedBar"
	ChartPie        ChartType = "pie"
)

// ChartTypes lists every chart type in display order
var ChartTypes = []ChartType{ChartLine, ChartStackedBar, ChartPie}

// TimeStep is the bucket size of a time series. The zero value means
// the query is not bucketed by time.
type TimeStep string

const (
	TimeStepDay TimeStep = "day"
)

// TimeSteps lists the supported time steps
var TimeSteps = []TimeStep{TimeStepDay}

// DateRangePreset is a symbolic date range resolved against the current time
type DateRangePreset string

const (
	RangeLast24Hours DateRangePreset = "last-24-hours"
	RangeLast7Days   DateRangePreset = "last-7-days"
	RangeLast30Days  DateRangePreset = "last-30-days"
	RangeAllTime     DateRangePreset = "all-time"
)

// DateRangePresets lists every preset in display order
var DateRangePresets = []DateRangePreset{RangeLast24Hours, RangeLast7Days, RangeLast30Days, RangeAllTime}

// Filters is a sparse set of constraints. Unset fields are unconstrained.
type Filters struct {
	CreatedAtStart *int64 `json:"created_at_start,omitempty" yaml:"created_at_start,omitempty"` // unix seconds
	CreatedAtEnd   *int64 `json:"created_at_end,omitempty" yaml:"created_at_end,omitempty"`     // unix seconds

	Flag      string                 `json:"flag,omitempty" yaml:"flag,omitempty"`
	Language  string                 `json:"language,omitempty" yaml:"language,omitempty"`
	Sentiment string                 `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
	EventName []string               `json:"event_name,omitempty" yaml:"event_name,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsEmpty reports whether no constraint is set
func (f Filters) IsEmpty() bool {
	return f.CreatedAtStart == nil && f.CreatedAtEnd == nil &&
		f.Flag == "" && f.Language == "" && f.Sentiment == "" &&
		len(f.EventName) == 0 && len(f.Metadata) == 0
}

func (f Filters) clone() Filters {
	out := f
	if f.CreatedAtStart != nil {
		v := *f.CreatedAtStart
		out.CreatedAtStart = &v
	}
	if f.CreatedAtEnd != nil {
		v := *f.CreatedAtEnd
		out.CreatedAtEnd = &v
	}
	if f.EventName != nil {
		out.EventName = append([]string(nil), f.EventName...)
	}
	if f.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(f.Metadata))
		for k, v := range f.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// AnalyticsQuery is the query being edited. It has no persistence of its
// own until it is materialized into a DashboardTile.
type AnalyticsQuery struct {
	ProjectID            string     `json:"project_id" yaml:"project_id"`
	Collection           Collection `json:"collection" yaml:"collection"`
	AggregationOperation Operation  `json:"aggregation_operation" yaml:"aggregation_operation"`
	AggregationField     string     `json:"aggregation_field,omitempty" yaml:"aggregation_field,omitempty"`
	Dimensions           []string   `json:"dimensions" yaml:"dimensions"`
	TimeStep             TimeStep   `json:"time_step,omitempty" yaml:"time_step,omitempty"`
	Filters              Filters    `json:"filters" yaml:"filters"`
}

// Clone returns a deep copy so callers never share slices with the state
func (q AnalyticsQuery) Clone() AnalyticsQuery {
	out := q
	out.Dimensions = append(make([]string, 0, len(q.Dimensions)), q.Dimensions...)
	out.Filters = q.Filters.clone()
	return out
}

// DefaultQuery returns the query the editor starts from
func DefaultQuery(projectID string) AnalyticsQuery {
	return AnalyticsQuery{
		ProjectID:            projectID,
		Collection:           CollectionTasks,
		AggregationOperation: OperationCount,
		Dimensions:           []string{},
		TimeStep:             TimeStepDay,
	}
}

// Patch is a partial AnalyticsQuery. Nil fields are left untouched.
// Setting AggregationField or TimeStep to a pointer to the empty value
// clears them. Filters replaces the whole filter set.
type Patch struct {
	ProjectID            *string
	Collection           *Collection
	AggregationOperation *Operation
	AggregationField     *string
	Dimensions           *[]string
	TimeStep             *TimeStep
	Filters              *Filters
}

// DashboardTile is a saved chart configuration shown on a project dashboard
type DashboardTile struct {
	TileName string         `json:"tile_name" yaml:"tile_name"`
	Query    AnalyticsQuery `json:"query" yaml:"query"`
	Type     ChartType      `json:"type" yaml:"type"`
}

// SavedQuery is a named query kept on disk for reuse
type SavedQuery struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Query       AnalyticsQuery `json:"query" yaml:"query"`
	ChartType   ChartType      `json:"chart_type" yaml:"chart_type"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
	UsageCount  int            `json:"usage_count" yaml:"usage_count"`
	LastUsed    *time.Time     `json:"last_used,omitempty" yaml:"last_used,omitempty"`
}

// Axes tells a chart which fields to plot
type Axes struct {
	XField  string   `json:"x_field"`
	YFields []string `json:"y_fields"`
}

// QueryResult is the outcome of running a query through the Executor
type QueryResult struct {
	QueryID       string         `json:"query_id"`
	QueryHash     string         `json:"query_hash"`
	Query         AnalyticsQuery `json:"query"`
	ChartType     ChartType      `json:"chart_type"`
	Axes          Axes           `json:"axes"`
	Rows          []api.PivotRow `json:"rows"`
	RowCount      int            `json:"row_count"`
	ExecutedAt    time.Time      `json:"executed_at"`
	ExecutionTime string         `json:"execution_time"`
	FromCache     bool           `json:"from_cache"`
}

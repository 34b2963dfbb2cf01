package query

import (
	"fmt"
	"sync"
	"time"
)

// ActionType names a user selection in the query editor
type ActionType string

const (
	ActionSelectCollection ActionType = "select_collection"
	ActionSelectOperation  ActionType = "select_operation"
	ActionSelectField      ActionType = "select_field"
	ActionAddDimension     ActionType = "add_dimension"
	ActionRemoveDimension  ActionType = "remove_dimension"
	ActionSelectChartType  ActionType = "select_chart_type"
	ActionSelectTimeStep   ActionType = "select_time_step"
	ActionSelectDateRange  ActionType = "select_date_range"
)

// Action is a serialized user selection
type Action struct {
	Type  ActionType `json:"type" yaml:"type"`
	Value string     `json:"value" yaml:"value"`
}

// Editor applies user selections to a State, keeping the query valid.
// Selections that would break an invariant are refused with a
// *ValidationError and leave the state unchanged.
type Editor struct {
	mu      sync.Mutex
	state   *State
	catalog *FieldCatalog
	now     func() time.Time
}

// NewEditor creates an editor over a shared state and catalog
func NewEditor(state *State, catalog *FieldCatalog) *Editor {
	return &Editor{
		state:   state,
		catalog: catalog,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to resolve date range presets
func (e *Editor) WithClock(now func() time.Time) *Editor {
	e.now = now
	return e
}

// State returns the state the editor mutates
func (e *Editor) State() *State {
	return e.state
}

// Catalog returns the field catalog the editor checks against
func (e *Editor) Catalog() *FieldCatalog {
	return e.catalog
}

// SelectCollection switches the aggregated record type. Dimensions are
// always reset. Events only support count, and a field that does not
// exist in the new collection is dropped.
func (e *Editor) SelectCollection(c Collection) error {
	if !IsValidCollection(c) {
		return invalid(ErrInvalidCollection, "collection", "%q", c)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.state.Query()
	dims := []string{}
	patch := Patch{Collection: &c, Dimensions: &dims}

	if c == CollectionEvents && q.AggregationOperation != OperationCount {
		op := OperationCount
		patch.AggregationOperation = &op
	}
	if q.AggregationField != "" &&
		(c == CollectionEvents || !e.catalog.Has(c, RoleAggregation, q.AggregationField)) {
		empty := ""
		patch.AggregationField = &empty
	}

	e.state.Update(patch)
	return nil
}

// SelectOperation sets the aggregation operation. Count drops the
// aggregation field; other operations need one chosen afterwards.
func (e *Editor) SelectOperation(op Operation) error {
	if !IsValidOperation(op) {
		return invalid(ErrInvalidOperation, "aggregation_operation", "%q", op)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.state.Query()
	if q.Collection == CollectionEvents && op != OperationCount {
		return invalid(ErrInvalidAggregationForCollection, "aggregation_operation",
			"%s is not supported on %s, only count", op, q.Collection)
	}

	patch := Patch{AggregationOperation: &op}
	if op == OperationCount {
		empty := ""
		patch.AggregationField = &empty
	}
	e.state.Update(patch)
	return nil
}

// SelectField sets the aggregated field
func (e *Editor) SelectField(field string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.state.Query()
	if q.AggregationOperation == OperationCount {
		return invalid(ErrUnexpectedAggregationField, "aggregation_field",
			"count does not aggregate a field")
	}
	if !e.catalog.Has(q.Collection, RoleAggregation, field) {
		return invalid(ErrUnknownAggregationField, "aggregation_field",
			"%q is not an aggregation field of %s", field, q.Collection)
	}

	e.state.Update(Patch{AggregationField: &field})
	return nil
}

// AddDimension appends a breakdown field. Adding one that is already
// present does nothing.
func (e *Editor) AddDimension(dimension string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.state.Query()
	if !e.catalog.Has(q.Collection, RoleDimension, dimension) {
		return invalid(ErrUnknownDimension, "dimensions",
			"%q is not a dimension of %s", dimension, q.Collection)
	}
	for _, d := range q.Dimensions {
		if d == dimension {
			return nil
		}
	}

	dims := append(q.Dimensions, dimension)
	e.state.Update(Patch{Dimensions: &dims})
	return nil
}

// RemoveDimension drops a breakdown field if present
func (e *Editor) RemoveDimension(dimension string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.state.Query()
	dims := make([]string, 0, len(q.Dimensions))
	for _, d := range q.Dimensions {
		if d != dimension {
			dims = append(dims, d)
		}
	}
	if len(dims) == len(q.Dimensions) {
		return nil
	}
	e.state.Update(Patch{Dimensions: &dims})
	return nil
}

// SelectChartType switches the chart. Pie charts are not time series, so
// they drop the time step; every other chart gets the day step.
func (e *Editor) SelectChartType(chartType ChartType) error {
	if !IsValidChartType(chartType) {
		return invalid(ErrInvalidChartType, "type", "%q", chartType)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	step := TimeStepDay
	if chartType == ChartPie {
		step = ""
	}
	e.state.UpdateChart(chartType, Patch{TimeStep: &step})
	return nil
}

// SelectTimeStep overrides the time step of a time series chart
func (e *Editor) SelectTimeStep(step TimeStep) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.ChartType() == ChartPie {
		return invalid(ErrInvalidTimeStep, "time_step", "pie charts have no time step")
	}
	if !IsValidTimeStep(step) {
		return invalid(ErrInvalidTimeStep, "time_step", "%q", step)
	}

	e.state.Update(Patch{TimeStep: &step})
	return nil
}

// SelectDateRange resolves preset and replaces the query's filters
func (e *Editor) SelectDateRange(preset DateRangePreset) error {
	filters, err := ResolveDateRange(preset, e.now())
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Update(Patch{Filters: &filters})
	return nil
}

// Apply dispatches a serialized action
func (e *Editor) Apply(a Action) error {
	switch a.Type {
	case ActionSelectCollection:
		return e.SelectCollection(Collection(a.Value))
	case ActionSelectOperation:
		return e.SelectOperation(Operation(a.Value))
	case ActionSelectField:
		return e.SelectField(a.Value)
	case ActionAddDimension:
		return e.AddDimension(a.Value)
	case ActionRemoveDimension:
		return e.RemoveDimension(a.Value)
	case ActionSelectChartType:
		return e.SelectChartType(ChartType(a.Value))
	case ActionSelectTimeStep:
		return e.SelectTimeStep(TimeStep(a.Value))
	case ActionSelectDateRange:
		return e.SelectDateRange(DateRangePreset(a.Value))
	default:
		return invalid(ErrUnknownAction, "type", "%q", a.Type)
	}
}

// ApplyAll applies actions in order and stops at the first refusal
func (e *Editor) ApplyAll(actions []Action) error {
	for i, a := range actions {
		if err := e.Apply(a); err != nil {
			return &ActionError{Index: i, Action: a, Err: err}
		}
	}
	return nil
}

// ActionError reports which action of a batch was refused
type ActionError struct {
	Index  int
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s=%s): %v", e.Index+1, e.Action.Type, e.Action.Value, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

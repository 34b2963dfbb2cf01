package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestEditor(t *testing.T) (*Editor, *State) {
	t.Helper()
	catalog := NewFieldCatalog()
	catalog.SetMetadataFields([]string{"cost"}, []string{"plan"})
	state := NewState("proj-1")
	return NewEditor(state, catalog).WithClock(func() time.Time { return fixedNow }), state
}

func TestSelectCollection_ResetsDimensions(t *testing.T) {
	for _, from := range Collections {
		for _, to := range Collections {
			editor, state := newTestEditor(t)
			require.NoError(t, editor.SelectCollection(from))
			dims := editor.Catalog().FieldsFor(from, RoleDimension)
			require.NotEmpty(t, dims)
			require.NoError(t, editor.AddDimension(dims[0]))

			require.NoError(t, editor.SelectCollection(to))

			assert.Empty(t, state.Query().Dimensions, "%s -> %s", from, to)
			assert.Equal(t, to, state.Query().Collection)
		}
	}
}

func TestSelectCollection_EventsForcesCount(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.SelectOperation(OperationAvg))
	require.NoError(t, editor.SelectField("sentiment.score"))

	require.NoError(t, editor.SelectCollection(CollectionEvents))

	q := state.Query()
	assert.Equal(t, OperationCount, q.AggregationOperation)
	assert.Empty(t, q.AggregationField)
}

func TestSelectOperation_EventsRejectsNonCount(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.SelectCollection(CollectionEvents))
	before := state.Query()

	for _, op := range []Operation{OperationSum, OperationAvg, OperationMin, OperationMax} {
		err := editor.SelectOperation(op)
		require.ErrorIs(t, err, ErrInvalidAggregationForCollection)
		assert.Equal(t, before, state.Query())
	}
}

func TestSelectCollection_DropsFieldInvalidForNewCollection(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.SelectOperation(OperationSum))
	require.NoError(t, editor.SelectField("length"))

	require.NoError(t, editor.SelectCollection(CollectionSessions))

	q := state.Query()
	assert.Equal(t, OperationSum, q.AggregationOperation)
	assert.Empty(t, q.AggregationField)
}

func TestSelectOperation_CountClearsField(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.SelectOperation(OperationMax))
	require.NoError(t, editor.SelectField("metadata.cost"))

	require.NoError(t, editor.SelectOperation(OperationCount))

	assert.Empty(t, state.Query().AggregationField)
}

func TestSelectField(t *testing.T) {
	editor, state := newTestEditor(t)

	err := editor.SelectField("length")
	require.ErrorIs(t, err, ErrUnexpectedAggregationField)

	require.NoError(t, editor.SelectOperation(OperationSum))
	err = editor.SelectField("session_length")
	require.ErrorIs(t, err, ErrUnknownAggregationField)
	assert.Empty(t, state.Query().AggregationField)

	require.NoError(t, editor.SelectField("length"))
	assert.Equal(t, "length", state.Query().AggregationField)
}

func TestAddDimension_DuplicateIsNoop(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.AddDimension("flag"))

	calls := 0
	state.Subscribe(func(AnalyticsQuery, ChartType) { calls++ })

	require.NoError(t, editor.AddDimension("flag"))

	assert.Equal(t, []string{"flag"}, state.Query().Dimensions)
	assert.Zero(t, calls)
}

func TestAddDimension_UnknownIsRejected(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.AddDimension("flag"))

	err := editor.AddDimension("stats.most_common_flag")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrUnknownDimension, verr.Kind)
	assert.Equal(t, "UnknownDimension", verr.KindName())
	assert.Equal(t, []string{"flag"}, state.Query().Dimensions)
}

func TestAddDimension_MetadataField(t *testing.T) {
	editor, state := newTestEditor(t)

	require.NoError(t, editor.AddDimension("metadata.plan"))
	require.NoError(t, editor.AddDimension("language"))

	assert.Equal(t, []string{"metadata.plan", "language"}, state.Query().Dimensions)
}

func TestRemoveDimension(t *testing.T) {
	editor, state := newTestEditor(t)
	require.NoError(t, editor.AddDimension("flag"))
	require.NoError(t, editor.AddDimension("language"))

	require.NoError(t, editor.RemoveDimension("flag"))
	require.NoError(t, editor.RemoveDimension("absent"))

	assert.Equal(t, []string{"language"}, state.Query().Dimensions)
}

func TestSelectChartType_TimeStep(t *testing.T) {
	editor, state := newTestEditor(t)

	require.NoError(t, editor.SelectChartType(ChartPie))
	assert.Equal(t, ChartPie, state.ChartType())
	assert.Equal(t, TimeStep(""), state.Query().TimeStep)

	err := editor.SelectTimeStep(TimeStepDay)
	require.ErrorIs(t, err, ErrInvalidTimeStep)
	assert.Equal(t, TimeStep(""), state.Query().TimeStep)

	for _, chart := range []ChartType{ChartLine, ChartStackedBar} {
		require.NoError(t, editor.SelectChartType(ChartPie))
		require.NoError(t, editor.SelectChartType(chart))
		assert.Equal(t, TimeStepDay, state.Query().TimeStep)
	}

	require.ErrorIs(t, editor.SelectTimeStep("week"), ErrInvalidTimeStep)
	require.ErrorIs(t, editor.SelectChartType("scatter"), ErrInvalidChartType)
	assert.Equal(t, ChartStackedBar, state.ChartType())
}

func TestSelectChartType_SingleNotification(t *testing.T) {
	editor, state := newTestEditor(t)

	var seen []ChartType
	var steps []TimeStep
	state.Subscribe(func(q AnalyticsQuery, chart ChartType) {
		seen = append(seen, chart)
		steps = append(steps, q.TimeStep)
	})

	require.NoError(t, editor.SelectChartType(ChartPie))

	assert.Equal(t, []ChartType{ChartPie}, seen)
	assert.Equal(t, []TimeStep{""}, steps)
}

func TestSelectDateRange_Replaces(t *testing.T) {
	editor, state := newTestEditor(t)
	end := fixedNow.Unix()
	state.Update(Patch{Filters: &Filters{CreatedAtEnd: &end, Flag: "success"}})

	require.NoError(t, editor.SelectDateRange(RangeLast7Days))
	f := state.Query().Filters
	require.NotNil(t, f.CreatedAtStart)
	assert.Equal(t, fixedNow.Unix()-604800, *f.CreatedAtStart)
	assert.Nil(t, f.CreatedAtEnd)
	assert.Empty(t, f.Flag)

	require.NoError(t, editor.SelectDateRange(RangeAllTime))
	assert.True(t, state.Query().Filters.IsEmpty())

	require.ErrorIs(t, editor.SelectDateRange("yesterday"), ErrInvalidDateRange)
	assert.True(t, state.Query().Filters.IsEmpty())
}

func TestSessionsCountNeedsNoField(t *testing.T) {
	editor, state := newTestEditor(t)

	require.NoError(t, editor.SelectCollection(CollectionSessions))
	require.NoError(t, editor.SelectOperation(OperationCount))

	q := state.Query()
	assert.Empty(t, q.AggregationField)
	assert.NoError(t, Validate(q, state.ChartType(), editor.Catalog()))
}

func TestApplyAll_StopsAtFirstRefusal(t *testing.T) {
	editor, state := newTestEditor(t)

	err := editor.ApplyAll([]Action{
		{Type: ActionSelectCollection, Value: "sessions"},
		{Type: ActionAddDimension, Value: "flag"},
		{Type: ActionSelectChartType, Value: "pie"},
	})

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, 1, actionErr.Index)
	require.ErrorIs(t, err, ErrUnknownDimension)
	assert.Equal(t, CollectionSessions, state.Query().Collection)
	assert.Equal(t, ChartLine, state.ChartType())
}

func TestApply_UnknownAction(t *testing.T) {
	editor, _ := newTestEditor(t)

	err := editor.Apply(Action{Type: "select_color", Value: "red"})

	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestEditorKeepsQueryValid(t *testing.T) {
	editor, state := newTestEditor(t)
	actions := []Action{
		{ActionSelectOperation, "avg"},
		{ActionSelectField, "sentiment.score"},
		{ActionAddDimension, "flag"},
		{ActionSelectChartType, "pie"},
		{ActionSelectCollection, "sessions"},
		{ActionSelectField, "session_length"},
		{ActionAddDimension, "stats.most_common_language"},
		{ActionSelectChartType, "stackedBar"},
		{ActionSelectDateRange, "last-30-days"},
		{ActionSelectCollection, "events"},
		{ActionAddDimension, "event_name"},
	}

	for _, a := range actions {
		require.NoError(t, editor.Apply(a), "%s=%s", a.Type, a.Value)
	}

	q, chart := state.Snapshot()
	require.NoError(t, Validate(q, chart, editor.Catalog()))
	assert.Equal(t, CollectionEvents, q.Collection)
	assert.Equal(t, OperationCount, q.AggregationOperation)
	assert.Equal(t, []string{"event_name"}, q.Dimensions)
	assert.Equal(t, TimeStepDay, q.TimeStep)
}

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phospho/internal/query"
)

func newInteractiveEditor() (*query.Editor, *query.State) {
	catalog := query.NewFieldCatalog()
	catalog.SetMetadataFields([]string{"cost"}, []string{"plan"})
	state := query.NewState("proj-1")
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	return query.NewEditor(state, catalog).WithClock(func() time.Time { return now }), state
}

func TestBuildInteractively(t *testing.T) {
	editor, state := newInteractiveEditor()
	// collection, chart, operation, field, dimensions, date range
	answers := strings.Join([]string{"1", "pie", "avg", "metadata.cost", "flag, language", "2"}, "\n") + "\n"
	var out bytes.Buffer

	require.NoError(t, buildInteractively(editor, strings.NewReader(answers), &out))

	q, chart := state.Snapshot()
	assert.Equal(t, query.ChartPie, chart)
	assert.Equal(t, query.OperationAvg, q.AggregationOperation)
	assert.Equal(t, "metadata.cost", q.AggregationField)
	assert.Equal(t, []string{"flag", "language"}, q.Dimensions)
	require.NotNil(t, q.Filters.CreatedAtStart)
	assert.NoError(t, query.Validate(q, chart, editor.Catalog()))
}

func TestBuildInteractively_RetriesRefusedAnswers(t *testing.T) {
	editor, state := newInteractiveEditor()
	answers := strings.Join([]string{
		"sessions",
		"",
		"9",
		"sum",
		"length",
		"session_length",
		"flag",
		"stats.most_common_flag",
		"",
	}, "\n") + "\n"
	var out bytes.Buffer

	require.NoError(t, buildInteractively(editor, strings.NewReader(answers), &out))

	q, chart := state.Snapshot()
	assert.Equal(t, query.CollectionSessions, q.Collection)
	assert.Equal(t, query.ChartLine, chart)
	assert.Equal(t, query.OperationSum, q.AggregationOperation)
	assert.Equal(t, "session_length", q.AggregationField)
	assert.Equal(t, []string{"stats.most_common_flag"}, q.Dimensions)
	assert.True(t, q.Filters.IsEmpty())
	assert.Contains(t, out.String(), `"9" is not one of the options`)
}

func TestBuildInteractively_EOFKeepsDefaults(t *testing.T) {
	editor, state := newInteractiveEditor()

	require.NoError(t, buildInteractively(editor, strings.NewReader(""), &bytes.Buffer{}))

	q, chart := state.Snapshot()
	assert.Equal(t, query.DefaultQuery("proj-1"), q)
	assert.Equal(t, query.ChartLine, chart)
}

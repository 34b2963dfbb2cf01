package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "test-key")
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("http://localhost", "  ")
	require.Error(t, err)

	client, err := NewClient("", "key")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.BaseURL())
}

func TestClient_SendsBearerToken(t *testing.T) {
	var auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"proj-1"}`))
	})

	_, err := client.GetProject(context.Background(), "proj-1")

	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", auth)
}

func TestClient_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"forbidden"}`))
	})

	_, err := client.GetProject(context.Background(), "proj-1")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, http.MethodGet, statusErr.Method)
	assert.Contains(t, statusErr.Body, "forbidden")
}

func TestGetProject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/proj-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "proj-1",
			"project_name": "Support bot",
			"settings": {
				"events": {"refund": {"event_name": "refund"}, "churn": {}},
				"dashboard_tiles": [{"tile_name": "tasks (All time)", "query": {}, "type": "line", "position": 3}]
			}
		}`))
	})

	project, err := client.GetProject(context.Background(), "proj-1")

	require.NoError(t, err)
	assert.Equal(t, "Support bot", project.Name())
	assert.ElementsMatch(t, []string{"refund", "churn"}, project.EventNames())

	var tiles []map[string]interface{}
	require.NoError(t, json.Unmarshal(project.DashboardTiles(), &tiles))
	require.Len(t, tiles, 1)
	assert.Equal(t, "tasks (All time)", tiles[0]["tile_name"])
}

func TestProject_DashboardTilesDefault(t *testing.T) {
	assert.JSONEq(t, `[]`, string(NewProject("p", []byte(`{"settings":{}}`)).DashboardTiles()))
	assert.JSONEq(t, `[]`, string(NewProject("p", []byte(`{"settings":{"dashboard_tiles":null}}`)).DashboardTiles()))
}

func TestProject_WithDashboardTilesKeepsUnknownFields(t *testing.T) {
	project := NewProject("proj-1", []byte(`{"id":"proj-1","org_id":"org","big":12345678901234567890,"settings":{"events":{"a":{}}}}`))

	next, err := project.WithDashboardTiles([]json.RawMessage{json.RawMessage(`{"tile_name":"x","extra":true}`)})

	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "proj-1",
		"org_id": "org",
		"big": 12345678901234567890,
		"settings": {
			"events": {"a": {}},
			"dashboard_tiles": [{"tile_name": "x", "extra": true}]
		}
	}`, string(next.Raw()))
	assert.JSONEq(t, `[]`, string(project.DashboardTiles()))
}

func TestSaveProject(t *testing.T) {
	var body []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/projects/proj-1", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})

	project := NewProject("proj-1", []byte(`{"id":"proj-1","settings":{"dashboard_tiles":[]}}`))
	saved, err := client.SaveProject(context.Background(), project)

	require.NoError(t, err)
	assert.JSONEq(t, string(project.Raw()), string(body))
	assert.JSONEq(t, string(project.Raw()), string(saved.Raw()))
}

func TestGetMetadataFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/metadata/proj-1/fields", r.URL.Path)
		_, _ = w.Write([]byte(`{"number":["cost"],"string":null}`))
	})

	fields, err := client.GetMetadataFields(context.Background(), "proj-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"cost"}, fields.Number)
	assert.Equal(t, []string{}, fields.String)
}

func TestRunPivot(t *testing.T) {
	var req PivotRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/metadata/proj-1/pivot/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"pivot_table":[
			{"breakdown_by":"success","metric":12},
			{"breakdown_by":null,"metric":3},
			{"metric":1},
			{"breakdown_by":true,"metric":0.5}
		]}`))
	})

	breakdown := "flag"
	resp, err := client.RunPivot(context.Background(), "proj-1", &PivotRequest{
		Metric:      "nb_messages",
		BreakdownBy: &breakdown,
		Filters:     map[string]interface{}{"created_at_start": 1700000000},
	})

	require.NoError(t, err)
	assert.Equal(t, "nb_messages", req.Metric)
	assert.Nil(t, req.MetricMetadata)
	assert.Equal(t, []PivotRow{
		{BreakdownBy: "success", Metric: 12},
		{BreakdownBy: NoneBreakdown, Metric: 3},
		{BreakdownBy: NoneBreakdown, Metric: 1},
		{BreakdownBy: "true", Metric: 0.5},
	}, resp.PivotTable)
	assert.False(t, resp.FromCache)
}

func TestRunPivot_RequiresMetric(t *testing.T) {
	client, err := NewClient("http://localhost", "key")
	require.NoError(t, err)

	_, err = client.RunPivot(context.Background(), "proj-1", &PivotRequest{})
	require.Error(t, err)
}

func TestParsePivotResponse(t *testing.T) {
	resp, err := ParsePivotResponse([]byte(`{"pivot_table":null}`))
	require.NoError(t, err)
	assert.Empty(t, resp.PivotTable)

	_, err = ParsePivotResponse([]byte(`{"pivot_table":"oops"}`))
	require.Error(t, err)

	_, err = ParsePivotResponse([]byte(`not json`))
	require.Error(t, err)
}

func TestPivotHash(t *testing.T) {
	a, b := "flag", "language"
	h1 := PivotHash("proj-1", &PivotRequest{Metric: "nb_messages", BreakdownBy: &a})
	h2 := PivotHash("proj-1", &PivotRequest{Metric: "nb_messages", BreakdownBy: &a})
	h3 := PivotHash("proj-1", &PivotRequest{Metric: "nb_messages", BreakdownBy: &b})
	h4 := PivotHash("proj-2", &PivotRequest{Metric: "nb_messages", BreakdownBy: &a})

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
}

package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// NoneBreakdown replaces a null breakdown value in pivot tables
const NoneBreakdown = "None"

// MetadataFields lists the metadata keys seen in a project, by value type
type MetadataFields struct {
	Number []string `json:"number"`
	String []string `json:"string"`
}

// PivotRequest is the body of a pivot call
type PivotRequest struct {
	Metric         string      `json:"metric"`
	MetricMetadata *string     `json:"metric_metadata"`
	BreakdownBy    *string     `json:"breakdown_by"`
	Filters        interface{} `json:"filters"`
}

// PivotRow is one breakdown value of a pivot table
type PivotRow struct {
	BreakdownBy string  `json:"breakdown_by"`
	Metric      float64 `json:"metric"`
}

// PivotResponse is the aggregated result set of a pivot call
type PivotResponse struct {
	PivotTable []PivotRow `json:"pivot_table"`
	FromCache  bool       `json:"-"`
}

// GetMetadataFields retrieves the metadata keys of a project, split into
// numeric and categorical keys
func (c *Client) GetMetadataFields(ctx context.Context, projectID string) (*MetadataFields, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	// Try cache first if available
	if c.cacheClient != nil {
		var cached MetadataFields
		if found, err := c.cacheClient.GetCachedMetadata(ctx, projectID, "metadata_fields", &cached); err == nil && found {
			return &cached, nil
		}
	}

	path := fmt.Sprintf("/api/metadata/%s/fields", url.PathEscape(projectID))
	data, err := c.doJSON(ctx, http.MethodPost, path, map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata fields: %w", err)
	}

	var fields MetadataFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode metadata fields response: %w", err)
	}
	if fields.Number == nil {
		fields.Number = []string{}
	}
	if fields.String == nil {
		fields.String = []string{}
	}

	if c.cacheClient != nil {
		c.cacheClient.CacheMetadata(ctx, projectID, "metadata_fields", fields, c.cacheTTL)
	}

	return &fields, nil
}

// RunPivot asks the backend to aggregate a project's data
func (c *Client) RunPivot(ctx context.Context, projectID string, request *PivotRequest) (*PivotResponse, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if request == nil || request.Metric == "" {
		return nil, fmt.Errorf("metric is required")
	}

	var queryHash string
	if c.cacheClient != nil {
		queryHash = PivotHash(projectID, request)
		var cached PivotResponse
		if found, err := c.cacheClient.GetCachedQuery(ctx, queryHash, &cached); err == nil && found {
			cached.FromCache = true
			return &cached, nil
		}
	}

	path := fmt.Sprintf("/api/metadata/%s/pivot/", url.PathEscape(projectID))
	data, err := c.doJSON(ctx, http.MethodPost, path, request)
	if err != nil {
		return nil, fmt.Errorf("failed to run pivot: %w", err)
	}

	response, err := ParsePivotResponse(data)
	if err != nil {
		return nil, err
	}

	if c.cacheClient != nil && queryHash != "" {
		ttl := c.cacheTTL
		c.cacheClient.CacheQuery(ctx, uuid.NewString(), projectID, queryHash, request, response, len(response.PivotTable), &ttl)
	}

	return response, nil
}

// ParsePivotResponse reads a pivot table. Breakdown values may be strings,
// numbers, booleans or null; null becomes NoneBreakdown.
func ParsePivotResponse(data []byte) (*PivotResponse, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to decode pivot response: invalid JSON")
	}

	table := gjson.GetBytes(data, "pivot_table")
	if table.Exists() && !table.IsArray() && table.Type != gjson.Null {
		return nil, fmt.Errorf("failed to decode pivot response: pivot_table is not a list")
	}

	response := &PivotResponse{PivotTable: []PivotRow{}}
	table.ForEach(func(_, row gjson.Result) bool {
		breakdown := row.Get("breakdown_by")
		value := NoneBreakdown
		if breakdown.Exists() && breakdown.Type != gjson.Null {
			value = breakdown.String()
		}
		response.PivotTable = append(response.PivotTable, PivotRow{
			BreakdownBy: value,
			Metric:      row.Get("metric").Float(),
		})
		return true
	})

	return response, nil
}

// PivotHash identifies a pivot request for caching
func PivotHash(projectID string, request *PivotRequest) string {
	jsonData, _ := json.Marshal(struct {
		ProjectID string        `json:"project_id"`
		Request   *PivotRequest `json:"request"`
	}{projectID, request})
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Project is a project record as returned by the backend. The record is
// kept raw so that fields this client does not know about survive a
// read-modify-write cycle.
type Project struct {
	ID  string
	raw []byte
}

// NewProject wraps a raw project record
func NewProject(id string, raw []byte) *Project {
	return &Project{ID: id, raw: append([]byte(nil), raw...)}
}

// Raw returns the record as JSON
func (p *Project) Raw() []byte {
	return append([]byte(nil), p.raw...)
}

// Name returns the project display name
func (p *Project) Name() string {
	return gjson.GetBytes(p.raw, "project_name").String()
}

// DashboardTiles returns the raw JSON array of saved tiles, "[]" when unset
func (p *Project) DashboardTiles() json.RawMessage {
	res := gjson.GetBytes(p.raw, "settings.dashboard_tiles")
	if !res.Exists() || res.Type == gjson.Null {
		return json.RawMessage("[]")
	}
	return json.RawMessage(res.Raw)
}

// EventNames returns the names of the project's event detectors (taggers)
func (p *Project) EventNames() []string {
	var names []string
	gjson.GetBytes(p.raw, "settings.events").ForEach(func(key, value gjson.Result) bool {
		name := value.Get("event_name").String()
		if name == "" {
			name = key.String()
		}
		names = append(names, name)
		return true
	})
	return names
}

// WithDashboardTiles returns a copy of the project whose tile list is
// replaced by tiles. The receiver is not modified.
func (p *Project) WithDashboardTiles(tiles interface{}) (*Project, error) {
	decoder := json.NewDecoder(bytes.NewReader(p.raw))
	decoder.UseNumber()

	var record map[string]interface{}
	if err := decoder.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode project record: %w", err)
	}
	if record == nil {
		record = map[string]interface{}{}
	}

	settings, _ := record["settings"].(map[string]interface{})
	if settings == nil {
		settings = map[string]interface{}{}
	}
	settings["dashboard_tiles"] = tiles
	record["settings"] = settings

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project record: %w", err)
	}
	return &Project{ID: p.ID, raw: raw}, nil
}

// GetProject fetches the full project record
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	data, err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectID, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to decode project %s: invalid JSON", projectID)
	}

	return NewProject(projectID, data), nil
}

// SaveProject writes the whole project record back. There is no version
// check on the backend: the last writer wins.
func (c *Client) SaveProject(ctx context.Context, project *Project) (*Project, error) {
	if project == nil || project.ID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	data, err := c.doJSON(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(project.ID), project.raw)
	if err != nil {
		return nil, fmt.Errorf("failed to save project %s: %w", project.ID, err)
	}
	if len(bytes.TrimSpace(data)) == 0 || !gjson.ValidBytes(data) {
		return project, nil
	}

	return NewProject(project.ID, data), nil
}

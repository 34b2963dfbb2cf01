package query

import (
	"context"
	"fmt"
	"sync"

	"phospho/internal/api"
)

// Role says what a catalog field can be used for
type Role string

const (
	RoleAggregation Role = "aggregation"
	RoleDimension   Role = "dimension"
)

// MetadataPrefix is prepended to every backend-reported metadata key
const MetadataPrefix = "metadata."

// Static field lists. Tasks and sessions do not share fields; events are
// only ever counted and broken down by event name.
var (
	taskAggregationFields = []string{
		"sentiment.score",
		"sentiment.magnitude",
		"length",
	}
	taskDimensions = []string{
		"flag",
		"language",
		"sentiment.label",
		"is_last_task",
	}
	sessionAggregationFields = []string{
		"session_length",
		"stats.avg_sentiment_score",
		"stats.avg_success_rate",
	}
	sessionDimensions = []string{
		"stats.most_common_flag",
		"stats.most_common_language",
		"stats.most_common_sentiment_label",
	}
	eventDimensions = []string{
		"event_name",
	}
)

// MetadataSource reports the metadata keys observed for a project
type MetadataSource interface {
	GetMetadataFields(ctx context.Context, projectID string) (*api.MetadataFields, error)
}

// FieldCatalog lists the fields selectable per collection and role.
// Hardcoded fields come first, then metadata fields in backend order.
type FieldCatalog struct {
	mu           sync.RWMutex
	numeric      []string
	categorical  []string
	aggregations map[Collection][]string
	dimensions   map[Collection][]string
}

// NewFieldCatalog creates a catalog holding only the static fields
func NewFieldCatalog() *FieldCatalog {
	c := &FieldCatalog{}
	c.rebuild()
	return c
}

// FieldsFor returns the ordered fields of collection usable in role
func (c *FieldCatalog) FieldsFor(collection Collection, role Role) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var src []string
	switch role {
	case RoleAggregation:
		src = c.aggregations[collection]
	case RoleDimension:
		src = c.dimensions[collection]
	}
	return append([]string{}, src...)
}

// Has reports whether field is selectable for collection in role
func (c *FieldCatalog) Has(collection Collection, role Role, field string) bool {
	for _, f := range c.FieldsFor(collection, role) {
		if f == field {
			return true
		}
	}
	return false
}

// SetMetadataFields replaces the dynamic part of the catalog. Numeric keys
// become task aggregation fields, categorical keys task dimensions.
func (c *FieldCatalog) SetMetadataFields(numeric, categorical []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.numeric = dedupe(numeric)
	c.categorical = dedupe(categorical)
	c.rebuild()
}

// MetadataFields returns the metadata keys currently applied, unprefixed
func (c *FieldCatalog) MetadataFields() (numeric, categorical []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.numeric...), append([]string{}, c.categorical...)
}

// LoadMetadata fetches the project's metadata keys and applies them
func (c *FieldCatalog) LoadMetadata(ctx context.Context, source MetadataSource, projectID string) error {
	if projectID == "" {
		return invalid(ErrMissingProjectID, "project_id", "cannot load metadata fields")
	}
	fields, err := source.GetMetadataFields(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load metadata fields: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("failed to load metadata fields: empty response for project %s", projectID)
	}
	c.SetMetadataFields(fields.Number, fields.String)
	return nil
}

// rebuild recomputes the per-collection lists. Caller holds c.mu.
func (c *FieldCatalog) rebuild() {
	taskAggs := append([]string{}, taskAggregationFields...)
	for _, name := range c.numeric {
		taskAggs = append(taskAggs, MetadataPrefix+name)
	}
	taskDims := append([]string{}, taskDimensions...)
	for _, name := range c.categorical {
		taskDims = append(taskDims, MetadataPrefix+name)
	}

	c.aggregations = map[Collection][]string{
		CollectionTasks:    taskAggs,
		CollectionSessions: append([]string{}, sessionAggregationFields...),
		CollectionEvents:   {},
	}
	c.dimensions = map[Collection][]string{
		CollectionTasks:    taskDims,
		CollectionSessions: append([]string{}, sessionDimensions...),
		CollectionEvents:   append([]string{}, eventDimensions...),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

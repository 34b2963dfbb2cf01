package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"phospho/internal/config"
	"phospho/internal/query"
)

const (
	QueriesDirName = "queries"
	QueryFileExt   = ".yaml"

	// DraftName is the reserved entry holding the query being edited
	DraftName = "_draft"
)

// ErrProjectMismatch is returned when a saved query is loaded for a
// project other than the one it was built on
var ErrProjectMismatch = errors.New("saved query belongs to another project")

var (
	// Valid query names: alphanumeric, underscores, hyphens only
	validQueryName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// GetQueriesDir returns the path to the saved queries directory (~/.phospho/queries)
func GetQueriesDir() (string, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, QueriesDirName), nil
}

// GetQueryPath returns the full path to a saved query file
func GetQueryPath(name string) (string, error) {
	if !IsValidName(name) {
		return "", fmt.Errorf("invalid query name: must contain only letters, numbers, underscores, and hyphens")
	}

	queriesDir, err := GetQueriesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(queriesDir, name+QueryFileExt), nil
}

// EnsureQueriesDir creates the saved queries directory if it doesn't exist
func EnsureQueriesDir() error {
	queriesDir, err := GetQueriesDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(queriesDir, 0700)
}

// IsValidName validates a saved query name
func IsValidName(name string) bool {
	if name == "" || len(name) > 50 {
		return false
	}
	return validQueryName.MatchString(name)
}

// Exists checks if a saved query file exists
func Exists(name string) (bool, error) {
	path, err := GetQueryPath(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// LoadForProject reads a saved query that is about to be run or edited on
// projectID. Files are hand-editable, so the query is validated against
// the project's catalog before the usage is recorded.
func LoadForProject(name, projectID string, catalog *query.FieldCatalog) (*query.SavedQuery, error) {
	saved, err := open(name)
	if err != nil {
		return nil, err
	}

	if saved.Query.ProjectID != projectID {
		return nil, fmt.Errorf("saved query '%s' is for project %s, active project is %s: %w",
			name, saved.Query.ProjectID, projectID, ErrProjectMismatch)
	}
	if err := query.Validate(saved.Query, saved.ChartType, catalog); err != nil {
		return nil, fmt.Errorf("saved query '%s' is invalid: %w", name, err)
	}

	recordUsage(saved)
	return saved, nil
}

func open(name string) (*query.SavedQuery, error) {
	path, err := GetQueryPath(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("saved query '%s' does not exist", name)
	}

	return read(path)
}

func recordUsage(saved *query.SavedQuery) {
	now := time.Now()
	saved.UsageCount++
	saved.LastUsed = &now
	// Usage stats are informational, a failed write must not fail the load
	_ = Save(saved)
}

func read(path string) (*query.SavedQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read saved query file: %w", err)
	}

	var saved query.SavedQuery
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse saved query file: %w", err)
	}
	if saved.Query.Dimensions == nil {
		saved.Query.Dimensions = []string{}
	}
	return &saved, nil
}

// Save writes a saved query to file
func Save(saved *query.SavedQuery) error {
	if !IsValidName(saved.Name) {
		return fmt.Errorf("invalid query name: %s", saved.Name)
	}

	if err := EnsureQueriesDir(); err != nil {
		return err
	}

	path, err := GetQueryPath(saved.Name)
	if err != nil {
		return err
	}

	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}

	data, err := yaml.Marshal(saved)
	if err != nil {
		return fmt.Errorf("failed to marshal saved query to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write saved query file: %w", err)
	}

	return nil
}

// Create stores a new saved query, refusing to overwrite an existing one
func Create(name, description string, q query.AnalyticsQuery, chartType query.ChartType, overwrite bool) (*query.SavedQuery, error) {
	if !IsValidName(name) {
		return nil, fmt.Errorf("invalid query name: must contain only letters, numbers, underscores, and hyphens (max 50 chars)")
	}

	exists, err := Exists(name)
	if err != nil {
		return nil, err
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("saved query '%s' already exists", name)
	}

	now := time.Now()
	saved := &query.SavedQuery{
		Name:        name,
		Description: strings.TrimSpace(description),
		Query:       q.Clone(),
		ChartType:   chartType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := Save(saved); err != nil {
		return nil, fmt.Errorf("failed to create saved query: %w", err)
	}

	return saved, nil
}

// Delete removes a saved query file
func Delete(name string) error {
	path, err := GetQueryPath(name)
	if err != nil {
		return err
	}

	exists, err := Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("saved query '%s' does not exist", name)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete saved query file: %w", err)
	}

	return nil
}

// List returns all saved queries sorted by name, optionally only those of
// one project
func List(projectID string) ([]query.SavedQuery, error) {
	queriesDir, err := GetQueriesDir()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(queriesDir); os.IsNotExist(err) {
		return []query.SavedQuery{}, nil
	}

	entries, err := os.ReadDir(queriesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read saved queries directory: %w", err)
	}

	saved := []query.SavedQuery{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), QueryFileExt) {
			continue
		}

		sq, err := read(filepath.Join(queriesDir, entry.Name()))
		if err != nil {
			// Skip corrupted files but don't fail the entire operation
			continue
		}
		if sq.Name == DraftName {
			continue
		}
		if projectID != "" && sq.Query.ProjectID != projectID {
			continue
		}
		saved = append(saved, *sq)
	}

	sort.Slice(saved, func(i, j int) bool { return saved[i].Name < saved[j].Name })
	return saved, nil
}

// LoadDraft returns the query being edited for a project. A missing draft
// or one left over from another project yields the default query.
func LoadDraft(projectID string) (query.AnalyticsQuery, query.ChartType, error) {
	path, err := GetQueryPath(DraftName)
	if err != nil {
		return query.AnalyticsQuery{}, "", err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return query.DefaultQuery(projectID), query.ChartLine, nil
	}

	draft, err := read(path)
	if err != nil {
		return query.AnalyticsQuery{}, "", err
	}
	if draft.Query.ProjectID != projectID {
		return query.DefaultQuery(projectID), query.ChartLine, nil
	}
	return draft.Query, draft.ChartType, nil
}

// SaveDraft stores the query being edited
func SaveDraft(q query.AnalyticsQuery, chartType query.ChartType) error {
	draft := &query.SavedQuery{
		Name:      DraftName,
		Query:     q.Clone(),
		ChartType: chartType,
		UpdatedAt: time.Now(),
	}
	return Save(draft)
}

// TrackDraft persists every change of state as the draft until the
// returned stop function is called. stop reports the first failed write.
func TrackDraft(state *query.State) (stop func() error) {
	var (
		mu       sync.Mutex
		firstErr error
	)
	unsubscribe := state.Subscribe(func(q query.AnalyticsQuery, chartType query.ChartType) {
		err := SaveDraft(q, chartType)
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	})

	return func() error {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		return firstErr
	}
}

// ResetDraft replaces the draft with the default query of a project
func ResetDraft(projectID string) error {
	state := query.NewState(projectID)
	stop := TrackDraft(state)
	state.Reset(projectID)
	return stop()
}

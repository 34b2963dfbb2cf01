package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"phospho/internal/api"
	"phospho/internal/query"
)

// DefaultMaxAttempts bounds how often a tile write is rebased onto a
// tile list that changed underneath it
const DefaultMaxAttempts = 3

// ErrConcurrentModification is returned when the tile list kept changing
// between read and write
var ErrConcurrentModification = errors.New("dashboard tiles were modified concurrently")

// ErrTileNotFound is returned when removing a tile index that does not exist
var ErrTileNotFound = errors.New("dashboard tile not found")

// ProjectStore reads and writes whole project records
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (*api.Project, error)
	SaveProject(ctx context.Context, project *api.Project) (*api.Project, error)
}

// Service manages the dashboard tiles of a project. The backend only
// offers whole-record writes, so every change is a read-modify-write of
// the project. Just before writing, the tile list is read again and the
// change is rebased when it moved, which narrows but does not close the
// lost-update window.
type Service struct {
	store       ProjectStore
	catalog     *query.FieldCatalog
	now         func() time.Time
	maxAttempts int
}

// NewService creates a dashboard service
func NewService(store ProjectStore, catalog *query.FieldCatalog) *Service {
	return &Service{
		store:       store,
		catalog:     catalog,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
}

// WithClock replaces the clock used for tile names
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListTiles returns the project's saved tiles
func (s *Service) ListTiles(ctx context.Context, projectID string) ([]query.DashboardTile, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var tiles []query.DashboardTile
	if err := json.Unmarshal(project.DashboardTiles(), &tiles); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard tiles: %w", err)
	}
	if tiles == nil {
		tiles = []query.DashboardTile{}
	}
	return tiles, nil
}

// AddTile validates q, materializes it and appends it to the project's
// dashboard. When the save fails nothing is kept locally and the error is
// returned; there is no automatic retry on backend errors.
func (s *Service) AddTile(ctx context.Context, q query.AnalyticsQuery, chartType query.ChartType) (*query.DashboardTile, error) {
	if err := query.Validate(q, chartType, s.catalog); err != nil {
		return nil, err
	}

	tile := query.Materialize(q, chartType, s.now())
	encoded, err := json.Marshal(tile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}

	err = s.modifyTiles(ctx, q.ProjectID, func(tiles []json.RawMessage) ([]json.RawMessage, error) {
		return append(tiles, encoded), nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("dashboard: added tile %q to project %s", tile.TileName, q.ProjectID)
	return &tile, nil
}

// RemoveTile deletes the tile at index from the project's dashboard
func (s *Service) RemoveTile(ctx context.Context, projectID string, index int) error {
	return s.modifyTiles(ctx, projectID, func(tiles []json.RawMessage) ([]json.RawMessage, error) {
		if index < 0 || index >= len(tiles) {
			return nil, fmt.Errorf("%w: index %d of %d", ErrTileNotFound, index, len(tiles))
		}
		out := make([]json.RawMessage, 0, len(tiles)-1)
		out = append(out, tiles[:index]...)
		return append(out, tiles[index+1:]...), nil
	})
}

// modifyTiles runs the read-modify-write cycle. Tiles are handled as raw
// JSON so fields written by other clients are preserved.
func (s *Service) modifyTiles(ctx context.Context, projectID string, mutate func([]json.RawMessage) ([]json.RawMessage, error)) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		project, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		base := project.DashboardTiles()

		var tiles []json.RawMessage
		if err := json.Unmarshal(base, &tiles); err != nil {
			return fmt.Errorf("failed to decode dashboard tiles: %w", err)
		}

		updated, err := mutate(tiles)
		if err != nil {
			return err
		}
		if updated == nil {
			updated = []json.RawMessage{}
		}

		next, err := project.WithDashboardTiles(updated)
		if err != nil {
			return err
		}

		latest, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if !sameJSON(base, latest.DashboardTiles()) {
			log.Printf("dashboard: tiles of project %s changed during update, rebasing (attempt %d)", projectID, attempt)
			continue
		}

		if _, err := s.store.SaveProject(ctx, next); err != nil {
			return fmt.Errorf("failed to save dashboard: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%w after %d attempts", ErrConcurrentModification, s.maxAttempts)
}

func sameJSON(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return false
	}
	if err := json.Compact(&cb, b); err != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

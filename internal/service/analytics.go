package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"phospho/internal/dashboard"
	"phospho/internal/query"
)

// Backend is everything the analytics service needs from the phospho API
type Backend interface {
	dashboard.ProjectStore
	query.PivotRunner
	query.MetadataSource
}

// QueryRequest carries a query and the chart it is drawn with
type QueryRequest struct {
	Query     query.AnalyticsQuery `json:"query"`
	ChartType query.ChartType      `json:"type"`
}

// ApplyRequest is a query plus editor actions to apply to it in order
type ApplyRequest struct {
	QueryRequest
	Actions []query.Action `json:"actions"`
}

// QueryResponse is a query with its derived chart axes
type QueryResponse struct {
	Query     query.AnalyticsQuery `json:"query"`
	ChartType query.ChartType      `json:"type"`
	Axes      query.Axes           `json:"axes"`
}

// CollectionFields lists what can be selected on one collection
type CollectionFields struct {
	Operations  []query.Operation `json:"operations"`
	Aggregation []string          `json:"aggregation_fields"`
	Dimensions  []string          `json:"dimensions"`
}

// CatalogResponse is the field catalog of a project
type CatalogResponse struct {
	ProjectID   string                                `json:"project_id"`
	Collections map[query.Collection]CollectionFields `json:"collections"`
}

type AnalyticsService interface {
	Catalog(ctx context.Context, projectID string) (CatalogResponse, error)
	Validate(ctx context.Context, req QueryRequest) error
	Apply(ctx context.Context, req ApplyRequest) (QueryResponse, error)
	TileName(req QueryRequest) string
	Run(ctx context.Context, req QueryRequest) (*query.QueryResult, error)
	ListTiles(ctx context.Context, projectID string) ([]query.DashboardTile, error)
	AddTile(ctx context.Context, req QueryRequest) (*query.DashboardTile, error)
	RemoveTile(ctx context.Context, projectID string, index int) error
}

// DefaultCatalogTTL bounds how long a project's metadata fields are
// trusted before they are fetched again
const DefaultCatalogTTL = 10 * time.Minute

// analyticsService serves stateless query editing on top of per-project
// field catalogs. Catalogs are reloaded after catalogTTL, and early when a
// query names a field the cached catalog does not know.
type analyticsService struct {
	backend    Backend
	now        func() time.Time
	catalogTTL time.Duration

	mu       sync.Mutex
	catalogs map[string]cachedCatalog
}

type cachedCatalog struct {
	catalog  *query.FieldCatalog
	loadedAt time.Time
}

// NewAnalyticsService constructs an AnalyticsService
func NewAnalyticsService(backend Backend) AnalyticsService {
	return &analyticsService{
		backend:    backend,
		now:        time.Now,
		catalogTTL: DefaultCatalogTTL,
		catalogs:   make(map[string]cachedCatalog),
	}
}

// catalogFor returns the catalog of a project and whether it came from
// the cache. Queries without a project get the static catalog so that
// validation reports the missing project.
func (s *analyticsService) catalogFor(ctx context.Context, projectID string) (*query.FieldCatalog, bool, error) {
	if projectID == "" {
		return query.NewFieldCatalog(), false, nil
	}

	s.mu.Lock()
	cached, ok := s.catalogs[projectID]
	s.mu.Unlock()
	if ok && s.now().Sub(cached.loadedAt) < s.catalogTTL {
		return cached.catalog, true, nil
	}

	catalog, err := s.loadCatalog(ctx, projectID)
	return catalog, false, err
}

func (s *analyticsService) loadCatalog(ctx context.Context, projectID string) (*query.FieldCatalog, error) {
	catalog := query.NewFieldCatalog()
	if err := catalog.LoadMetadata(ctx, s.backend, projectID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.catalogs[strings.Clone(projectID)] = cachedCatalog{catalog: catalog, loadedAt: s.now()}
	s.mu.Unlock()

	log.Printf("service: loaded field catalog for project %s", projectID)
	return catalog, nil
}

// withCatalog runs fn against the project's catalog. When a cached catalog
// refuses an unknown field, the metadata keys may have grown since it was
// loaded: it is reloaded and fn runs once more.
func (s *analyticsService) withCatalog(ctx context.Context, projectID string, fn func(*query.FieldCatalog) error) error {
	catalog, fromCache, err := s.catalogFor(ctx, projectID)
	if err != nil {
		return err
	}

	err = fn(catalog)
	if !fromCache || !unknownField(err) {
		return err
	}

	catalog, loadErr := s.loadCatalog(ctx, projectID)
	if loadErr != nil {
		return loadErr
	}
	return fn(catalog)
}

func unknownField(err error) bool {
	return errors.Is(err, query.ErrUnknownDimension) || errors.Is(err, query.ErrUnknownAggregationField)
}

func (s *analyticsService) Catalog(ctx context.Context, projectID string) (CatalogResponse, error) {
	catalog, _, err := s.catalogFor(ctx, projectID)
	if err != nil {
		return CatalogResponse{}, err
	}

	resp := CatalogResponse{
		ProjectID:   projectID,
		Collections: make(map[query.Collection]CollectionFields, len(query.Collections)),
	}
	for _, c := range query.Collections {
		resp.Collections[c] = CollectionFields{
			Operations:  query.OperationsFor(c),
			Aggregation: catalog.FieldsFor(c, query.RoleAggregation),
			Dimensions:  catalog.FieldsFor(c, query.RoleDimension),
		}
	}
	return resp, nil
}

func (s *analyticsService) Validate(ctx context.Context, req QueryRequest) error {
	return s.withCatalog(ctx, req.Query.ProjectID, func(catalog *query.FieldCatalog) error {
		return query.Validate(req.Query, chartOrDefault(req.ChartType), catalog)
	})
}

// Apply replays the actions on a scratch state built from the request.
// The first refused action aborts the batch with a *query.ActionError and
// the resulting query must pass Validate.
func (s *analyticsService) Apply(ctx context.Context, req ApplyRequest) (QueryResponse, error) {
	var resp QueryResponse
	err := s.withCatalog(ctx, req.Query.ProjectID, func(catalog *query.FieldCatalog) error {
		out, chart, err := s.apply(req, catalog)
		if err != nil {
			return err
		}
		resp = QueryResponse{Query: out, ChartType: chart, Axes: query.ChartAxes(out, chart)}
		return nil
	})
	return resp, err
}

func (s *analyticsService) apply(req ApplyRequest, catalog *query.FieldCatalog) (query.AnalyticsQuery, query.ChartType, error) {
	chart := chartOrDefault(req.ChartType)

	var editor *query.Editor
	if req.Query.Collection == "" {
		// Defaults go through the editor so the chart type sets the time step
		state := query.NewState(req.Query.ProjectID)
		editor = query.NewEditor(state, catalog).WithClock(s.now)
		if err := editor.SelectChartType(chart); err != nil {
			return query.AnalyticsQuery{}, "", err
		}
	} else {
		editor = query.NewEditor(query.NewStateFrom(req.Query, chart), catalog).WithClock(s.now)
	}

	if err := editor.ApplyAll(req.Actions); err != nil {
		return query.AnalyticsQuery{}, "", err
	}

	out, outChart := editor.State().Snapshot()
	if err := query.Validate(out, outChart, catalog); err != nil {
		return query.AnalyticsQuery{}, "", err
	}
	return out, outChart, nil
}

func (s *analyticsService) TileName(req QueryRequest) string {
	return query.TileName(req.Query, s.now())
}

func (s *analyticsService) Run(ctx context.Context, req QueryRequest) (*query.QueryResult, error) {
	var result *query.QueryResult
	err := s.withCatalog(ctx, req.Query.ProjectID, func(catalog *query.FieldCatalog) error {
		var execErr error
		result, execErr = query.NewExecutor(s.backend, catalog).Execute(ctx, req.Query, chartOrDefault(req.ChartType))
		return execErr
	})
	return result, err
}

func (s *analyticsService) ListTiles(ctx context.Context, projectID string) ([]query.DashboardTile, error) {
	return dashboard.NewService(s.backend, query.NewFieldCatalog()).ListTiles(ctx, projectID)
}

func (s *analyticsService) AddTile(ctx context.Context, req QueryRequest) (*query.DashboardTile, error) {
	var tile *query.DashboardTile
	err := s.withCatalog(ctx, req.Query.ProjectID, func(catalog *query.FieldCatalog) error {
		var addErr error
		tile, addErr = dashboard.NewService(s.backend, catalog).WithClock(s.now).
			AddTile(ctx, req.Query, chartOrDefault(req.ChartType))
		return addErr
	})
	if err != nil {
		return nil, fmt.Errorf("add tile: %w", err)
	}
	return tile, nil
}

func (s *analyticsService) RemoveTile(ctx context.Context, projectID string, index int) error {
	return dashboard.NewService(s.backend, query.NewFieldCatalog()).RemoveTile(ctx, projectID, index)
}

func chartOrDefault(t query.ChartType) query.ChartType {
	if t == "" {
		return query.ChartLine
	}
	return t
}

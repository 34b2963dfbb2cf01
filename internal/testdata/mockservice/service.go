package mockservice

import (
	"context"

	"phospho/internal/query"
	"phospho/internal/service"

	"github.com/stretchr/testify/mock"
)

type Service struct {
	mock.Mock
}

func (m *Service) Catalog(ctx context.Context, projectID string) (service.CatalogResponse, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(service.CatalogResponse), args.Error(1)
}

func (m *Service) Validate(ctx context.Context, req service.QueryRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *Service) Apply(ctx context.Context, req service.ApplyRequest) (service.QueryResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.QueryResponse), args.Error(1)
}

func (m *Service) TileName(req service.QueryRequest) string {
	args := m.Called(req)
	return args.String(0)
}

func (m *Service) Run(ctx context.Context, req service.QueryRequest) (*query.QueryResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*query.QueryResult)
	return result, args.Error(1)
}

func (m *Service) ListTiles(ctx context.Context, projectID string) ([]query.DashboardTile, error) {
	args := m.Called(ctx, projectID)
	tiles, _ := args.Get(0).([]query.DashboardTile)
	return tiles, args.Error(1)
}

func (m *Service) AddTile(ctx context.Context, req service.QueryRequest) (*query.DashboardTile, error) {
	args := m.Called(ctx, req)
	tile, _ := args.Get(0).(*query.DashboardTile)
	return tile, args.Error(1)
}

func (m *Service) RemoveTile(ctx context.Context, projectID string, index int) error {
	args := m.Called(ctx, projectID, index)
	return args.Error(0)
}

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"phospho/internal/api"
	"phospho/internal/query"
	"phospho/internal/testdata/mockstore"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type ServiceTestSuite struct {
	suite.Suite
	store   *mockstore.Store
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.store = &mockstore.Store{}
	s.service = NewService(s.store, query.NewFieldCatalog()).WithClock(func() time.Time { return fixedNow })
}

func project(tiles string) *api.Project {
	return api.NewProject("proj-1", []byte(`{"id":"proj-1","project_name":"bot","settings":{"events":{},"dashboard_tiles":`+tiles+`}}`))
}

func tileNames(t require.TestingT, p *api.Project) []string {
	var tiles []query.DashboardTile
	require.NoError(t, json.Unmarshal(p.DashboardTiles(), &tiles))
	names := make([]string, 0, len(tiles))
	for _, tile := range tiles {
		names = append(names, tile.TileName)
	}
	return names
}

func (s *ServiceTestSuite) TestListTiles() {
	s.store.On("GetProject", mock.Anything, "proj-1").
		Return(project(`[{"tile_name":"tasks (All time)","query":{"project_id":"proj-1","collection":"tasks","aggregation_operation":"count","dimensions":[]},"type":"pie"}]`), nil)

	tiles, err := s.service.ListTiles(context.Background(), "proj-1")

	require.NoError(s.T(), err)
	require.Len(s.T(), tiles, 1)
	assert.Equal(s.T(), query.ChartPie, tiles[0].Type)
	assert.Equal(s.T(), query.CollectionTasks, tiles[0].Query.Collection)
}

func (s *ServiceTestSuite) TestListTiles_Empty() {
	s.store.On("GetProject", mock.Anything, "proj-1").Return(project(`null`), nil)

	tiles, err := s.service.ListTiles(context.Background(), "proj-1")

	require.NoError(s.T(), err)
	assert.NotNil(s.T(), tiles)
	assert.Empty(s.T(), tiles)
}

func (s *ServiceTestSuite) TestAddTile_AppendsAndKeepsOtherTiles() {
	existing := `[{"tile_name":"old","query":{},"type":"line","layout":{"w":2}}]`
	s.store.On("GetProject", mock.Anything, "proj-1").Return(project(existing), nil)

	var saved *api.Project
	s.store.On("SaveProject", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*api.Project) }).
		Return(nil, nil)

	tile, err := s.service.AddTile(context.Background(), query.DefaultQuery("proj-1"), query.ChartLine)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), "tasks every day (All time)", tile.TileName)
	require.NotNil(s.T(), saved)
	assert.Equal(s.T(), []string{"old", "tasks every day (All time)"}, tileNames(s.T(), saved))
	assert.Contains(s.T(), string(saved.DashboardTiles()), `"layout":{"w":2}`)
	assert.Equal(s.T(), "bot", saved.Name())
}

func (s *ServiceTestSuite) TestAddTile_InvalidQueryNeverCallsBackend() {
	q := query.DefaultQuery("proj-1")
	q.AggregationOperation = query.OperationAvg

	_, err := s.service.AddTile(context.Background(), q, query.ChartLine)

	require.ErrorIs(s.T(), err, query.ErrMissingAggregationField)
	s.store.AssertNotCalled(s.T(), "GetProject", mock.Anything, mock.Anything)
	s.store.AssertNotCalled(s.T(), "SaveProject", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestAddTile_FailedSaveReturnsError() {
	s.store.On("GetProject", mock.Anything, "proj-1").Return(project(`[]`), nil)
	saveErr := &api.StatusError{Method: "POST", URL: "/api/projects/proj-1", StatusCode: 500}
	s.store.On("SaveProject", mock.Anything, mock.Anything).Return(nil, saveErr).Once()

	tile, err := s.service.AddTile(context.Background(), query.DefaultQuery("proj-1"), query.ChartLine)

	require.Nil(s.T(), tile)
	var statusErr *api.StatusError
	require.True(s.T(), errors.As(err, &statusErr))
	s.store.AssertNumberOfCalls(s.T(), "SaveProject", 1)
}

func (s *ServiceTestSuite) TestAddTile_RebasesOnConcurrentChange() {
	s.store.On("GetProject", mock.Anything, "proj-1").Return(project(`[]`), nil).Once()
	concurrent := project(`[{"tile_name":"theirs","query":{},"type":"pie"}]`)
	s.store.On("GetProject", mock.Anything, "proj-1").Return(concurrent, nil)

	var saved *api.Project
	s.store.On("SaveProject", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*api.Project) }).
		Return(nil, nil)

	_, err := s.service.AddTile(context.Background(), query.DefaultQuery("proj-1"), query.ChartLine)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"theirs", "tasks every day (All time)"}, tileNames(s.T(), saved))
	s.store.AssertNumberOfCalls(s.T(), "SaveProject", 1)
}

func (s *ServiceTestSuite) TestAddTile_GivesUpAfterMaxAttempts() {
	calls := 0
	s.store.On("GetProject", mock.Anything, "proj-1").
		Return(func(context.Context, string) *api.Project {
			calls++
			return project(`[{"tile_name":"v` + string(rune('0'+calls)) + `","query":{},"type":"pie"}]`)
		}, nil)

	_, err := s.service.AddTile(context.Background(), query.DefaultQuery("proj-1"), query.ChartLine)

	require.ErrorIs(s.T(), err, ErrConcurrentModification)
	s.store.AssertNotCalled(s.T(), "SaveProject", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestRemoveTile() {
	s.store.On("GetProject", mock.Anything, "proj-1").
		Return(project(`[{"tile_name":"a"},{"tile_name":"b"},{"tile_name":"c"}]`), nil)

	var saved *api.Project
	s.store.On("SaveProject", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*api.Project) }).
		Return(nil, nil)

	require.NoError(s.T(), s.service.RemoveTile(context.Background(), "proj-1", 1))
	assert.Equal(s.T(), []string{"a", "c"}, tileNames(s.T(), saved))
}

func (s *ServiceTestSuite) TestRemoveTile_OutOfRange() {
	s.store.On("GetProject", mock.Anything, "proj-1").Return(project(`[{"tile_name":"a"}]`), nil)

	err := s.service.RemoveTile(context.Background(), "proj-1", 5)

	require.ErrorIs(s.T(), err, ErrTileNotFound)
	s.store.AssertNotCalled(s.T(), "SaveProject", mock.Anything, mock.Anything)
}

package mockstore

import (
	"context"

	"phospho/internal/api"

	"github.com/stretchr/testify/mock"
)

// Store is a mock dashboard.ProjectStore
type Store struct {
	mock.Mock
}

func (m *Store) GetProject(ctx context.Context, projectID string) (*api.Project, error) {
	args := m.Called(ctx, projectID)
	if fn, ok := args.Get(0).(func(context.Context, string) *api.Project); ok {
		return fn(ctx, projectID), args.Error(1)
	}
	project, _ := args.Get(0).(*api.Project)
	return project, args.Error(1)
}

func (m *Store) SaveProject(ctx context.Context, project *api.Project) (*api.Project, error) {
	args := m.Called(ctx, project)
	saved, _ := args.Get(0).(*api.Project)
	return saved, args.Error(1)
}

package mockbackend

import (
	"context"

	"phospho/internal/api"
	"phospho/internal/testdata/mockstore"
)

// Backend is a mock of the whole phospho API surface
type Backend struct {
	mockstore.Store
}

func (m *Backend) RunPivot(ctx context.Context, projectID string, request *api.PivotRequest) (*api.PivotResponse, error) {
	args := m.Called(ctx, projectID, request)
	resp, _ := args.Get(0).(*api.PivotResponse)
	return resp, args.Error(1)
}

func (m *Backend) GetMetadataFields(ctx context.Context, projectID string) (*api.MetadataFields, error) {
	args := m.Called(ctx, projectID)
	fields, _ := args.Get(0).(*api.MetadataFields)
	return fields, args.Error(1)
}

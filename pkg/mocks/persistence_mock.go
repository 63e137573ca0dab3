package mocks

import (
	"context"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockGraphRepository is a mock implementation of persistence.GraphRepository interface.
type MockGraphRepository struct {
	mock.Mock
}

func (m *MockGraphRepository) LoadGraph(ctx context.Context, workflowID string) (*models.Graph, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Graph), args.Error(1)
}

func (m *MockGraphRepository) SaveGraph(ctx context.Context, graph *models.Graph) error {
	args := m.Called(ctx, graph)

	return args.Error(0)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) SaveRunRecord(ctx context.Context, record *models.RunRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockRunRepository) RunRecord(ctx context.Context, executionID string) (*models.RunRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunRecord), args.Error(1)
}

func (m *MockRunRepository) PatchRunRecord(ctx context.Context, executionID string, patch models.RunPatch) (*models.RunRecord, error) {
	args := m.Called(ctx, executionID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunRecord), args.Error(1)
}

// MockApprovalRepository is a mock implementation of persistence.ApprovalRepository interface.
type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) Approval(ctx context.Context, approvalID string) (*models.ApprovalRecord, error) {
	args := m.Called(ctx, approvalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ApprovalRecord), args.Error(1)
}

func (m *MockApprovalRepository) UpsertApproval(ctx context.Context, record *models.ApprovalRecord) (*models.ApprovalRecord, bool, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}

	return args.Get(0).(*models.ApprovalRecord), args.Bool(1), args.Error(2)
}

func (m *MockApprovalRepository) DecideApproval(ctx context.Context, approvalID string, decision persistence.Decision) (*models.ApprovalRecord, error) {
	args := m.Called(ctx, approvalID, decision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ApprovalRecord), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	graphs    *MockGraphRepository
	runs      *MockRunRepository
	approvals *MockApprovalRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		graphs:    &MockGraphRepository{},
		runs:      &MockRunRepository{},
		approvals: &MockApprovalRepository{},
	}
}

func (m *MockPersistence) GetMockGraphRepository() *MockGraphRepository {
	return m.graphs
}

func (m *MockPersistence) GetMockRunRepository() *MockRunRepository {
	return m.runs
}

func (m *MockPersistence) GetMockApprovalRepository() *MockApprovalRepository {
	return m.approvals
}

func (m *MockPersistence) GraphRepository() persistence.GraphRepository {
	return m.graphs
}

func (m *MockPersistence) RunRepository() persistence.RunRepository {
	return m.runs
}

func (m *MockPersistence) ApprovalRepository() persistence.ApprovalRepository {
	return m.approvals
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

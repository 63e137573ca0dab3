package mocks

import (
	"context"

	"github.com/dukex/flowgate/pkg/llm"
	"github.com/stretchr/testify/mock"
)

// MockModels is a mock implementation of llm.Models interface.
type MockModels struct {
	mock.Mock
}

func (m *MockModels) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*llm.Response), args.Error(1)
}

// MockCredentialSource is a mock implementation of llm.CredentialSource interface.
type MockCredentialSource struct {
	mock.Mock
}

func (m *MockCredentialSource) Credentials(ctx context.Context, provider llm.Provider) (llm.Credentials, error) {
	args := m.Called(ctx, provider)

	return args.Get(0).(llm.Credentials), args.Error(1)
}

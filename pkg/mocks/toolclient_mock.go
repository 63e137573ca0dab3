package mocks

import (
	"context"

	"github.com/dukex/flowgate/pkg/toolclient"
	"github.com/stretchr/testify/mock"
)

// MockInvoker is a mock implementation of toolclient.Invoker interface.
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, invocation toolclient.Invocation) (any, error) {
	args := m.Called(ctx, invocation)

	return args.Get(0), args.Error(1)
}

package mocks

import (
	"context"
	"sync"

	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// RecordingPublisher keeps every published event in order.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []eventbus.Event
	Keys   []string
}

func (r *RecordingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Events = append(r.Events, event)
	r.Keys = append(r.Keys, key)

	return nil
}

// Types returns the types of the recorded events in publication order.
func (r *RecordingPublisher) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]events.EventType, 0, len(r.Events))
	for _, event := range r.Events {
		types = append(types, event.GetType())
	}

	return types
}

package remote

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockChannel is a mock implementation of the Channel interface, built on testify/mock.
//
// Request methods record their calls and return what the test configured with On(...).
// Events are injected with Emit and the stream is ended with Close.
type MockChannel struct {
	mock.Mock

	events    chan Event
	closeOnce sync.Once
}

var _ Channel = (*MockChannel)(nil)

// NewMockChannel creates a mock channel whose event stream buffers up to buffer events.
func NewMockChannel(buffer int) *MockChannel {
	return &MockChannel{events: make(chan Event, buffer)}
}

// CommitProperties mocks the CommitProperties method.
func (m *MockChannel) CommitProperties(ctx context.Context, objectID string, values map[string]any) error {
	args := m.Called(ctx, objectID, values)
	return args.Error(0)
}

// RefreshProperties mocks the RefreshProperties method.
func (m *MockChannel) RefreshProperties(ctx context.Context, objectID string, names []string) (map[string]any, error) {
	args := m.Called(ctx, objectID, names)

	values, _ := args.Get(0).(map[string]any)

	return values, args.Error(1)
}

// StartScan mocks the StartScan method.
func (m *MockChannel) StartScan(ctx context.Context, req ScanRequest) (ScanStart, error) {
	args := m.Called(ctx, req)

	start, _ := args.Get(0).(ScanStart)

	return start, args.Error(1)
}

// StopScan mocks the StopScan method.
func (m *MockChannel) StopScan(ctx context.Context, h Handle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

// Events returns the injected event stream.
func (m *MockChannel) Events() <-chan Event {
	return m.events
}

// Emit injects events into the stream, in order. It blocks while the buffer is full.
func (m *MockChannel) Emit(events ...Event) {
	for _, ev := range events {
		m.events <- ev
	}
}

// Close ends the event stream.
func (m *MockChannel) Close() {
	m.closeOnce.Do(func() { close(m.events) })
}

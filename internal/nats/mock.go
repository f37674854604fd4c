package nats

import (
	"context"
	"sync"

	"github.com/AlexZinkM/solwallet/internal/model"
)

// MockPublisher records outcome events in memory.
type MockPublisher struct {
	mu           sync.RWMutex
	events       []*OutcomeEvent
	publishError error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishOutcome records the event and returns any configured error.
func (m *MockPublisher) PublishOutcome(_ context.Context, record *model.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.events = append(m.events, FromRecord(record))
	return nil
}

// Events returns a copy of all published events.
func (m *MockPublisher) Events() []*OutcomeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*OutcomeEvent, len(m.events))
	copy(events, m.events)
	return events
}

// SetPublishError makes PublishOutcome fail with err.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockPublisher) Close() error {
	return nil
}

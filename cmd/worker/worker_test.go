package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// MockWorker records the events it handles
type MockWorker struct {
	mu     sync.Mutex
	events []model.CampaignEvent
	err    error
}

func (m *MockWorker) Handle(_ context.Context, evt model.CampaignEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func TestEventHandler(t *testing.T) {
	w := &MockWorker{}
	handle := eventHandler(context.Background(), w, logger.NewNop())

	body := []byte(`{"type":"completed","campaign_id":"c1","campaign_type":"Connection","processed":30}`)
	require.NoError(t, handle(body))

	require.Len(t, w.events, 1)
	assert.Equal(t, model.EventCompleted, w.events[0].Type)
	assert.Equal(t, "c1", w.events[0].CampaignID)
	assert.Equal(t, 30, w.events[0].Processed)
}

func TestEventHandler_MalformedBodyIsAcked(t *testing.T) {
	w := &MockWorker{}
	handle := eventHandler(context.Background(), w, logger.NewNop())

	assert.NoError(t, handle([]byte(`{not json`)))
	assert.Empty(t, w.events)
}

func TestEventHandler_WorkerErrorRequeues(t *testing.T) {
	w := &MockWorker{err: errors.New("ses throttled")}
	handle := eventHandler(context.Background(), w, logger.NewNop())

	assert.Error(t, handle([]byte(`{"type":"stopped","campaign_id":"c1"}`)))
}

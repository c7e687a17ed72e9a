package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"opsdash/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	sent    []int64
	failed  []int64
}

func (s *fakeStore) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(ctx context.Context, eventID int64) error {
	s.sent = append(s.sent, eventID)
	return nil
}

func (s *fakeStore) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	s.failed = append(s.failed, eventID)
	return nil
}

type fakePublisher struct {
	failKeys map[string]bool
	traces   []string
	keys     []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.failKeys[routingKey] {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, routingKey)
	p.traces = append(p.traces, trace.FromContext(ctx))
	return nil
}

func event(id int64, key string, payload any) *Event {
	body, _ := json.Marshal(payload)
	return &Event{ID: id, RoutingKey: key, Payload: body, Status: StatusPending}
}

func TestDispatcher_PublishesAndMarks(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(1, "project.created", map[string]string{"project_id": "p1", "trace_id": "t-1"}),
		event(2, "ofx.imported", map[string]string{"import_id": "i1"}),
		event(3, "task.priority_changed", map[string]string{"task_id": "x"}),
	}}
	pub := &fakePublisher{failKeys: map[string]bool{"ofx.imported": true}}

	d := NewDispatcher(store, pub, zap.NewNop())
	sent := d.ProcessPendingEvents(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)
	assert.Equal(t, []string{"t-1", ""}, pub.traces)
}

func TestDispatcher_StopsBatchWhenBreakerOpens(t *testing.T) {
	var pending []*Event
	for i := int64(1); i <= 8; i++ {
		pending = append(pending, event(i, "project.created", map[string]int64{"n": i}))
	}
	store := &fakeStore{pending: pending}
	pub := &fakePublisher{failKeys: map[string]bool{"project.created": true}}

	d := NewDispatcher(store, pub, zap.NewNop())
	d.ProcessPendingEvents(context.Background())

	// 5 failures trip the default breaker; the rest are left pending untouched
	assert.Len(t, store.failed, 5)
	assert.Empty(t, store.sent)
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	status, next := nextAttempt(2, 5, now)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, now.Add(10*time.Second), *next)

	status, next = nextAttempt(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}

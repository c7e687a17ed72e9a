package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "opsdash/contracts/mq"
	"opsdash/internal/model"
	"opsdash/internal/service/project"
	"opsdash/pkg/mq"
)

type fakeSweeper struct {
	changes []project.PriorityChange
	err     error
	runs    atomic.Int32
}

func (f *fakeSweeper) SweepPriorities(context.Context) ([]project.PriorityChange, error) {
	f.runs.Add(1)
	return f.changes, f.err
}

type published struct {
	key     string
	payload any
}

type fakePublisher struct {
	sent    []published
	failFor string
}

func (p *fakePublisher) PublishWithContext(_ context.Context, key string, payload any) error {
	if pl, ok := payload.(contracts.TaskPriorityChangedPayload); ok && pl.TaskID == p.failFor {
		return errors.New("channel closed")
	}
	p.sent = append(p.sent, published{key: key, payload: payload})
	return nil
}

func TestPrioritySweeper_RunOncePublishesChanges(t *testing.T) {
	due := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	sw := &fakeSweeper{changes: []project.PriorityChange{
		{Task: model.Task{ID: "t1", ProjectID: "p1", Priority: model.PriorityHigh, DueDate: &due}, From: model.PriorityMedium},
		{Task: model.Task{ID: "t2", ProjectID: "p1", Priority: model.PriorityMedium}, From: model.PriorityLow},
	}}
	pub := &fakePublisher{}
	s := NewPrioritySweeper(sw, pub, time.Minute, zap.NewNop())
	s.now = func() time.Time { return due }

	n := s.RunOnce(context.Background())

	assert.Equal(t, 2, n)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, mq.RoutingTaskPriorityChanged, pub.sent[0].key)
	first := pub.sent[0].payload.(contracts.TaskPriorityChangedPayload)
	assert.Equal(t, "medium", first.From)
	assert.Equal(t, "high", first.To)
	assert.Equal(t, "2024-03-12", first.DueDate)
	assert.NotEmpty(t, first.TraceID)
	assert.Empty(t, pub.sent[1].payload.(contracts.TaskPriorityChangedPayload).DueDate)
}

func TestPrioritySweeper_PublishFailureSkipsOne(t *testing.T) {
	sw := &fakeSweeper{changes: []project.PriorityChange{
		{Task: model.Task{ID: "t1", ProjectID: "p1", Priority: model.PriorityHigh}, From: model.PriorityLow},
		{Task: model.Task{ID: "t2", ProjectID: "p1", Priority: model.PriorityHigh}, From: model.PriorityLow},
	}}
	pub := &fakePublisher{failFor: "t1"}

	n := NewPrioritySweeper(sw, pub, time.Minute, zap.NewNop()).RunOnce(context.Background())
	assert.Equal(t, 1, n)
}

func TestPrioritySweeper_SweepError(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("db down")}
	pub := &fakePublisher{}

	n := NewPrioritySweeper(sw, pub, time.Minute, zap.NewNop()).RunOnce(context.Background())
	assert.Zero(t, n)
	assert.Empty(t, pub.sent)
}

func TestPrioritySweeper_StartStopsWithContext(t *testing.T) {
	sw := &fakeSweeper{}
	s := NewPrioritySweeper(sw, &fakePublisher{}, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sw.runs.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

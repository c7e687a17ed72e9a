package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsdash/contracts/mq"
	"opsdash/internal/model"
	"opsdash/pkg/util"
)

func newDeduper(t *testing.T) *util.Deduper {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return util.NewDeduper(rdb, time.Hour, zap.NewNop())
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

type loader struct {
	calls int
	err   error
}

func (l *loader) Get(_ context.Context, id string) (*model.Project, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &model.Project{ID: id, Tasks: []model.Task{{ID: "t1"}, {ID: "t2"}}}, nil
}

func TestProjectCreatedHandler_WarmsOnce(t *testing.T) {
	l := &loader{}
	h := NewProjectCreatedHandler(l, newDeduper(t), zap.NewNop())
	raw := payload(t, mq.ProjectCreatedPayload{ProjectID: "p-1", TaskCount: 2})

	require.NoError(t, h.HandleProjectCreated(context.Background(), raw))
	require.NoError(t, h.HandleProjectCreated(context.Background(), raw))
	assert.Equal(t, 1, l.calls)
}

func TestProjectCreatedHandler_DeletedProjectAcked(t *testing.T) {
	l := &loader{err: model.ErrNotFound}
	h := NewProjectCreatedHandler(l, newDeduper(t), zap.NewNop())

	err := h.HandleProjectCreated(context.Background(), payload(t, mq.ProjectCreatedPayload{ProjectID: "p-1"}))
	assert.NoError(t, err)
}

func TestProjectCreatedHandler_FailureReleasesKey(t *testing.T) {
	l := &loader{err: errors.New("db down")}
	h := NewProjectCreatedHandler(l, newDeduper(t), zap.NewNop())
	raw := payload(t, mq.ProjectCreatedPayload{ProjectID: "p-1"})

	assert.Error(t, h.HandleProjectCreated(context.Background(), raw))

	// 重试时可以再次处理
	l.err = nil
	require.NoError(t, h.HandleProjectCreated(context.Background(), raw))
	assert.Equal(t, 2, l.calls)
}

func TestProjectCreatedHandler_BadPayload(t *testing.T) {
	h := NewProjectCreatedHandler(&loader{}, nil, zap.NewNop())
	assert.Error(t, h.HandleProjectCreated(context.Background(), json.RawMessage(`{`)))
}

type dashboardSpy struct{ invalidations int }

func (d *dashboardSpy) InvalidateDashboard(context.Context) { d.invalidations++ }

func TestOFXImportedHandler(t *testing.T) {
	spy := &dashboardSpy{}
	h := NewOFXImportedHandler(spy, newDeduper(t), zap.NewNop())
	ctx := context.Background()

	parked := payload(t, mq.OFXImportedPayload{ImportID: "imp-1", EntriesCount: 3})
	require.NoError(t, h.HandleOFXImported(ctx, parked))
	assert.Zero(t, spy.invalidations)

	confirmed := payload(t, mq.OFXImportedPayload{ImportID: "imp-1", EntriesCount: 3, Confirmed: true})
	require.NoError(t, h.HandleOFXImported(ctx, confirmed))
	require.NoError(t, h.HandleOFXImported(ctx, confirmed))
	assert.Equal(t, 1, spy.invalidations)
}

package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 提供重放失败 Outbox 事件的服务；事件被重置为 pending，
// 由 Dispatcher 在下一轮重新发送。
type ReplayService struct {
	repo   *Repository
	logger *zap.Logger
}

func NewReplayService(repo *Repository, logger *zap.Logger) *ReplayService {
	return &ReplayService{repo: repo, logger: logger}
}

// ListFailed 返回最近失败的事件
func (s *ReplayService) ListFailed(ctx context.Context, limit int) ([]*Event, error) {
	return s.repo.GetFailedEvents(ctx, limit)
}

// ReplayEvent 重放指定的事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	if err := s.repo.ReplayEvent(ctx, event.ID); err != nil {
		return err
	}

	s.logger.Info("Outbox event scheduled for replay",
		zap.Int64("event_id", event.ID),
		zap.String("routing_key", event.RoutingKey),
	)
	return nil
}

package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	contracts "opsdash/contracts/mq"
	"opsdash/internal/model"
	"opsdash/internal/service/project"
	"opsdash/pkg/mq"
	"opsdash/pkg/trace"
)

type Sweeper interface {
	SweepPriorities(ctx context.Context) ([]project.PriorityChange, error)
}

type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// PrioritySweeper 周期性重新计算未完成任务的优先级，并为每个变化发出 task.priority_changed
type PrioritySweeper struct {
	sweeper   Sweeper
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewPrioritySweeper(sweeper Sweeper, publisher Publisher, interval time.Duration, logger *zap.Logger) *PrioritySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PrioritySweeper{
		sweeper:   sweeper,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Start 启动时先跑一次，之后按 interval 执行，直到 ctx 结束
func (s *PrioritySweeper) Start(ctx context.Context) {
	s.logger.Info("Priority sweeper started", zap.Duration("interval", s.interval))

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Priority sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一轮巡检，返回发布成功的事件数
func (s *PrioritySweeper) RunOnce(ctx context.Context) int {
	ctx = trace.WithContext(ctx, trace.GenerateTraceID())

	changes, err := s.sweeper.SweepPriorities(ctx)
	if err != nil {
		s.logger.Error("Priority sweep failed", zap.Error(err))
		return 0
	}
	if len(changes) == 0 {
		s.logger.Debug("Priority sweep found no drift")
		return 0
	}

	published := 0
	for _, c := range changes {
		payload := contracts.TaskPriorityChangedPayload{
			ProjectID: c.Task.ProjectID,
			TaskID:    c.Task.ID,
			From:      string(c.From),
			To:        string(c.Task.Priority),
			ChangedAt: s.now(),
			TraceID:   trace.FromContext(ctx),
		}
		if c.Task.DueDate != nil {
			payload.DueDate = c.Task.DueDate.Format(model.DateLayout)
		}

		// 优先级已落库，发布失败只记录日志，下一轮不会重复发
		if err := s.publisher.PublishWithContext(ctx, mq.RoutingTaskPriorityChanged, payload); err != nil {
			s.logger.Error("Failed to publish task.priority_changed",
				zap.String("project_id", payload.ProjectID),
				zap.String("task_id", payload.TaskID),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	s.logger.Info("Priority sweep completed",
		zap.Int("changed", len(changes)),
		zap.Int("published", published),
	)
	return published
}

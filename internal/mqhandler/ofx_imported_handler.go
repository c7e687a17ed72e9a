package mqhandler

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"opsdash/contracts/mq"
	"opsdash/pkg/logger"
	"opsdash/pkg/trace"
	"opsdash/pkg/util"
)

const ofxImportedHandlerName = "ofx_imported"

type DashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context)
}

type OFXImportedHandler struct {
	cache  DashboardInvalidator
	dedup  *util.Deduper
	logger *zap.Logger
}

func NewOFXImportedHandler(cache DashboardInvalidator, dedup *util.Deduper, logger *zap.Logger) *OFXImportedHandler {
	return &OFXImportedHandler{
		cache:  cache,
		dedup:  dedup,
		logger: logger,
	}
}

// HandleOFXImported 清掉仪表盘缓存。上传和确认各发一次事件，去重键区分两者。
func (h *OFXImportedHandler) HandleOFXImported(ctx context.Context, raw json.RawMessage) error {
	var p mq.OFXImportedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal ofx imported payload", zap.Error(err))
		return err
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger)

	key := p.ImportID + ":" + strconv.FormatBool(p.Confirmed)
	if h.dedup != nil && !h.dedup.AcquireOnce(ctx, ofxImportedHandlerName, key) {
		return nil
	}

	// 只有确认后的条目会进入报表
	if !p.Confirmed {
		log.Info("OFX import parked",
			zap.String("import_id", p.ImportID),
			zap.String("filename", p.Filename),
			zap.Int("entries_count", p.EntriesCount),
		)
		return nil
	}

	h.cache.InvalidateDashboard(ctx)
	log.Info("OFX import confirmed, dashboard invalidated",
		zap.String("import_id", p.ImportID),
		zap.Int("entries_count", p.EntriesCount),
	)
	return nil
}

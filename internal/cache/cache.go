// Package cache keeps short-lived copies of projects, OFX uploads and the
// finance dashboard in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/ofx"
	"opsdash/pkg/circuitbreaker"
	"opsdash/pkg/metrics"
)

const (
	KindProject   = "project"
	KindOFX       = "ofx"
	KindDashboard = "dashboard"

	dashboardKey = "dashboard:summary"
)

// TTLs per key kind.
type TTLs struct {
	Project   time.Duration
	OFX       time.Duration
	Dashboard time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Project:   time.Hour,
		OFX:       2 * time.Hour,
		Dashboard: 15 * time.Minute,
	}
}

var errMiss = errors.New("cache miss")

type Cache struct {
	rdb    *redis.Client
	ttl    TTLs
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

func New(rdb *redis.Client, ttl TTLs, logger *zap.Logger) *Cache {
	return &Cache{
		rdb:    rdb,
		ttl:    ttl,
		cb:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger: logger,
	}
}

func projectKey(id string) string {
	return "project:" + id
}

func ofxKey(importID string) string {
	return "ofx:" + importID
}

// GetProject returns the cached project. Any Redis failure counts as a miss.
func (c *Cache) GetProject(ctx context.Context, id string) (*model.Project, bool) {
	var p model.Project
	if !c.get(ctx, KindProject, projectKey(id), &p) {
		return nil, false
	}
	return &p, true
}

func (c *Cache) SetProject(ctx context.Context, p *model.Project) {
	if err := c.set(ctx, projectKey(p.ID), p, c.ttl.Project); err != nil {
		c.logger.Warn("Failed to cache project", zap.String("project_id", p.ID), zap.Error(err))
	}
}

func (c *Cache) InvalidateProject(ctx context.Context, id string) {
	c.del(ctx, projectKey(id))
}

// SetOFXEntries stores parsed entries until the import is confirmed. Unlike
// the other setters the error is returned: the upload is lost without it.
func (c *Cache) SetOFXEntries(ctx context.Context, importID string, entries []ofx.Entry) error {
	return c.set(ctx, ofxKey(importID), entries, c.ttl.OFX)
}

func (c *Cache) GetOFXEntries(ctx context.Context, importID string) ([]ofx.Entry, bool) {
	var entries []ofx.Entry
	if !c.get(ctx, KindOFX, ofxKey(importID), &entries) {
		return nil, false
	}
	return entries, true
}

func (c *Cache) DeleteOFXEntries(ctx context.Context, importID string) {
	c.del(ctx, ofxKey(importID))
}

// GetDashboard decodes the cached summary into out.
func (c *Cache) GetDashboard(ctx context.Context, out any) bool {
	return c.get(ctx, KindDashboard, dashboardKey, out)
}

func (c *Cache) SetDashboard(ctx context.Context, summary any) {
	if err := c.set(ctx, dashboardKey, summary, c.ttl.Dashboard); err != nil {
		c.logger.Warn("Failed to cache dashboard summary", zap.Error(err))
	}
}

func (c *Cache) InvalidateDashboard(ctx context.Context) {
	c.del(ctx, dashboardKey)
}

func (c *Cache) get(ctx context.Context, kind, key string, out any) bool {
	var raw []byte
	err := c.cb.Execute(func() error {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	switch {
	case err != nil:
		metrics.RecordCacheLookup(kind, "error")
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	case raw == nil:
		metrics.RecordCacheLookup(kind, "miss")
		return false
	}

	if err := json.Unmarshal(raw, out); err != nil {
		metrics.RecordCacheLookup(kind, "error")
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.del(ctx, key)
		return false
	}
	metrics.RecordCacheLookup(kind, "hit")
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.cb.Execute(func() error {
		return c.rdb.Set(ctx, key, data, ttl).Err()
	})
}

func (c *Cache) del(ctx context.Context, key string) {
	err := c.cb.Execute(func() error {
		return c.rdb.Del(ctx, key).Err()
	})
	if err != nil {
		c.logger.Warn("Failed to invalidate cache key", zap.String("key", key), zap.Error(err))
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"opsdash/internal/cache"
	"opsdash/internal/workflow"
	"opsdash/pkg/config"
	"opsdash/pkg/otel"
)

type CacheConfig struct {
	ProjectTTL   time.Duration `yaml:"project_ttl"`
	OFXTTL       time.Duration `yaml:"ofx_ttl"`
	DashboardTTL time.Duration `yaml:"dashboard_ttl"`
	DedupTTL     time.Duration `yaml:"dedup_ttl"`
}

// TTLs 未配置的项回落到默认值
func (c CacheConfig) TTLs() cache.TTLs {
	ttl := cache.DefaultTTLs()
	if c.ProjectTTL > 0 {
		ttl.Project = c.ProjectTTL
	}
	if c.OFXTTL > 0 {
		ttl.OFX = c.OFXTTL
	}
	if c.DashboardTTL > 0 {
		ttl.Dashboard = c.DashboardTTL
	}
	return ttl
}

type ProjectConfig struct {
	// 状态 -> 允许迁移到的状态；未列出的状态不受限制
	StatusTransitions map[string][]string `yaml:"status_transitions"`
}

func (c ProjectConfig) Policy() (*workflow.Policy, error) {
	if len(c.StatusTransitions) == 0 {
		return workflow.AllowAll(), nil
	}
	return workflow.NewPolicy(c.StatusTransitions)
}

type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type MQRetryConfig struct {
	MaxRetries int64         `yaml:"max_retries"`
	CounterTTL time.Duration `yaml:"counter_ttl"`
}

type Config struct {
	DB      config.DBConfig     `yaml:"db"`
	Redis   config.RedisConfig  `yaml:"redis"`
	MQ      config.MQConfig     `yaml:"mq"`
	Server  config.ServerConfig `yaml:"server"`
	Log     config.LogConfig    `yaml:"log"`
	Cache   CacheConfig         `yaml:"cache"`
	Project ProjectConfig       `yaml:"project"`
	Sweeper SweeperConfig       `yaml:"sweeper"`
	Outbox  OutboxConfig        `yaml:"outbox"`
	Retry   MQRetryConfig       `yaml:"retry"`
	Otel    otel.Config         `yaml:"otel"`
}

// Load 读取 CONFIG_DIR 下的 base.yaml 与 CONFIG_ENV 对应的覆盖文件，再用环境变量覆盖
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	dir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, dir)
}

func LoadFrom(env, dir string) (*Config, error) {
	raw, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLogFromEnv(&cfg.Log)
	if v := os.Getenv("SWEEPER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sweeper.Interval = d
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if !strings.HasPrefix(c.Server.Port, ":") && !strings.Contains(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Sweeper.Interval <= 0 {
		c.Sweeper.Interval = time.Hour
	}
	if c.Cache.DedupTTL <= 0 {
		c.Cache.DedupTTL = 24 * time.Hour
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.CounterTTL <= 0 {
		c.Retry.CounterTTL = time.Hour
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Otel.Endpoint = v
		c.Otel.Enabled = true
	}
}

func (c *Config) validate() error {
	if c.DB.Host == "" || c.DB.Name == "" {
		return fmt.Errorf("db.host and db.name are required")
	}
	if c.MQ.URL == "" {
		return fmt.Errorf("mq.url is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if _, err := c.Project.Policy(); err != nil {
		return fmt.Errorf("project.status_transitions: %w", err)
	}
	return nil
}

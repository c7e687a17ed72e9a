package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfig_MergesEnvironmentOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n  port: 5432\nserver:\n  port: \":8080\"\n")
	writeFile(t, dir, "production.yaml", "db:\n  host: db.internal\n")

	raw, err := LoadConfig("production", dir)
	require.NoError(t, err)

	var out struct {
		DB     DBConfig     `yaml:"db"`
		Server ServerConfig `yaml:"server"`
	}
	require.NoError(t, Decode(raw, &out))

	assert.Equal(t, "db.internal", out.DB.Host)
	assert.Equal(t, 5432, out.DB.Port)
	assert.Equal(t, ":8080", out.Server.Port)
}

func TestLoadConfig_SubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  password: ${DB_SECRET}\n")
	writeFile(t, dir, "secrets.env", "# comment\nDB_SECRET=\"s3cret\"\n")

	raw, err := LoadConfig("local", dir)
	require.NoError(t, err)

	var out struct {
		DB DBConfig `yaml:"db"`
	}
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, "s3cret", out.DB.Password)
}

func TestLoadConfig_SystemEnvFillsRemainingPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "mq:\n  url: ${OPSDASH_TEST_MQ}\n")
	t.Setenv("OPSDASH_TEST_MQ", "amqp://guest:guest@mq:5672/")

	raw, err := LoadConfig("", dir)
	require.NoError(t, err)

	var out struct {
		MQ MQConfig `yaml:"mq"`
	}
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, "amqp://guest:guest@mq:5672/", out.MQ.URL)
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestOverrideRedisFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "3")

	cfg := RedisConfig{Addr: "localhost:6379"}
	OverrideRedisFromEnv(&cfg)

	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}

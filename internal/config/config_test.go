package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  log_level: debug
server:
  addr: ":8080"
data:
  root: /tmp/market
backtest:
  stop_win_pct: 0.1
  stop_loss_pct: 0.03
  patterns: [bullish_engulfing]
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/tmp/market", cfg.Data.Root)
	assert.Equal(t, 0.1, cfg.Backtest.StopWinPct)
	assert.Equal(t, []string{"bullish_engulfing"}, cfg.Backtest.Patterns)
	// 未显式配置的字段取缺省。
	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "data/results", cfg.Data.ResultsRoot)
	assert.Equal(t, 2, cfg.Backtest.MaxConcurrent)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "app:\n  env: prod\n")
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.Server.Addr)
	assert.Equal(t, "data/market", cfg.Data.Root)
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", "server:\n  addr: \":7000\"\nbacktest:\n  stop_win_pct: 0.15\n")
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
backtest:
  stop_win_pct: 0.25
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	// 主文件覆盖 include。
	assert.Equal(t, 0.25, cfg.Backtest.StopWinPct)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoadValidate(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "backtest:\n  stop_win_pct: 1.5\n")
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, dir, "config2.yaml", "backtest:\n  transaction_cost_pct: -0.1\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config 是应用级配置树。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Data     DataConfig     `mapstructure:"data"`
	Backtest BacktestConfig `mapstructure:"backtest"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DataConfig struct {
	// Root 是按 symbol 切分的 sqlite 数据目录。
	Root string `mapstructure:"root"`
	// ResultsRoot 存放回测结果库。
	ResultsRoot string `mapstructure:"results_root"`
	// WatchDir 非空时启用落盘目录监听，下载器写入即自动导入。
	WatchDir string `mapstructure:"watch_dir"`
}

type BacktestConfig struct {
	StopWinPct           float64  `mapstructure:"stop_win_pct"`
	StopLossPct          float64  `mapstructure:"stop_loss_pct"`
	TransactionCostPct   float64  `mapstructure:"transaction_cost_pct"`
	MaxHoldingDays       int      `mapstructure:"max_holding_days"`
	Patterns             []string `mapstructure:"patterns"`
	EarningsWindowBefore int      `mapstructure:"earnings_window_before"`
	EarningsWindowUntil  int      `mapstructure:"earnings_window_until"`
	IndicatorContext     bool     `mapstructure:"indicator_context"`
	MaxConcurrent        int      `mapstructure:"max_concurrent"`
	Parallelism          int      `mapstructure:"parallelism"`
}

// Load 读取 YAML 配置，支持 include 列表合并多份文件。
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9991"
	}
	if c.Data.Root == "" {
		c.Data.Root = "data/market"
	}
	if c.Data.ResultsRoot == "" {
		c.Data.ResultsRoot = "data/results"
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = 2
	}
	if c.Backtest.Parallelism <= 0 {
		c.Backtest.Parallelism = 4
	}
}

func validate(c *Config) error {
	if c.Backtest.StopWinPct < 0 || c.Backtest.StopWinPct > 1 {
		return fmt.Errorf("backtest.stop_win_pct 需在 [0,1]")
	}
	if c.Backtest.StopLossPct < 0 || c.Backtest.StopLossPct > 1 {
		return fmt.Errorf("backtest.stop_loss_pct 需在 [0,1]")
	}
	if c.Backtest.TransactionCostPct < 0 {
		return fmt.Errorf("backtest.transaction_cost_pct 不能为负")
	}
	if c.Backtest.MaxHoldingDays < 0 {
		return fmt.Errorf("backtest.max_holding_days 不能为负")
	}
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

func resolveConfigIncludes(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	stack := make(map[string]bool)
	files, err := collectConfigFiles(abs, seen, stack)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []string{abs}, nil
	}
	return files, nil
}

func collectConfigFiles(path string, seen, stack map[string]bool) ([]string, error) {
	path = filepath.Clean(path)
	if stack[path] {
		return nil, fmt.Errorf("include cycle detected: %s", path)
	}
	if seen[path] {
		return nil, nil
	}
	stack[path] = true
	includes, err := parseIncludeList(path)
	if err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	dir := filepath.Dir(path)
	var ordered []string
	for _, inc := range includes {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(inc) {
			incPath = filepath.Join(dir, inc)
		}
		sub, err := collectConfigFiles(incPath, seen, stack)
		if err != nil {
			return nil, err
		}
		if len(sub) > 0 {
			ordered = append(ordered, sub...)
		}
	}
	delete(stack, path)
	seen[path] = true
	ordered = append(ordered, path)
	return ordered, nil
}

func parseIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	switch val := raw.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out, nil
	case []string:
		return val, nil
	case string:
		return []string{val}, nil
	default:
		return nil, fmt.Errorf("include 字段需为字符串或列表")
	}
}

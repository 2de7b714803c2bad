package app

import (
	"context"
	"fmt"

	"candlelab/internal/backtest"
	"candlelab/internal/config"
	"candlelab/internal/logger"
	"candlelab/internal/store"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与目录监听。
type App struct {
	cfg     *config.Config
	store   *store.Store
	results *backtest.ResultStore
	runner  *backtest.Runner
	httpSrv *backtest.HTTPServer
	watcher *store.Watcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动各组件，阻塞直到 ctx 取消或任一组件失败。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.runner.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		group.Go(func() error {
			if err := a.watcher.Start(ctx); err != nil {
				return fmt.Errorf("data watcher error: %w", err)
			}
			return nil
		})
	}

	err := group.Wait()
	a.Close()
	return err
}

// Close 释放存储句柄。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭数据存储失败: %v", err)
		}
	}
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			logger.Warnf("关闭结果存储失败: %v", err)
		}
	}
}

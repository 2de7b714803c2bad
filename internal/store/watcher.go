package store

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"candlelab/internal/logger"
)

const importDebounce = 500 * time.Millisecond

// Watcher 监听数据落盘目录，下载器写完 CSV/JSON 后自动入库。
// 写入做 debounce 合并，避免大文件分多次写触发半成品导入。
type Watcher struct {
	store *Store
	dir   string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewWatcher(store *Store, dir string) *Watcher {
	return &Watcher{
		store:   store,
		dir:     dir,
		pending: make(map[string]*time.Timer),
	}
}

// Start 阻塞运行直到 ctx 取消。目录不存在时返回错误。
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	logger.Infof("监听数据目录: %s", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
				continue
			}
			if !IsCSVDataFile(evt.Name) && !IsEarningsDataFile(evt.Name) {
				continue
			}
			w.schedule(ctx, evt.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("数据目录监听错误: %v", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(importDebounce)
		return
	}
	w.pending[path] = time.AfterFunc(importDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	var (
		symbol string
		n      int
		err    error
	)
	switch {
	case IsCSVDataFile(path):
		symbol, n, err = w.store.ImportCSVFile(ctx, path)
	case IsEarningsDataFile(path):
		symbol, n, err = w.store.ImportEarningsFile(ctx, path)
	default:
		return
	}
	if err != nil {
		logger.Warnf("自动导入 %s 失败: %v", path, err)
		return
	}
	logger.Infof("自动导入 %s: %d 条记录", symbol, n)
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DriftReport 配置文件变更的校验结果。运行中的引擎保持启动时的
// 不可变配置；这里只报告磁盘上的版本是否合法、需要重启才能生效。
type DriftReport struct {
	Path   string
	Config AppConfig
	Err    error
	SeenAt time.Time
}

// Watcher 监听配置文件写入并重新校验。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 连续写入的去抖间隔
}

// Start 阻塞运行直到 ctx 结束；每次有效变更调用 onDrift。
func (w Watcher) Start(ctx context.Context, onDrift func(DriftReport)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	// 监听目录而不是文件：编辑器普遍用 rename+create 落盘。
	dir := filepath.Dir(w.Path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.Path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			now := time.Now()
			if now.Sub(last) < w.Cooldown {
				continue
			}
			last = now
			cfg, err := LoadWithEnvOverrides(w.Path)
			if onDrift != nil {
				onDrift(DriftReport{Path: w.Path, Config: cfg, Err: err, SeenAt: now})
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			_ = err // 监听错误不致命，下次事件继续
		}
	}
}

// Package sqlite file: internal/adapter/engine/sqlite/watcher.go
package sqlite

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/luiz158/isar/internal/isarobserve"
)

const debounceDuration = 2 * time.Second

// Watcher 监视存储目录，发现已打开实例的数据库文件被外部进程
// 修改或删除时给出告警。嵌入式内核不能在活事务底下热替换存储，
// 因此这里只做检测与计数，不做任何热加载。
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher

	eventTimersMu sync.Mutex
	eventTimers   map[string]*time.Timer

	done chan struct{}
}

// StartWatcher 在给定存储目录上启动文件系统监视。
// 返回的 Watcher 需要在进程退出前 Close。
func (r *Registry) StartWatcher(dir string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}

	w := &Watcher{
		registry:    r,
		watcher:     watcher,
		eventTimers: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}

	if err := watcher.Add(filepath.Clean(dir)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("添加存储目录 '%s' 到监视器失败: %w", dir, err)
	}
	slog.Info("文件监视器已启动", "dir", dir)

	go w.run()
	return w, nil
}

// Close 停止监视。
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("文件监视器报告错误", "error", errWatch)
		case <-w.done:
			return
		}
	}
}

// handleFsEvent 对单个事件做防抖归并，连续事件只触发一次处理。
// 只关心删除/改名：WAL 检查点会让本进程自己的提交也触碰主文件，
// 写入类事件无法区分内外来源。
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	cleanPath := filepath.Clean(event.Name)
	if !strings.HasSuffix(strings.ToLower(cleanPath), fileExt) {
		return
	}

	w.eventTimersMu.Lock()
	defer w.eventTimersMu.Unlock()
	if timer, exists := w.eventTimers[cleanPath]; exists {
		timer.Stop()
	}
	w.eventTimers[cleanPath] = time.AfterFunc(debounceDuration, func() {
		w.processDebouncedEvent(cleanPath)
		w.eventTimersMu.Lock()
		delete(w.eventTimers, cleanPath)
		w.eventTimersMu.Unlock()
	})
}

// processDebouncedEvent 检查消失的文件是否属于某个已打开的实例。
func (w *Watcher) processDebouncedEvent(path string) {
	name := strings.TrimSuffix(filepath.Base(path), fileExt)
	inst, ok := w.registry.Get(name)
	if !ok || inst.path != path {
		return
	}

	if _, err := os.Stat(path); err == nil {
		// 文件又回来了（例如原子替换），按外部修改告警
		isarobserve.ExternalChanges.Inc()
		slog.Warn("检测到实例的数据库文件被外部替换", "name", name, "path", path)
		return
	}
	isarobserve.ExternalChanges.Inc()
	slog.Error("实例的数据库文件已被外部删除或改名，后续事务将失败",
		"name", name, "path", path)
}

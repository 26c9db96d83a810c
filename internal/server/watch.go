package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"kayblog/internal/logx"
)

// Watch 监听 paths（目录或文件）的变化，静默 debounce 后调用 fn。ctx 取消时返回。
// 文件按其所在目录监听，编辑器的“写临时文件再重命名”也能被捕获。
func Watch(ctx context.Context, paths []string, debounce time.Duration, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	added := map[string]bool{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		dir := p
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			dir = filepath.Dir(p)
		}
		if added[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			logx.Warnf("无法监听 %s：%v", dir, err)
			continue
		}
		added[dir] = true
		logx.Debugf("监听目录：%s", dir)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, fn)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logx.Debugf("文件变化：%s %s", event.Op, event.Name)
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logx.Warnf("文件监听错误：%v", err)
		}
	}
}

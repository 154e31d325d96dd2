package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"callbrief/pkg/logger"
)

// Watcher picks up new recordings in the watch directory and hands them to
// the uploader once they stop growing.
type Watcher struct {
	cfg      Config
	uploader *Uploader

	mu        sync.Mutex
	processed map[string]struct{}
}

func NewWatcher(cfg Config, uploader *Uploader) *Watcher {
	return &Watcher{cfg: cfg, uploader: uploader, processed: map[string]struct{}{}}
}

// Run watches until the context is cancelled. Files already present at
// startup are uploaded first so recordings made while the agent was down are
// not lost.
func (w *Watcher) Run(ctx context.Context) error {
	log := logger.From(ctx)

	w.sweepExisting(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.WatchDir); err != nil {
		return err
	}
	log.Info("agent watching", "dir", w.cfg.WatchDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-fw.Events:
			if evt.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.wanted(evt.Name) {
				continue
			}
			go w.settleAndUpload(ctx, evt.Name)
		case err := <-fw.Errors:
			log.Error("watcher error", "err", err)
		}
	}
}

// sweepExisting uploads files that were already in the directory.
func (w *Watcher) sweepExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		logger.From(ctx).Error("read watch dir", "err", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.WatchDir, e.Name())
		if w.wanted(path) {
			go w.settleAndUpload(ctx, path)
		}
	}
}

// settleAndUpload waits for the file size to hold steady for the settle
// window, then uploads. Each path is uploaded at most once per agent run.
func (w *Watcher) settleAndUpload(ctx context.Context, path string) {
	if !w.claim(path) {
		return
	}
	log := logger.From(ctx)

	var lastSize int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.SettleTime):
		}
		info, err := os.Stat(path)
		if err != nil {
			log.Warn("file vanished before upload", "path", path)
			return
		}
		if info.Size() == lastSize {
			break
		}
		lastSize = info.Size()
	}

	log.Info("uploading recording", "path", path)
	if err := w.uploader.Upload(ctx, path); err != nil {
		log.Error("upload failed", "path", path, "err", err)
		w.release(path)
		return
	}
	log.Info("recording uploaded", "path", path)
}

func (w *Watcher) wanted(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, done := w.processed[path]; done {
		return false
	}
	w.processed[path] = struct{}{}
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processed, path)
}

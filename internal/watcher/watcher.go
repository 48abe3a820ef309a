package watcher

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mrlokans/marginalia/internal/config"
)

// TriggerFunc is called once per debounced burst of clippings changes.
type TriggerFunc func()

// Watcher monitors the clippings directory for changed .txt files and
// fires a sync trigger after a quiet period. E-readers rewrite the whole
// clippings file on every connect, so raw events arrive in bursts.
type Watcher struct {
	cfg     config.Watcher
	dir     string
	trigger TriggerFunc
}

// New creates a watcher over dir. The trigger callback runs on the
// watcher goroutine and should hand off long work elsewhere.
func New(cfg config.Watcher, dir string, trigger TriggerFunc) *Watcher {
	return &Watcher{cfg: cfg, dir: dir, trigger: trigger}
}

// Watch processes file change events until ctx is cancelled. Newly
// created subdirectories are added to the watch list automatically.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.dir); err != nil {
		return err
	}

	log.Printf("Watcher: started on %s (debounce %v)", w.dir, w.debounce())

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	schedule := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(w.debounce())
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(w.debounce())
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Printf("Watcher: stopped")
			return nil

		case <-debounceCh:
			log.Printf("Watcher: clippings changed, triggering sync")
			if w.trigger != nil {
				w.trigger()
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if isDir(ev.Name) {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						log.Printf("Watcher: failed to watch new dir %s: %v", ev.Name, addErr)
					}
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".txt") {
				continue
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher: error: %v", watchErr)
		}
	}
}

func (w *Watcher) debounce() time.Duration {
	if w.cfg.Debounce <= 0 {
		return 5 * time.Second
	}
	return w.cfg.Debounce
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

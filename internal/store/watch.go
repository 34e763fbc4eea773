package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "calmate/internal/log"
)

// watchDebounce coalesces the burst of events produced by temp-file +
// rename writes.
const watchDebounce = 200 * time.Millisecond

// Watch calls onChange whenever the schedule or profile file is created,
// written or replaced, until ctx is cancelled. The parent directories are
// watched rather than the files so that atomic renames are seen.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets := map[string]bool{
		filepath.Clean(s.schedulePath): true,
		filepath.Clean(s.profilePath):  true,
	}
	dirs := map[string]bool{}
	for p := range targets {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			appLog.Debug("store files changed on disk")
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("store watch error", err)
		}
	}
}

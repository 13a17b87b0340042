package workspace

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of write events a single transcript
// append produces into one notification.
const watchDebounce = 200 * time.Millisecond

// Watcher notifies a callback when the conversation log changes on disk.
// It lets the monitor loop react to team activity between poll ticks;
// polling remains the source of truth, so a platform where fsnotify is
// unavailable just falls back to the poll cadence.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func()
	stopCh   chan struct{}
}

// Watch starts watching the workspace's artifacts directory and invokes
// onChange (debounced) whenever the conversation log is written. The
// directory is watched rather than the file: watches on the file itself
// do not survive the rename an archive performs.
func (w *Workspace) Watch(onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("workspace: create watcher: %w", err)
	}
	if err := fsw.Add(w.ArtifactsDir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("workspace: watch %s: %w", w.ArtifactsDir(), err)
	}

	watcher := &Watcher{
		fsw:      fsw,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
	go watcher.loop()
	return watcher, nil
}

// Stop stops the watcher. Safe to call once.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsw.Close()
}

func (w *Watcher) loop() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != ConversationFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			_ = err
		}
	}
}

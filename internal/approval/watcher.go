package approval

import (
	"log/slog"
	"path/filepath"

	"github.com/harunnryd/sekisho/internal/concurrency"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the global rule files when another process rewrites them
// and republishes the external signal as an in-process rule change.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *RuleStore
	quit    chan struct{}
}

func NewWatcher(store *RuleStore) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(store.Dir()); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		store:   store,
		quit:    make(chan struct{}),
	}
	concurrency.SafeGo(w.loop, nil)
	return w, nil
}

func (w *Watcher) Close() {
	close(w.quit)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			kind, relevant := ruleKindForFile(filepath.Base(event.Name))
			if !relevant {
				continue
			}
			slog.Info("Approval rules changed on disk, reloading", "file", event.Name)
			w.store.Reload()
			w.store.publish(RuleChange{Kind: kind, Scope: GlobalScope()})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Rule watcher error", "error", err)
		case <-w.quit:
			return
		}
	}
}

func ruleKindForFile(name string) (RuleKind, bool) {
	switch name {
	case terminalCommandsFile:
		return KindTerminalCommand, true
	case sensitiveFilesFile:
		return KindSensitiveFile, true
	case mcpServersFile:
		return KindMCP, true
	}
	return "", false
}

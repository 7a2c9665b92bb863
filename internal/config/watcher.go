package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
)

// debounce window for editors that write a file in several events.
const reloadDebounce = 300 * time.Millisecond

// Watch reloads the config file on change and calls onReload with each
// successfully validated result. It returns a stop function. Invalid interim
// states are logged and skipped so a half-written file never takes the
// gateway down.
func Watch(path string, onReload func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		var timer *time.Timer
		target := filepath.Clean(path)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					cfg, err := Load(path)
					if err != nil {
						log.WithError(err).Warnf("config reload skipped")
						return
					}
					log.Infof("config reloaded from %s", path)
					onReload(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warnf("config watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}

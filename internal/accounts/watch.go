package accounts

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchActive watches the active directory so a completed Use rewrite is
// observable without polling. Events are sent on the returned channel;
// the caller's executor adapter invalidates its connection-health cache
// on any event. Closing stop tears the watch down.
func (s *Store) WatchActive(log *slog.Logger, stop <-chan struct{}) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(s.ActiveDir); err != nil {
		_ = w.Close()
		return nil, err
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		for {
			select {
			case <-stop:
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("accounts: watch error", "err", err)
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		}
	}()

	return changed, nil
}

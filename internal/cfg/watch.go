package cfg

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the profile at the given path whenever it is written and
// sends each successfully parsed version on the returned channel. Parse
// failures are reported on the error channel and the previous profile stays
// in effect. Both channels are closed when ctx is cancelled.
func Watch(ctx context.Context, path string) (<-chan Profile, <-chan error, error) {
	if path == "" {
		return nil, nil, errors.New("profile has no path")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	// Watch the directory rather than the file, since editors commonly
	// replace the file on save.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, nil, err
	}
	ch := make(chan Profile, 4)
	errch := make(chan error, 4)
	go watch(ctx, watcher, path, ch, errch)
	return ch, errch, nil
}

func watch(ctx context.Context, watcher *fsnotify.Watcher, path string, ch chan<- Profile, errch chan<- error) {
	defer close(ch)
	defer close(errch)
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			profile, err := ReadProfile(path)
			if err != nil {
				send(ctx, errch, err)
				continue
			}
			select {
			case ch <- profile:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			send(ctx, errch, err)
		}
	}
}

func send(ctx context.Context, errch chan<- error, err error) {
	select {
	case errch <- err:
	case <-ctx.Done():
	}
}

package gateway

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Signal file names watched in the signals directory.
const (
	SignalReset   = "reset"
	SignalOffline = "offline"
)

// SignalWatcher flips gateway availability when signal files appear:
// "reset" marks every endpoint available, "offline" marks every endpoint
// unavailable. Handled signal files are removed.
type SignalWatcher struct {
	dir     string
	gateway *Gateway
	watcher *fsnotify.Watcher

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// SignalsDir returns the signals directory under a workspace directory.
func SignalsDir(workDir string) string {
	return filepath.Join(workDir, ".waypoint", "signals")
}

// NewSignalWatcher creates the signals directory, applies any signal files
// already present and starts watching for new ones.
func NewSignalWatcher(dir string, g *Gateway) (*SignalWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	sw := &SignalWatcher{
		dir:     dir,
		gateway: g,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	for _, name := range []string{SignalOffline, SignalReset} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			sw.apply(name)
		}
	}

	sw.wg.Add(1)
	go sw.watch()
	return sw, nil
}

// Send writes a signal file into dir.
func Send(dir, signal string) error {
	if signal != SignalReset && signal != SignalOffline {
		return fmt.Errorf("unknown signal %q", signal)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, signal), nil, 0644)
}

func (sw *SignalWatcher) watch() {
	defer sw.wg.Done()
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			sw.apply(filepath.Base(event.Name))
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[gateway] signal watcher: %v", err)
		}
	}
}

func (sw *SignalWatcher) apply(name string) {
	switch name {
	case SignalReset:
		log.Printf("[gateway] reset signal received")
		sw.gateway.SetAvailable(true)
	case SignalOffline:
		log.Printf("[gateway] offline signal received")
		sw.gateway.SetAvailable(false)
	default:
		return
	}
	os.Remove(filepath.Join(sw.dir, name))
}

// Close stops watching. Safe to call more than once.
func (sw *SignalWatcher) Close() error {
	var err error
	sw.closeOnce.Do(func() {
		close(sw.done)
		err = sw.watcher.Close()
		sw.wg.Wait()
	})
	return err
}

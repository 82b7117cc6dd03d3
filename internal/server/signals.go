package server

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalWatcher watches a signals directory for operator control files.
// Dropping a "stop" file asks serve mode to shut down; "drain" stops
// accepting new breakdown requests while letting in-flight ones finish.
type SignalWatcher struct {
	signalsDir string

	mu          sync.RWMutex
	stopSignal  bool
	drainSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates a watcher over dataDir/signals, creating the
// directory if needed. A failed fsnotify setup degrades to stat polling.
func NewSignalWatcher(dataDir string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(dataDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	sw.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		sw.watcher = nil
		return sw, nil
	}

	go sw.watchSignals()

	return sw, nil
}

// watchSignals monitors the signals directory for stop/drain files.
func (sw *SignalWatcher) watchSignals() {
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
			sw.mu.Lock()
			switch filepath.Base(event.Name) {
			case "stop":
				sw.stopSignal = true
			case "drain":
				sw.drainSignal = true
			}
			sw.mu.Unlock()
		case <-sw.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// ShouldStop returns true if a stop signal has been received.
func (sw *SignalWatcher) ShouldStop() bool {
	// Also check file directly in case watcher missed it
	if _, err := os.Stat(filepath.Join(sw.signalsDir, "stop")); err == nil {
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopSignal
}

// ShouldDrain returns true if a drain signal has been received.
func (sw *SignalWatcher) ShouldDrain() bool {
	if _, err := os.Stat(filepath.Join(sw.signalsDir, "drain")); err == nil {
		sw.mu.Lock()
		sw.drainSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.drainSignal
}

// SendStop creates a stop signal file.
func (sw *SignalWatcher) SendStop() error {
	path := filepath.Join(sw.signalsDir, "stop")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendDrain creates a drain signal file.
func (sw *SignalWatcher) SendDrain() error {
	path := filepath.Join(sw.signalsDir, "drain")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (sw *SignalWatcher) ClearSignals() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.stopSignal = false
	sw.drainSignal = false

	os.Remove(filepath.Join(sw.signalsDir, "stop"))
	os.Remove(filepath.Join(sw.signalsDir, "drain"))
}

// Close shuts down the watcher.
func (sw *SignalWatcher) Close() {
	close(sw.done)
	if sw.watcher != nil {
		sw.watcher.Close()
	}
}

package walfile

import (
	"context"
	"sync"
	"time"
)

// autosyncDaemon calls Sync periodically and whenever lingering commits pile
// up more than maxBytes of unsynced data.
type autosyncDaemon struct {
	f        *File
	interval time.Duration
	maxBytes int64

	kickCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Autosync starts a background goroutine that syncs the file every interval,
// or sooner once Linger commits have left maxBytes unsynced. maxBytes <= 0
// disables the size trigger.
//
// Only one daemon runs per File; a second call fails with ErrAlreadyRunning.
func (f *File) Autosync(interval time.Duration, maxBytes int64) error {
	if interval <= 0 {
		return ErrInvalidArgument
	}

	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.store == nil {
		return ErrReadOnly
	}

	d := &autosyncDaemon{
		f:        f,
		interval: interval,
		maxBytes: maxBytes,
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	if !f.daemon.CompareAndSwap(nil, d) {
		return ErrAlreadyRunning
	}

	d.wg.Add(1)
	go d.run()

	f.logger.Debug("autosync started", "interval", interval, "max_bytes", maxBytes)
	return nil
}

// StopAutosync stops the daemon and waits for it to exit. It is a no-op when
// no daemon runs.
func (f *File) StopAutosync() {
	d := f.daemon.Swap(nil)
	if d == nil {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
	f.logger.Debug("autosync stopped")
}

// AutosyncRunning reports whether a daemon is active.
func (f *File) AutosyncRunning() bool {
	return f.daemon.Load() != nil
}

// kick wakes the daemon without blocking; pending kicks coalesce.
func (d *autosyncDaemon) kick() {
	select {
	case d.kickCh <- struct{}{}:
	default:
	}
}

func (d *autosyncDaemon) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
		case <-d.kickCh:
		}

		// The file is closed only after the daemon has stopped.
		if err := d.f.sync(context.Background()); err != nil {
			d.f.logger.Error("autosync failed", "error", err)
		}
	}
}

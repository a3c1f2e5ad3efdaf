/*
scheduler.go - Automatic sync scheduler

PURPOSE:
  Periodically drains the sync queue and watches for connectivity
  regained, so queued work replays without anyone pressing a button.

DESIGN:
  - Runs a background goroutine with a configurable drain interval
  - A short connectivity poll detects the offline-to-online flip and
    triggers an immediate drain instead of waiting out the interval
  - Drains that find another pass in flight simply yield; the engine's
    single-flight guard makes overlapping triggers harmless

CONFIGURATION:
  - Interval: How often to drain (default: 30s)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSyncScheduler(processor, conn)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SyncNow endpoint (manual drain)
  - syncer/processor.go: the drain itself
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// SyncScheduler drains the queue on a timer and on connectivity regained.
type SyncScheduler struct {
	Processor *syncer.Processor
	Conn      syncer.Connectivity
	Interval  time.Duration
	Enabled   bool

	logger     *slog.Logger
	ticker     *time.Ticker
	connTicker *time.Ticker
	stop       chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool

	wasOnline bool
}

// NewSyncScheduler creates a scheduler with the default interval.
func NewSyncScheduler(processor *syncer.Processor, conn syncer.Connectivity) *SyncScheduler {
	return &SyncScheduler{
		Processor: processor,
		Conn:      conn,
		Interval:  30 * time.Second,
		Enabled:   true,
		logger:    slog.Default().With("component", "scheduler"),
		stop:      make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ss *SyncScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.logger.Info("disabled, not starting")
		return
	}
	if ss.started {
		return
	}
	ss.started = true

	ss.ticker = time.NewTicker(ss.Interval)

	// The connectivity poll is cheap (one HEAD at most) and keeps the
	// offline-to-online reaction under a few seconds.
	connInterval := ss.Interval / 6
	if connInterval < time.Second {
		connInterval = time.Second
	}
	ss.connTicker = time.NewTicker(connInterval)

	ss.wg.Add(1)
	go ss.run()

	ss.logger.Info("started", "interval", ss.Interval)
}

// Stop stops the scheduler and waits for the loop to exit.
func (ss *SyncScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.started {
		return
	}
	ss.started = false

	ss.ticker.Stop()
	ss.connTicker.Stop()
	close(ss.stop)
	ss.wg.Wait()
	ss.logger.Info("stopped")
}

func (ss *SyncScheduler) run() {
	defer ss.wg.Done()

	ss.wasOnline = ss.Conn.Online(context.Background())

	// Drain once on start to pick up the backlog from the last session.
	ss.drain("startup")

	for {
		select {
		case <-ss.ticker.C:
			ss.drain("interval")
		case <-ss.connTicker.C:
			ss.checkConnectivity()
		case <-ss.stop:
			return
		}
	}
}

// checkConnectivity triggers a drain on the offline-to-online flip.
func (ss *SyncScheduler) checkConnectivity() {
	online := ss.Conn.Online(context.Background())
	was := ss.wasOnline
	ss.wasOnline = online

	if online && !was {
		ss.logger.Info("connectivity regained")
		ss.drain("connectivity regained")
	}
}

func (ss *SyncScheduler) drain(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), ss.Interval)
	defer cancel()

	res, err := ss.Processor.ProcessAll(ctx)
	if err != nil {
		ss.logger.Warn("drain finished with errors", "reason", reason, "error", err)
		return
	}
	if res.AlreadyRunning || res.Processed == 0 {
		return
	}
	ss.logger.Info("drain complete",
		"reason", reason,
		"processed", res.Processed,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"remaining", res.Remaining)
}

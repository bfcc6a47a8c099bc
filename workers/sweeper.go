package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"apt_scrooper/models"
)

// SweepFunc deactivates expired and stale specials and reports the counts.
type SweepFunc func(ctx context.Context) (expired, stale int, err error)

// SweepWorker runs the specials sweep on an interval and on demand.
type SweepWorker struct {
	sweep     SweepFunc
	log       *logrus.Logger
	triggerCh chan struct{}
	logFunc   LogFunc

	mu        sync.Mutex
	lastSweep time.Time
}

func NewSweepWorker(sweep SweepFunc, log *logrus.Logger) *SweepWorker {
	return &SweepWorker{
		sweep:     sweep,
		log:       log,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *SweepWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to sweep immediately. Triggers that arrive while
// one is already pending are dropped.
func (w *SweepWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. A zero interval means trigger-only.
func (w *SweepWorker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Sweep worker stopping")
			return
		case <-tick:
			w.RunOnce(ctx)
		case <-w.triggerCh:
			w.log.Info("Sweep worker triggered manually")
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (w *SweepWorker) RunOnce(ctx context.Context) (expired, stale int, err error) {
	expired, stale, err = w.sweep(ctx)
	if err != nil {
		w.logFunc(models.LogLevelError, "sweep", fmt.Sprintf("Sweep failed: %v", err))
	}

	w.mu.Lock()
	w.lastSweep = time.Now()
	w.mu.Unlock()

	if expired > 0 || stale > 0 {
		w.logFunc(models.LogLevelInfo, "sweep", fmt.Sprintf("Deactivated %d expired, %d stale specials", expired, stale))
	}
	return expired, stale, err
}

// LastSweep reports when the worker last finished a sweep.
func (w *SweepWorker) LastSweep() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSweep
}

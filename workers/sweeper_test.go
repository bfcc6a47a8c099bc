package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apt_scrooper/logging"
	"apt_scrooper/models"
)

type logLine struct {
	level   models.LogLevel
	message string
}

func TestSweepWorker_RunOnce(t *testing.T) {
	var lines []logLine
	w := NewSweepWorker(func(context.Context) (int, int, error) { return 2, 1, nil }, logging.Discard())
	w.SetLogger(func(level models.LogLevel, _, message string) {
		lines = append(lines, logLine{level, message})
	})

	expired, stale, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Equal(t, 1, stale)
	assert.False(t, w.LastSweep().IsZero())
	assert.Equal(t, []logLine{{models.LogLevelInfo, "Deactivated 2 expired, 1 stale specials"}}, lines)
}

func TestSweepWorker_RunOnceError(t *testing.T) {
	var lines []logLine
	w := NewSweepWorker(func(context.Context) (int, int, error) { return 0, 0, errors.New("db down") }, logging.Discard())
	w.SetLogger(func(level models.LogLevel, _, message string) {
		lines = append(lines, logLine{level, message})
	})

	_, _, err := w.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
	assert.Equal(t, []logLine{{models.LogLevelError, "Sweep failed: db down"}}, lines)
}

func TestSweepWorker_Trigger(t *testing.T) {
	var calls atomic.Int32
	w := NewSweepWorker(func(context.Context) (int, int, error) {
		calls.Add(1)
		return 0, 0, nil
	}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 0)
		close(done)
	}()

	w.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

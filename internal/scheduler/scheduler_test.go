package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storysync/internal/domain"
)

type stubRefresher struct {
	calls atomic.Int64
	err   error
}

func (r *stubRefresher) Refresh(context.Context) (*domain.SyncStats, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.SyncStats{Fetched: 1, Source: domain.SourceAPI}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	refresher := &stubRefresher{}
	sched := NewScheduler(refresher, 30*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := sched.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// One immediate run plus at least two ticks within the window.
	assert.GreaterOrEqual(t, refresher.calls.Load(), int64(3))
}

func TestSchedulerKeepsGoingAfterFailures(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("offline")}
	sched := NewScheduler(refresher, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	_ = sched.Start(ctx)

	assert.GreaterOrEqual(t, refresher.calls.Load(), int64(2))
}

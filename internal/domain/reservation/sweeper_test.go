package reservation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingManager struct {
	sweeps   atomic.Int64
	sweepErr error
}

func (m *countingManager) Reserve(_ context.Context, _, _ string, _ []Line, _ time.Duration) error {
	return nil
}

func (m *countingManager) Commit(_ context.Context, _ string) error { return nil }

func (m *countingManager) Release(_ context.Context, _ string) error { return nil }

func (m *countingManager) SweepExpired(_ context.Context) (int64, error) {
	m.sweeps.Add(1)
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	return 3, nil
}

func TestSweeper_SweepsUntilCancelled(t *testing.T) {
	m := &countingManager{}
	s := NewSweeper(m, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return m.sweeps.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}

func TestSweeper_KeepsRunningAfterSweepError(t *testing.T) {
	m := &countingManager{sweepErr: errors.New("db down")}
	s := NewSweeper(m, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool {
		return m.sweeps.Load() >= 3
	}, time.Second, time.Millisecond)
}

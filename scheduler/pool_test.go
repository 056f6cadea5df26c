package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboSDK/flow/metric"
)

func TestPool_SubmitAndWait(t *testing.T) {
	pool := NewPool()

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		pool.Submit(context.Background(), "task", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	pool.Wait()

	assert.Equal(t, int32(8), ran.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(8), stats.Submitted)
	assert.Equal(t, int64(8), stats.Completed)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPool_RecordsFailures(t *testing.T) {
	pool := NewPool()

	pool.Submit(context.Background(), "failing", func(context.Context) error {
		return errors.New("boom")
	})
	pool.Wait()

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Completed)
}

func TestPool_WaitBlocksUntilTasksReturn(t *testing.T) {
	pool := NewPool()

	release := make(chan struct{})
	pool.Submit(context.Background(), "blocked", func(context.Context) error {
		<-release
		return nil
	})

	waited := make(chan struct{})
	go func() {
		pool.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after tasks finished")
	}
}

func TestPool_AfterFuncFiresOnce(t *testing.T) {
	pool := NewPool()

	var fired atomic.Int32
	pool.AfterFunc(5*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestPool_StopCancelsPendingTimers(t *testing.T) {
	pool := NewPool()

	var fired atomic.Int32
	pool.AfterFunc(50*time.Millisecond, func() { fired.Add(1) })
	pool.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestPool_DefaultWorkers(t *testing.T) {
	pool := NewPool()
	assert.Greater(t, pool.Workers(), 0)

	sized := NewPool(WithWorkers(3))
	assert.Equal(t, 3, sized.Workers())
}

func TestPool_WithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(WithMetrics(registry, "flow_pool"))

	pool.Submit(context.Background(), "task", func(context.Context) error { return nil })
	pool.Wait()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "flow_pool_tasks_submitted_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

package fileproc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results, errs, err := Map(context.Background(), items, Options{Workers: 8}, func(_ context.Context, n int) (string, error) {
		return fmt.Sprintf("item-%d", n), nil
	})
	require.NoError(t, err)
	require.Len(t, results, 100)
	for i, r := range results {
		if r != fmt.Sprintf("item-%d", i) {
			t.Errorf("results[%d] = %q, want item-%d", i, r, i)
		}
		assert.NoError(t, errs[i])
	}
}

func TestMap_Empty(t *testing.T) {
	results, errs, err := Map(context.Background(), []string{}, Options{}, func(_ context.Context, s string) (string, error) {
		return s, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, errs)
}

func TestMap_Errors(t *testing.T) {
	boom := errors.New("boom")
	results, errs, err := Map(context.Background(), []int{1, 2, 3, 4}, Options{}, func(_ context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, boom
		}
		return n * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 0, 30, 0}, results)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.ErrorIs(t, errs[3], boom)
}

func TestMap_Timeout(t *testing.T) {
	_, errs, err := Map(context.Background(), []int{1}, Options{Timeout: 10 * time.Millisecond}, func(ctx context.Context, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err, "a per-item timeout does not end the run")
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestMap_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	_, errs, err := Map(ctx, []int{1, 2, 3}, Options{Workers: 1}, func(_ context.Context, n int) (int, error) {
		ran.Add(1)
		return n, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ran.Load())
	for _, e := range errs {
		assert.ErrorIs(t, e, context.Canceled)
	}
}

func TestMap_WorkerLimit(t *testing.T) {
	var active, peak atomic.Int32
	items := make([]int, 32)
	_, _, err := Map(context.Background(), items, Options{Workers: 3}, func(_ context.Context, _ int) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return 0, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), DefaultWorkerMultiplier)
}

package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truth-pipeline/core/models"
)

func makeBatch(n int) []models.ObjectRecord {
	batch := make([]models.ObjectRecord, n)
	for i := range batch {
		batch[i].UniqueID = int64(i)
	}
	return batch
}

func TestSplitIsContiguousAndComplete(t *testing.T) {
	batch := makeBatch(10000)
	batches := Split(batch, 2500)
	require.Len(t, batches, 4)

	next := int64(0)
	for _, b := range batches {
		assert.Equal(t, int(next), b.Tag, "tag is the starting offset")
		for _, rec := range b.Records {
			require.Equal(t, next, rec.UniqueID)
			next++
		}
	}
	assert.Equal(t, int64(10000), next)
}

func TestSplitUnevenTail(t *testing.T) {
	batches := Split(makeBatch(10001), 2500)
	require.Len(t, batches, 5)
	assert.Len(t, batches[4].Records, 1)
	assert.Equal(t, 10000, batches[4].Tag)
}

func TestSplitEmptyAndSmall(t *testing.T) {
	assert.Empty(t, Split(nil, 100))
	batches := Split(makeBatch(3), 100)
	require.Len(t, batches, 1)
	assert.Equal(t, 0, batches[0].Tag)
	assert.Len(t, batches[0].Records, 3)
}

func TestRunWaveProcessesEverySubBatch(t *testing.T) {
	d := New(4)
	batches := Split(makeBatch(10000), 2500)

	var mu sync.Mutex
	seen := make(map[int]int)
	err := d.RunWave(context.Background(), batches, func(ctx context.Context, b SubBatch) error {
		mu.Lock()
		seen[b.Tag] = len(b.Records)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 2500, 2500: 2500, 5000: 2500, 7500: 2500}, seen)
}

func TestRunWaveRespectsWorkerCeiling(t *testing.T) {
	d := New(3)
	batches := Split(makeBatch(1000), 50)

	var running, peak int64
	err := d.RunWave(context.Background(), batches, func(ctx context.Context, b SubBatch) error {
		n := atomic.AddInt64(&running, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		atomic.AddInt64(&running, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestRunWaveFailureIsFatal(t *testing.T) {
	d := New(2)
	batches := Split(makeBatch(100), 10)
	boom := errors.New("sed template missing")

	err := d.RunWave(context.Background(), batches, func(ctx context.Context, b SubBatch) error {
		if b.Tag == 30 {
			return boom
		}
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sub-batch at offset 30")
}

func TestRunWaveHonorsCancellation(t *testing.T) {
	d := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := int64(0)
	err := d.RunWave(ctx, Split(makeBatch(100), 10), func(ctx context.Context, b SubBatch) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestNewClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, New(0).Workers())
	assert.Equal(t, 1, New(-5).Workers())
	assert.Equal(t, 10, New(10).Workers())
}

package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc-rank-search/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingCache struct {
	mu       sync.Mutex
	cleanups int
	persists int
	err      error
}

func (c *countingCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
	return 2
}

func (c *countingCache) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persists++
	return c.err
}

func (c *countingCache) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanups, c.persists
}

func TestCacheWorkerTicksAndPersistsOnStop(t *testing.T) {
	cache := &countingCache{}
	w := NewCacheWorker(cache, 10*time.Millisecond, discardLogger())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	require.Eventually(t, func() bool {
		cleanups, _ := cache.counts()
		return cleanups >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())

	cleanups, persists := cache.counts()
	assert.Equal(t, cleanups+1, persists)

	require.NoError(t, w.Stop())
}

func TestCacheWorkerStopReportsSaveError(t *testing.T) {
	cache := &countingCache{err: errors.New("disk full")}
	w := NewCacheWorker(cache, time.Hour, discardLogger())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Stop())
}

func TestCacheWorkerDefaultInterval(t *testing.T) {
	w := NewCacheWorker(&countingCache{}, 0, discardLogger())
	assert.Equal(t, defaultSaveInterval, w.interval)
}

type diskSnapshots struct {
	snaps map[string]*domain.Snapshot
	ids   []string
}

func (d *diskSnapshots) ListAvailable() ([]string, error) { return d.ids, nil }

func (d *diskSnapshots) Load(gameID string) (*domain.Snapshot, error) {
	if s, ok := d.snaps[gameID]; ok {
		return s, nil
	}
	return nil, domain.ErrSnapshotNotFound
}

type fakeIndexer struct {
	indexed []string
	failOn  string
}

func (f *fakeIndexer) IndexSnapshot(_ context.Context, snap *domain.Snapshot) error {
	if snap.GameID == f.failOn {
		return errors.New("redis down")
	}
	f.indexed = append(f.indexed, snap.GameID)
	return nil
}

func TestSyncAllFromDisk(t *testing.T) {
	disk := &diskSnapshots{
		ids: []string{"kof98", "broken", "sf2ce", "sfa3"},
		snaps: map[string]*domain.Snapshot{
			"kof98": {GameID: "kof98"},
			"sf2ce": {GameID: "sf2ce"},
			"sfa3":  {GameID: "sfa3"},
		},
	}
	idx := &fakeIndexer{failOn: "sf2ce"}

	synced, err := NewIndexSync(disk, idx, discardLogger()).SyncAllFromDisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Equal(t, []string{"kof98", "sfa3"}, idx.indexed)
}

func TestSyncAllFromDiskHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	disk := &diskSnapshots{ids: []string{"kof98"}, snaps: map[string]*domain.Snapshot{"kof98": {GameID: "kof98"}}}
	_, err := NewIndexSync(disk, &fakeIndexer{}, discardLogger()).SyncAllFromDisk(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

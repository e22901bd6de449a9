package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

type fakeNotifier struct {
	cached      []tachyon.FileID
	checkpoints []tachyon.FileID
	oom         []tachyon.FileID
}

func (f *fakeNotifier) NotifyCacheFile(workerUsedBytes int64, fileID tachyon.FileID, sizeBytes int64) error {
	f.cached = append(f.cached, fileID)
	return nil
}

func (f *fakeNotifier) NotifyCheckpoint(fileID tachyon.FileID, sizeBytes int64, checkpointPath string) error {
	f.checkpoints = append(f.checkpoints, fileID)
	return nil
}

func (f *fakeNotifier) NotifyOutOfMemoryForPin(fileID tachyon.FileID) error {
	f.oom = append(f.oom, fileID)
	return nil
}

func newTestStorage(t *testing.T, capacity int64) (*Storage, *fakeNotifier) {
	t.Helper()
	dir := t.TempDir()
	n := &fakeNotifier{}
	clock := int64(0)
	s := NewStorage(capacity, dir, n, func() int64 { return clock })
	return s, n
}

func TestRequestSpaceWithinCapacitySucceeds(t *testing.T) {
	s, _ := newTestStorage(t, 1000)
	assert.True(t, s.RequestSpace(1, 1, 500))
	assert.Equal(t, int64(500), s.UsedBytes())
}

func TestRequestSpaceOverCapacityFailsWithNothingToEvict(t *testing.T) {
	s, _ := newTestStorage(t, 1000)
	assert.True(t, s.RequestSpace(1, 1, 1000))
	assert.False(t, s.RequestSpace(2, 2, 1))
}

func TestRequestSpaceEvictsUnpinnedUnlockedFileToMakeRoom(t *testing.T) {
	s, _ := newTestStorage(t, 100)
	require.True(t, s.RequestSpace(1, 10, 100))
	require.NoError(t, s.CacheFile(1, 10, 100, false, nil))

	assert.True(t, s.RequestSpace(2, 20, 100))
	_, stillResident := s.resident[10]
	assert.False(t, stillResident)
}

func TestPinnedFileIsNotEvicted(t *testing.T) {
	s, _ := newTestStorage(t, 100)
	require.True(t, s.RequestSpace(1, 10, 100))
	require.NoError(t, s.CacheFile(1, 10, 100, true, nil))

	assert.False(t, s.RequestSpace(2, 20, 50))
}

func TestRequestSpaceForPinnedFileNotifiesMasterOnOOM(t *testing.T) {
	s, n := newTestStorage(t, 100)
	require.True(t, s.RequestSpace(1, 1, 100))
	require.NoError(t, s.CacheFile(1, 1, 100, true, nil))

	s.SetPinned(10, true)
	assert.False(t, s.RequestSpace(2, 10, 50))
	assert.Equal(t, []tachyon.FileID{10}, n.oom)
}

func TestLockedFileIsNotEvicted(t *testing.T) {
	s, _ := newTestStorage(t, 100)
	require.True(t, s.RequestSpace(1, 10, 100))
	require.NoError(t, s.CacheFile(1, 10, 100, false, nil))

	s.LockFile(10)
	assert.False(t, s.RequestSpace(2, 20, 50))

	s.UnlockFile(10)
	assert.True(t, s.RequestSpace(2, 20, 50))
}

func TestHandleFreeDefersUntilUnlock(t *testing.T) {
	s, _ := newTestStorage(t, 100)
	require.True(t, s.RequestSpace(1, 10, 100))
	require.NoError(t, s.CacheFile(1, 10, 100, false, nil))
	s.LockFile(10)

	s.HandleFree([]tachyon.FileID{10})
	_, stillResident := s.resident[10]
	assert.True(t, stillResident, "locked file must survive Free until unlocked")

	s.UnlockFile(10)
	_, stillResident = s.resident[10]
	assert.False(t, stillResident, "unlock must drain the deferred Free")
}

func TestHandleDeleteIgnoresLocks(t *testing.T) {
	s, _ := newTestStorage(t, 100)
	require.True(t, s.RequestSpace(1, 10, 100))
	require.NoError(t, s.CacheFile(1, 10, 100, false, nil))
	s.LockFile(10)

	s.HandleDelete([]tachyon.FileID{10})
	_, stillResident := s.resident[10]
	assert.False(t, stillResident)
}

func TestReturnSpaceClampsToReservation(t *testing.T) {
	s, _ := newTestStorage(t, 1000)
	require.True(t, s.RequestSpace(1, 1, 100))

	s.ReturnSpace(1, 9999)
	assert.Equal(t, int64(0), s.UsedBytes())
}

func TestCacheFileNotifiesMaster(t *testing.T) {
	s, n := newTestStorage(t, 1000)
	require.True(t, s.RequestSpace(1, 10, 100))
	require.NoError(t, s.CacheFile(1, 10, 100, false, nil))
	assert.Equal(t, []tachyon.FileID{10}, n.cached)
}

package client

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/tachyon"
	"github.com/wikieden/tachyon/pkg/worker"
)

// startTestWorker boots a real worker.Worker against a running master,
// the way the teacher's server_test.go boots chunkservers against a
// live master for its end-to-end tests.
func startTestWorker(t *testing.T, masterAddr tachyon.NetAddress) (*worker.Worker, tachyon.NetAddress) {
	t.Helper()
	port := freePort(t)
	addr := tachyon.NetAddress{Host: "127.0.0.1", Port: port}
	root := t.TempDir()

	w, err := worker.New(addr, masterAddr, root, 1<<20)
	require.NoError(t, err)
	require.NoError(t, w.Serve())
	t.Cleanup(w.Stop)
	return w, addr
}

// TestCreateAndCacheHappyPath exercises spec.md §8's "create & cache
// happy path" property end to end: create the file at the master,
// reserve space at the worker, land bytes in the worker's data folder,
// tell the worker to adopt them, and confirm the master now reports the
// file in memory with the committed size and the right location.
func TestCreateAndCacheHappyPath(t *testing.T) {
	_, masterAddr := startTestMaster(t)
	w, workerAddr := startTestWorker(t, masterAddr)

	mc := NewMasterClient(masterAddr)
	wc := NewWorkerClient(workerAddr)

	fileID, err := mc.CreateFile("/a/b.dat")
	require.NoError(t, err)

	userID, err := mc.GetUserID()
	require.NoError(t, err)

	ok, err := wc.RequestSpace(userID, fileID, 4096)
	require.NoError(t, err)
	require.True(t, ok)

	dataFolder, err := wc.GetDataFolder()
	require.NoError(t, err)
	payload := make([]byte, 4096)
	require.NoError(t, os.WriteFile(filepath.Join(dataFolder, strconv.Itoa(int(fileID))), payload, 0o644))

	require.NoError(t, wc.CacheFile(userID, fileID))

	// The pause is not needed for correctness: CacheFile ->
	// Storage.CacheFile -> MasterNotifier is synchronous, so the master
	// has the new placement before CacheFile returns.
	time.Sleep(10 * time.Millisecond)

	info, err := mc.GetClientFileInfoByID(fileID)
	require.NoError(t, err)
	assert.True(t, info.InMemory)
	assert.Equal(t, int64(4096), info.SizeBytes)

	locs, err := mc.GetFileLocationsByID(fileID)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, workerAddr, locs[0])

	_ = w // keep the worker reference alive for the lifetime of the test
}

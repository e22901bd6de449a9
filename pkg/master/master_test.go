package master

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestRegisterWorkerEncodesStartTime(t *testing.T) {
	start := time.UnixMilli(1717000000000)
	svc := NewMasterService("hdfs://ufs", fixedClock(start))

	rv := svc.RegisterWorker(tachyon.NetAddress{Host: "w1", Port: 9998}, 1000, 0, nil)
	id, startMs := tachyon.DecodeRegisterResponse(rv)
	assert.EqualValues(t, 1, id)
	assert.Equal(t, start.UnixMilli(), startMs)
}

func TestHeartbeatOfUnregisteredWorkerForcesRegister(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	cmd := svc.Heartbeat(123, 0, nil)
	assert.Equal(t, tachyon.CommandRegister, cmd.Type)
}

func TestCreateFileThenGetFileID(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	id, err := svc.CreateFile("/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, id, svc.GetFileID("/a/b.txt"))
}

func TestWorkerCacheFileUpdatesPlacementAndInMemory(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	fileID, err := svc.CreateFile("/f.txt")
	require.NoError(t, err)

	rv := svc.RegisterWorker(tachyon.NetAddress{Host: "w1", Port: 1}, 1000, 0, nil)
	workerID, _ := tachyon.DecodeRegisterResponse(rv)

	require.NoError(t, svc.WorkerCacheFile(workerID, 100, fileID, 100))

	info, err := svc.GetClientFileInfoByID(fileID)
	require.NoError(t, err)
	assert.True(t, info.InMemory)
	assert.Equal(t, int64(100), info.SizeBytes)

	locs, err := svc.GetFileLocationsByID(fileID)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "w1", locs[0].Host)
}

func TestDeleteEnqueuesDeleteCommandForHolders(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	fileID, err := svc.CreateFile("/f.txt")
	require.NoError(t, err)

	rv := svc.RegisterWorker(tachyon.NetAddress{Host: "w1", Port: 1}, 1000, 0, nil)
	workerID, _ := tachyon.DecodeRegisterResponse(rv)
	require.NoError(t, svc.WorkerCacheFile(workerID, 100, fileID, 100))

	ok, err := svc.DeleteByID(fileID, false)
	require.NoError(t, err)
	assert.True(t, ok)

	cmd := svc.Heartbeat(workerID, 100, nil)
	assert.Equal(t, tachyon.CommandDelete, cmd.Type)
	assert.Equal(t, []tachyon.FileID{fileID}, cmd.Data)
}

func TestPinFileSurfacesInGetPinIDList(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	fileID, err := svc.CreateFile("/f.txt")
	require.NoError(t, err)

	require.NoError(t, svc.PinFile(fileID))
	assert.Equal(t, []tachyon.FileID{fileID}, svc.GetPinIDList())

	require.NoError(t, svc.UnpinFile(fileID))
	assert.Empty(t, svc.GetPinIDList())
}

func TestGetWorkerWithNoLiveWorkersFails(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	_, err := svc.GetWorker(true, "")
	assert.True(t, tachyon.Is(err, tachyon.NoLocalWorker))
}

func TestSweepTimedOutWorkersRemovesStaleWorkerAndItsPlacements(t *testing.T) {
	now := time.UnixMilli(1000000)
	svc := NewMasterService("ufs", fixedClock(now))

	fileID, err := svc.CreateFile("/f.txt")
	require.NoError(t, err)
	rv := svc.RegisterWorker(tachyon.NetAddress{Host: "w1", Port: 1}, 1000, 0, nil)
	workerID, _ := tachyon.DecodeRegisterResponse(rv)
	require.NoError(t, svc.WorkerCacheFile(workerID, 100, fileID, 100))

	// Advance the clock well past WorkerTimeout without another heartbeat.
	svc.now = fixedClock(now.Add(tachyon.WorkerTimeout * 3))

	dead := svc.SweepTimedOutWorkers(tachyon.WorkerTimeout)
	require.Equal(t, []tachyon.WorkerID{workerID}, dead)

	locs, err := svc.GetFileLocationsByID(fileID)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestCreateRawTableAndUpdateMetadata(t *testing.T) {
	svc := NewMasterService("ufs", fixedClock(time.Now()))
	id, err := svc.CreateRawTable("/rt", 4, []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateRawTableMetadata(id, []byte("v2")))
	info, err := svc.GetClientRawTableInfoByID(id)
	require.NoError(t, err)
	assert.Equal(t, 4, info.Columns)
	assert.Equal(t, []byte("v2"), info.Metadata)
}

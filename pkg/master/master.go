// Package master implements the MasterService: the authoritative
// namespace/placement service described in the core's §4.5, composing
// pathTrie, inodeStore, workerRegistry and placementIndex under one
// mutator lock, the way the teacher's Master composes namespaceManager,
// chunkManager and chunkServerManager — but with an explicit lock
// instead of three independently-locked managers, per spec.md §5's
// "single coarse critical section is acceptable" guidance.
package master

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// Clock lets tests substitute a deterministic time source, the way the
// teacher substitutes nothing (it calls time.Now directly) — we add
// this one seam because §8's round-trip properties are most naturally
// tested by controlling "now".
type Clock func() time.Time

// MasterService is the single-master authority for namespace, file-id
// allocation and worker placement.
type MasterService struct {
	mu sync.Mutex

	inodes    *inodeStore
	workers   *workerRegistry
	placement *placementIndex

	nextUserID     tachyon.UserID
	underfsAddress string
	startTimeMs    int64
	now            Clock
}

// NewMasterService constructs an empty master with the given
// underlying-filesystem address (returned verbatim by
// user_getUnderfsAddress).
func NewMasterService(underfsAddress string, now Clock) *MasterService {
	if now == nil {
		now = time.Now
	}
	startMs := now().UnixMilli()
	return &MasterService{
		inodes:         newInodeStore(),
		workers:        newWorkerRegistry(startMs),
		placement:      newPlacementIndex(),
		nextUserID:     1,
		underfsAddress: underfsAddress,
		startTimeMs:    startMs,
		now:            now,
	}
}

func (m *MasterService) nowMs() int64 { return m.now().UnixMilli() }

// ---- worker-facing operations ----

// RegisterWorker implements worker_register. It returns the encoded
// (masterStartTimeMs, workerID) value of spec.md §4.3 and reconciles
// placementIndex to exactly the declared file list.
func (m *MasterService) RegisterWorker(addr tachyon.NetAddress, totalBytes, usedBytes int64, currentFiles []tachyon.FileID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, previouslyDeclared := m.workers.register(addr, totalBytes, usedBytes, currentFiles, m.nowMs())
	m.placement.reconcile(id, currentFiles, previouslyDeclared)

	log.Infof("worker registered: id=%v addr=%v files=%v", id, addr, len(currentFiles))
	return tachyon.EncodeRegisterResponse(id, m.startTimeMs)
}

// Heartbeat implements worker_heartbeat: update usage, drop the
// reported removed files from placement, and return the next queued
// Command, forcing Register if the worker is unknown to this master
// instance (fresh process or decoded a stale start time).
func (m *MasterService) Heartbeat(workerID tachyon.WorkerID, usedBytes int64, removed []tachyon.FileID) tachyon.Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.workers.knownWorkerID(workerID) {
		return tachyon.Command{Type: tachyon.CommandRegister}
	}

	for _, f := range removed {
		m.placement.remove(f, workerID)
	}
	return m.workers.heartbeat(workerID, usedBytes, removed, m.nowMs())
}

// WorkerCacheFile implements worker_cacheFile: commits the file's size
// if this is the first cache/checkpoint to do so, records the new
// placement entry, and is ordered (by the caller holding mu) strictly
// before any later GetFileLocations* call, per spec.md §5.
func (m *MasterService) WorkerCacheFile(workerID tachyon.WorkerID, workerUsedBytes int64, fileID tachyon.FileID, fileSizeBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.inodes.commitCachedSize(fileID, fileSizeBytes); err != nil {
		return err
	}
	m.workers.markFileAdded(workerID, fileID, workerUsedBytes)
	m.placement.add(fileID, workerID)
	return nil
}

// GetPinIDList implements worker_getPinIdList.
func (m *MasterService) GetPinIDList() []tachyon.FileID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []tachyon.FileID
	for id, n := range m.inodes.files {
		if n.pin {
			out = append(out, id)
		}
	}
	return out
}

// AddCheckpoint implements addCheckpoint: a durable write-through copy
// has landed at checkpointPath for fileID of size fileSizeBytes.
func (m *MasterService) AddCheckpoint(workerID tachyon.WorkerID, fileID tachyon.FileID, fileSizeBytes int64, checkpointPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.inodes.addCheckpoint(fileID, fileSizeBytes, checkpointPath)
}

// ---- client/user-facing operations ----

func (m *MasterService) CreateFile(path tachyon.Path) (tachyon.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.createFile(path, m.nowMs())
}

func (m *MasterService) GetFileID(path tachyon.Path) tachyon.FileID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.getFileID(path)
}

func (m *MasterService) GetUserID() tachyon.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextUserID
	m.nextUserID++
	return id
}

// GetWorker implements user_getWorker. If random is true or host is
// empty, a worker is chosen uniformly at random among live workers; a
// supplied host is matched against worker addresses.
func (m *MasterService) GetWorker(random bool, host string) (tachyon.NetAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addrs := m.workers.liveAddresses()
	if random || host == "" {
		if len(addrs) == 0 {
			return tachyon.NetAddress{}, tachyon.NewError(tachyon.NoLocalWorker, "no live workers")
		}
		return addrs[samplePick(len(addrs))], nil
	}
	for _, a := range addrs {
		if a.Host == host {
			return a, nil
		}
	}
	return tachyon.NetAddress{}, tachyon.NewError(tachyon.NoLocalWorker, "no worker on host "+host)
}

func (m *MasterService) clientFileInfoLocked(n *inode) tachyon.ClientFileInfo {
	return tachyon.ClientFileInfo{
		ID:             n.id,
		Name:           n.name,
		Path:           string(n.path),
		CheckpointPath: n.checkpointPath,
		SizeBytes:      n.sizeBytes,
		CreationTimeMs: n.creationTimeMs,
		Ready:          n.ready,
		Folder:         n.isFolder,
		InMemory:       m.placement.inMemory(n.id),
		NeedPin:        n.pin,
		NeedCache:      n.cache,
	}
}

func (m *MasterService) GetClientFileInfoByID(id tachyon.FileID) (tachyon.ClientFileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.inodes.file(id)
	if !ok {
		return tachyon.ClientFileInfo{}, tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	return m.clientFileInfoLocked(n), nil
}

func (m *MasterService) GetClientFileInfoByPath(path tachyon.Path) (tachyon.ClientFileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.inodes.fileByPath(path)
	if !ok {
		return tachyon.ClientFileInfo{}, tachyon.NewError(tachyon.FileDoesNotExist, string(path))
	}
	return m.clientFileInfoLocked(n), nil
}

func (m *MasterService) getFileLocationsLocked(id tachyon.FileID) []tachyon.NetAddress {
	var out []tachyon.NetAddress
	for _, wid := range m.placement.workersFor(id) {
		if w, ok := m.workers.get(wid); ok {
			out = append(out, w.address)
		}
	}
	return out
}

func (m *MasterService) GetFileLocationsByID(id tachyon.FileID) ([]tachyon.NetAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inodes.file(id); !ok {
		return nil, tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	return m.getFileLocationsLocked(id), nil
}

func (m *MasterService) GetFileLocationsByPath(path tachyon.Path) ([]tachyon.NetAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.inodes.fileByPath(path)
	if !ok {
		return nil, tachyon.NewError(tachyon.FileDoesNotExist, string(path))
	}
	return m.getFileLocationsLocked(n.id), nil
}

func (m *MasterService) ListFiles(path tachyon.Path) ([]tachyon.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.list(path)
}

func (m *MasterService) Ls(path tachyon.Path) ([]tachyon.ClientFileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := m.inodes.list(path)
	if err != nil {
		return nil, err
	}
	out := make([]tachyon.ClientFileInfo, 0, len(ids))
	for _, id := range ids {
		n, ok := m.inodes.file(id)
		if !ok {
			continue
		}
		out = append(out, m.clientFileInfoLocked(n))
	}
	return out, nil
}

// ListStatus is the wire alias for Ls (spec.md §6 liststatus).
func (m *MasterService) ListStatus(path tachyon.Path) ([]tachyon.ClientFileInfo, error) {
	return m.Ls(path)
}

// deleteLocked removes id (recursively if requested) and enqueues a
// Delete command for every former holder, draining via the next
// heartbeat, per spec.md §4.3/§4.4.
func (m *MasterService) deleteLocked(id tachyon.FileID, recursive bool) (bool, error) {
	holders := map[tachyon.WorkerID][]tachyon.FileID{}
	deleted, err := m.inodes.delete(id, recursive)
	if err != nil {
		return false, err
	}
	for _, fid := range deleted {
		for _, wid := range m.placement.workersFor(fid) {
			holders[wid] = append(holders[wid], fid)
		}
		m.placement.removeFile(fid)
	}
	for wid, ids := range holders {
		m.workers.enqueue(wid, tachyon.Command{Type: tachyon.CommandDelete, Data: ids})
	}
	return true, nil
}

func (m *MasterService) DeleteByID(id tachyon.FileID, recursive bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id, recursive)
}

func (m *MasterService) DeleteByPath(path tachyon.Path, recursive bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.inodes.getFileID(path)
	if id == tachyon.NoFileID {
		return false, tachyon.NewError(tachyon.FileDoesNotExist, string(path))
	}
	return m.deleteLocked(id, recursive)
}

func (m *MasterService) RenameFile(src, dst tachyon.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.rename(src, dst)
}

func (m *MasterService) UnpinFile(id tachyon.FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.inodes.file(id)
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	n.pin = false
	return nil
}

func (m *MasterService) PinFile(id tachyon.FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.inodes.file(id)
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	n.pin = true
	return nil
}

func (m *MasterService) Mkdir(path tachyon.Path) (tachyon.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.mkdir(path, m.nowMs())
}

// OutOfMemoryForPinFile implements user_outOfMemoryForPinFile: a worker
// could not admit a pinned file even after evicting everything
// eligible. The core records nothing beyond logging — enforcement
// policy for "what to do about it" is left to the caller (spec.md §9
// open question), but the RPC boundary and error propagation are real.
func (m *MasterService) OutOfMemoryForPinFile(id tachyon.FileID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.Warningf("worker reported out-of-memory-for-pin for file %v", id)
}

func (m *MasterService) CreateRawTable(path tachyon.Path, columns int, metadata []byte) (tachyon.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.createRawTable(path, columns, metadata, m.nowMs())
}

func (m *MasterService) GetRawTableID(path tachyon.Path) tachyon.FileID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.getRawTableID(path)
}

func (m *MasterService) clientRawTableInfoLocked(id tachyon.FileID) (tachyon.ClientRawTableInfo, error) {
	n, ok := m.inodes.file(id)
	if !ok {
		return tachyon.ClientRawTableInfo{}, tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	rt, ok := m.inodes.rawTables[id]
	if !ok {
		return tachyon.ClientRawTableInfo{}, tachyon.NewError(tachyon.TableDoesNotExist, "")
	}
	return tachyon.ClientRawTableInfo{
		ID:       id,
		Name:     n.name,
		Path:     string(n.path),
		Columns:  rt.columns,
		Metadata: rt.metadata,
	}, nil
}

func (m *MasterService) GetClientRawTableInfoByID(id tachyon.FileID) (tachyon.ClientRawTableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientRawTableInfoLocked(id)
}

func (m *MasterService) GetClientRawTableInfoByPath(path tachyon.Path) (tachyon.ClientRawTableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.inodes.getFileID(path)
	if id == tachyon.NoFileID {
		return tachyon.ClientRawTableInfo{}, tachyon.NewError(tachyon.FileDoesNotExist, string(path))
	}
	return m.clientRawTableInfoLocked(id)
}

func (m *MasterService) UpdateRawTableMetadata(tableID tachyon.FileID, metadata []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inodes.updateRawTableMetadata(tableID, metadata)
}

func (m *MasterService) GetNumberOfFiles(path tachyon.Path) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := m.inodes.list(path)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (m *MasterService) GetUnderfsAddress() string {
	return m.underfsAddress
}

func (m *MasterService) GetWorkersInfo() []tachyon.ClientWorkerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := m.nowMs()
	out := make([]tachyon.ClientWorkerInfo, 0, len(m.workers.workers))
	for id, w := range m.workers.workers {
		out = append(out, tachyon.ClientWorkerInfo{
			ID:             id,
			Address:        w.address,
			LastContactSec: (nowMs - w.lastContactMs) / 1000,
			State:          tachyon.WorkerStateAlive,
			CapacityBytes:  w.totalBytes,
			UsedBytes:      w.usedBytes,
			StartTimeMs:    w.startTimeMs,
		})
	}
	return out
}

// SweepTimedOutWorkers drops workers the master has not heard from in
// WorkerTimeout, removing their placement contributions, per spec.md
// §4.3/§8 ("client location queries never return a timed-out worker").
// Grounded on chunkServerManager.DetectDeadServers +
// namespaceManager-style "detect then remove under lock".
func (m *MasterService) SweepTimedOutWorkers(timeout time.Duration) []tachyon.WorkerID {
	m.mu.Lock()
	defer m.mu.Unlock()

	dead := m.workers.detectTimedOut(timeout, m.nowMs())
	for _, id := range dead {
		m.placement.removeWorker(id)
		m.workers.remove(id)
		log.Warningf("worker %v timed out, removed from registry", id)
	}
	return dead
}

// samplePick is a tiny seam over math/rand kept local to avoid pulling
// yet another package for one call site; user_getWorker is the only
// caller. Grounded on util.Sample/ArraySet.RandomPick's "pick one of n"
// shape.
func samplePick(n int) int {
	return randIntn(n)
}

// Package worker implements WorkerStorage: the per-node memory-space
// accountant, eviction engine, pin enforcer and master-client driver
// described in the core's §4.4. Grounded on the teacher's ChunkServer
// (lock discipline, net/rpc registration, heartbeat goroutine) and its
// downloadBuffer (expire-plus-ticker-sweep pattern), generalized from
// "disk-backed chunk replicas" to "whole files cached in a bounded
// in-memory budget".
package worker

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// residentFile is the state of one cached file, per the state machine
// of spec.md §4.4.
type residentFile struct {
	sizeBytes  int64
	lastAccess int64
	lockCount  int
	pinned     bool
}

// MasterNotifier is the subset of MasterService calls the worker makes
// proactively, kept as an interface so storage tests do not need a real
// RPC round trip — an in-process fake satisfies it, the net/rpc client
// in worker.go satisfies it against a live master.
type MasterNotifier interface {
	NotifyCacheFile(workerUsedBytes int64, fileID tachyon.FileID, sizeBytes int64) error
	NotifyCheckpoint(fileID tachyon.FileID, sizeBytes int64, checkpointPath string) error
	NotifyOutOfMemoryForPin(fileID tachyon.FileID) error
}

// Storage is WorkerStorage: capacityBytes/usedBytes accounting, the
// resident-file map, per-user outstanding reservations, and the
// best-effort pendingFree set.
type Storage struct {
	mu sync.Mutex

	capacityBytes int64
	usedBytes     int64

	resident    map[tachyon.FileID]*residentFile
	userSpace   map[tachyon.UserID]int64
	pendingFree map[tachyon.FileID]bool

	// pinned is the master's pin directive per file-id, tracked
	// independently of residency so requestSpace can tell whether the
	// file it is reserving space for is pinned before that file is ever
	// cached.
	pinned map[tachyon.FileID]bool

	dataFolder string
	now        func() int64

	master MasterNotifier

	removedSinceReport []tachyon.FileID
}

// NewStorage constructs a Storage with the given capacity and local
// data folder (files are staged at dataFolder/<fileID>, per §9's
// "getDataFolder()/fileId" contract).
func NewStorage(capacityBytes int64, dataFolder string, master MasterNotifier, now func() int64) *Storage {
	return &Storage{
		capacityBytes: capacityBytes,
		resident:      make(map[tachyon.FileID]*residentFile),
		userSpace:     make(map[tachyon.UserID]int64),
		pendingFree:   make(map[tachyon.FileID]bool),
		pinned:        make(map[tachyon.FileID]bool),
		dataFolder:    dataFolder,
		master:        master,
		now:           now,
	}
}

func (s *Storage) DataFolder() string { return s.dataFolder }

// Notifier exposes the MasterNotifier this Storage was built with, for
// RPC handlers that need to push a checkpoint notification directly
// (worker_addCheckpoint does not otherwise touch WorkerStorage state).
func (s *Storage) Notifier() MasterNotifier { return s.master }

// RequestSpace is the atomic admission test of spec.md §4.4: reserve if
// it fits, otherwise evict and retry once. fileID identifies the file
// this reservation is for; if admission still fails after eviction and
// fileID is pinned by master directive, the worker surfaces
// out-of-memory-for-pin for that file (spec.md §4.4's eviction policy
// paragraph and §8 scenario 4).
func (s *Storage) RequestSpace(userID tachyon.UserID, fileID tachyon.FileID, requestBytes int64) bool {
	s.mu.Lock()
	if s.tryReserveLocked(userID, requestBytes) {
		s.mu.Unlock()
		return true
	}

	shortfall := s.usedBytes + requestBytes - s.capacityBytes
	s.evictLocked(shortfall)

	ok := s.tryReserveLocked(userID, requestBytes)
	pinned := s.pinned[fileID]
	s.mu.Unlock()

	if !ok && pinned && s.master != nil {
		if err := s.master.NotifyOutOfMemoryForPin(fileID); err != nil {
			log.Warningf("notify out-of-memory-for-pin for file %v: %v", fileID, err)
		}
	}
	return ok
}

func (s *Storage) tryReserveLocked(userID tachyon.UserID, requestBytes int64) bool {
	if s.usedBytes+requestBytes > s.capacityBytes {
		return false
	}
	s.usedBytes += requestBytes
	s.userSpace[userID] += requestBytes
	return true
}

// ReturnSpace releases a user's reservation; bytes in excess of what
// the user actually holds are clamped (and logged), per spec.md §4.4.
func (s *Storage) ReturnSpace(userID tachyon.UserID, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	have := s.userSpace[userID]
	actual := bytes
	if actual > have {
		log.Warningf("user %v returned %v bytes but only reserved %v, clamping", userID, bytes, have)
		actual = have
	}
	s.userSpace[userID] = have - actual
	s.usedBytes -= actual
}

// StartEvictionSweep runs a proactive eviction pass on a ticker
// alongside the mandatory reactive path in RequestSpace, trimming
// usedBytes back down to tachyon.EvictionHighWaterFraction of capacity
// whenever it creeps above that line. This is the worker-side analog
// of original_source's MemoryEvictionThread (Worker.java), which runs
// on a fixed interval in addition to reactive eviction on
// requestSpace failure. Returns a stop function.
func (s *Storage) StartEvictionSweep(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				highWater := int64(float64(s.capacityBytes) * tachyon.EvictionHighWaterFraction)
				if s.usedBytes > highWater {
					s.evictLocked(s.usedBytes - highWater)
				}
				s.mu.Unlock()
			}
		}
	}()
	return func() { close(done) }
}

// eligibleForEviction reports whether a resident file may be evicted:
// not pinned, and no reader holds it.
func eligibleForEviction(f *residentFile) bool {
	return !f.pinned && f.lockCount == 0
}

// evictLocked selects LRU-ordered eligible victims until at least
// needed bytes are free (or no eligible victim remains), deletes their
// backing files concurrently outside... (deletion itself is I/O, run
// via errgroup) and updates accounting. Caller holds s.mu.
func (s *Storage) evictLocked(needed int64) {
	if needed <= 0 {
		return
	}

	type cand struct {
		id   tachyon.FileID
		f    *residentFile
		size int64
	}
	var candidates []cand
	for id, f := range s.resident {
		if eligibleForEviction(f) {
			candidates = append(candidates, cand{id, f, f.sizeBytes})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].f.lastAccess < candidates[j].f.lastAccess })

	var victims []tachyon.FileID
	var freed int64
	for _, c := range candidates {
		if freed >= needed {
			break
		}
		victims = append(victims, c.id)
		freed += c.size
		delete(s.resident, c.id)
		s.usedBytes -= c.size
		delete(s.pendingFree, c.id)
		s.removedSinceReport = append(s.removedSinceReport, c.id)
	}

	if len(victims) == 0 {
		return
	}
	s.deleteBackingFilesAsync(victims)
}

// deleteBackingFilesAsync removes each victim's local cache file. Callers
// have already committed the accounting; evictLocked launches it with
// s.mu held, HandleFree/HandleDelete after releasing it. The I/O
// itself runs concurrently via errgroup and detached from the lock, per
// spec.md §5's "long-running I/O happens outside the critical section".
func (s *Storage) deleteBackingFilesAsync(victims []tachyon.FileID) {
	dataFolder := s.dataFolder
	go func() {
		var g errgroup.Group
		for _, id := range victims {
			id := id
			g.Go(func() error {
				p := filepath.Join(dataFolder, strconv.FormatInt(int64(id), 10))
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			log.Warningf("evicting backing files: %v", err)
		}
	}()
}

// CacheFile promotes fileID from the user's temp folder into the
// resident set. sizeOnDisk becomes the file's authoritative size; the
// user's reservation is debited by that amount. The master is notified
// afterward, outside the lock.
func (s *Storage) CacheFile(userID tachyon.UserID, fileID tachyon.FileID, sizeOnDisk int64, pinned bool, workerUsedBytesFn func() int64) error {
	s.mu.Lock()
	have := s.userSpace[userID]
	debit := sizeOnDisk
	if debit > have {
		debit = have
	}
	s.userSpace[userID] = have - debit
	s.resident[fileID] = &residentFile{sizeBytes: sizeOnDisk, lastAccess: s.now(), pinned: pinned}
	delete(s.pendingFree, fileID)
	used := s.usedBytes
	s.mu.Unlock()

	s.DrainPendingFree()

	if s.master != nil {
		if workerUsedBytesFn != nil {
			used = workerUsedBytesFn()
		}
		return s.master.NotifyCacheFile(used, fileID, sizeOnDisk)
	}
	return nil
}

// LockFile increments the reader refcount, making the file ineligible
// for eviction, per spec.md §4.4/§5.
func (s *Storage) LockFile(fileID tachyon.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.resident[fileID]; ok {
		f.lockCount++
	}
}

// UnlockFile decrements the reader refcount. An unmatched unlock is a
// no-op (logged), and dropping to zero re-examines pendingFree, per
// spec.md §4.4's Free/Delete handling.
func (s *Storage) UnlockFile(fileID tachyon.FileID) {
	s.mu.Lock()
	f, ok := s.resident[fileID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if f.lockCount == 0 {
		log.Warningf("unmatched unlock for file %v", fileID)
		s.mu.Unlock()
		return
	}
	f.lockCount--
	needsRecheck := f.lockCount == 0 && s.pendingFree[fileID]
	s.mu.Unlock()

	if needsRecheck {
		s.DrainPendingFree()
	}
}

// AccessFile touches the file's LRU timestamp.
func (s *Storage) AccessFile(fileID tachyon.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.resident[fileID]; ok {
		f.lastAccess = s.now()
	}
}

// SetPinned records the master's pin directive for fileID, independent
// of residency, and applies it to the resident record if one exists,
// applied when the worker learns the master's pin set has changed
// (worker_getPinIdList).
func (s *Storage) SetPinned(fileID tachyon.FileID, pinned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pinned {
		s.pinned[fileID] = true
	} else {
		delete(s.pinned, fileID)
	}
	if f, ok := s.resident[fileID]; ok {
		f.pinned = pinned
	}
}

// HandleFree evicts fileID now if eligible; otherwise records it in
// pendingFree for re-examination on the next unlock/cache, per
// spec.md §4.4. Pinned files are skipped: Free never evicts a pinned
// file and does not defer it either.
func (s *Storage) HandleFree(fileIDs []tachyon.FileID) {
	s.mu.Lock()
	var toDelete []tachyon.FileID
	for _, id := range fileIDs {
		f, ok := s.resident[id]
		if !ok {
			continue
		}
		if f.pinned {
			continue
		}
		if f.lockCount == 0 {
			toDelete = append(toDelete, id)
			delete(s.resident, id)
			s.usedBytes -= f.sizeBytes
			delete(s.pendingFree, id)
			s.removedSinceReport = append(s.removedSinceReport, id)
		} else {
			s.pendingFree[id] = true
		}
	}
	s.mu.Unlock()
	if len(toDelete) > 0 {
		s.deleteBackingFilesAsync(toDelete)
	}
}

// HandleDelete evicts fileIDs unconditionally: the files no longer
// exist at the master, so lock state is irrelevant, per spec.md §4.4's
// Delete semantics (forceful, ignoring locks).
func (s *Storage) HandleDelete(fileIDs []tachyon.FileID) {
	s.mu.Lock()
	var toDelete []tachyon.FileID
	for _, id := range fileIDs {
		if f, ok := s.resident[id]; ok {
			toDelete = append(toDelete, id)
			s.usedBytes -= f.sizeBytes
			delete(s.resident, id)
			s.removedSinceReport = append(s.removedSinceReport, id)
		}
		delete(s.pendingFree, id)
	}
	s.mu.Unlock()
	if len(toDelete) > 0 {
		s.deleteBackingFilesAsync(toDelete)
	}
}

// DrainPendingFree re-examines pendingFree, evicting whatever has
// become eligible since it was deferred (e.g. on unlock, or after a
// successful cache freed a lock).
func (s *Storage) DrainPendingFree() {
	s.mu.Lock()
	var ids []tachyon.FileID
	for id := range s.pendingFree {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	if len(ids) > 0 {
		s.HandleFree(ids)
	}
}

// DrainRemoved returns and clears the file ids evicted since the last
// call, for the heartbeat driver to report as removedFiles.
func (s *Storage) DrainRemoved() []tachyon.FileID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.removedSinceReport
	s.removedSinceReport = nil
	return out
}

// UsedBytes reports the current accounting snapshot.
func (s *Storage) UsedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytes
}

// UserReservedBytes reports how many bytes userID currently has
// reserved (not yet committed via CacheFile or released via
// ReturnSpace).
func (s *Storage) UserReservedBytes(userID tachyon.UserID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userSpace[userID]
}

// IsPinned reports whether fileID is currently pinned by master
// directive, whether or not it is resident yet.
func (s *Storage) IsPinned(fileID tachyon.FileID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned[fileID]
}

func (s *Storage) ResidentFileIDs() []tachyon.FileID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tachyon.FileID, 0, len(s.resident))
	for id := range s.resident {
		out = append(out, id)
	}
	return out
}


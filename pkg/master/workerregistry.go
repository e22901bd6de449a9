package master

import (
	"time"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// workerEntry is the registry's live-worker record, grounded on the
// teacher's chunkServerInfo (lastHeartbeat + per-server chunk set),
// generalized to carry capacity/usage and a FIFO command queue.
type workerEntry struct {
	id            tachyon.WorkerID
	address       tachyon.NetAddress
	totalBytes    int64
	usedBytes     int64
	lastContactMs int64
	startTimeMs   int64
	files         map[tachyon.FileID]bool
	commands      []tachyon.Command // FIFO, drained one per heartbeat
}

// workerRegistry is the set of live workers, grounded on
// chunkServerManager (Heartbeat/DetectDeadServers/RemoveServer/
// ChooseServers), generalized from "replica hosts for a chunk" to
// "workers caching whole files".
type workerRegistry struct {
	workers     map[tachyon.WorkerID]*workerEntry
	nextID      tachyon.WorkerID
	masterStart int64
}

func newWorkerRegistry(masterStartTimeMs int64) *workerRegistry {
	return &workerRegistry{
		workers:     make(map[tachyon.WorkerID]*workerEntry),
		nextID:      1,
		masterStart: masterStartTimeMs,
	}
}

// register creates or replaces a worker's registry entry and returns
// its real worker-id and the previously declared file-id set (so the
// caller can reconcile the placement index).
func (r *workerRegistry) register(addr tachyon.NetAddress, totalBytes, usedBytes int64, files []tachyon.FileID, nowMs int64) (tachyon.WorkerID, []tachyon.FileID) {
	for _, w := range r.workers {
		if w.address == addr {
			prev := fileSetToSlice(w.files)
			w.totalBytes = totalBytes
			w.usedBytes = usedBytes
			w.files = fileSliceToSet(files)
			w.lastContactMs = nowMs
			w.startTimeMs = nowMs
			w.commands = nil
			return w.id, prev
		}
	}

	id := r.nextID
	r.nextID++
	r.workers[id] = &workerEntry{
		id:            id,
		address:       addr,
		totalBytes:    totalBytes,
		usedBytes:     usedBytes,
		lastContactMs: nowMs,
		startTimeMs:   nowMs,
		files:         fileSliceToSet(files),
	}
	return id, nil
}

func fileSliceToSet(files []tachyon.FileID) map[tachyon.FileID]bool {
	set := make(map[tachyon.FileID]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	return set
}

func fileSetToSlice(set map[tachyon.FileID]bool) []tachyon.FileID {
	out := make([]tachyon.FileID, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	return out
}

// knownWorkerID reports whether workerID currently exists in the
// registry; the caller uses this to decide whether to force the worker
// back through worker_register (spec.md §4.3). A master restart (or a
// crash-restart that wiped the in-memory registry) makes every
// previously-issued worker-id unknown, which is exactly the signal
// spec.md describes as "master's in-memory start-time changes".
func (r *workerRegistry) knownWorkerID(workerID tachyon.WorkerID) bool {
	_, ok := r.workers[workerID]
	return ok
}

// heartbeat updates usedBytes and last-contact time, removes the
// reported file-ids from the worker's resident set, and pops the
// front of the worker's FIFO command queue (Free taking precedence
// over Nothing per spec.md §4.3 — callers enqueue Free/Delete commands
// via enqueue, and an empty queue falls back to Nothing below).
func (r *workerRegistry) heartbeat(workerID tachyon.WorkerID, usedBytes int64, removed []tachyon.FileID, nowMs int64) tachyon.Command {
	w, ok := r.workers[workerID]
	if !ok {
		return tachyon.Command{Type: tachyon.CommandRegister}
	}
	w.lastContactMs = nowMs
	w.usedBytes = usedBytes
	for _, f := range removed {
		delete(w.files, f)
	}

	if len(w.commands) > 0 {
		cmd := w.commands[0]
		w.commands = w.commands[1:]
		return cmd
	}
	return tachyon.Command{Type: tachyon.CommandNothing}
}

// enqueue appends a command to workerID's FIFO queue (e.g. Free/Delete
// issued by a delete/evict RPC, to be delivered on the worker's next
// heartbeat).
func (r *workerRegistry) enqueue(workerID tachyon.WorkerID, cmd tachyon.Command) {
	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	w.commands = append(w.commands, cmd)
}

// markFileRemoved removes fileID from workerID's declared resident set.
// The heartbeat path does not call it; heartbeat removes the reported
// file-ids itself.
func (r *workerRegistry) markFileRemoved(workerID tachyon.WorkerID, fileID tachyon.FileID) {
	if w, ok := r.workers[workerID]; ok {
		delete(w.files, fileID)
	}
}

// markFileAdded records that workerID now holds fileID, used on
// worker_cacheFile.
func (r *workerRegistry) markFileAdded(workerID tachyon.WorkerID, fileID tachyon.FileID, usedBytes int64) {
	if w, ok := r.workers[workerID]; ok {
		w.files[fileID] = true
		w.usedBytes = usedBytes
	}
}

func (r *workerRegistry) get(workerID tachyon.WorkerID) (*workerEntry, bool) {
	w, ok := r.workers[workerID]
	return w, ok
}

func (r *workerRegistry) liveAddresses() []tachyon.NetAddress {
	out := make([]tachyon.NetAddress, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.address)
	}
	return out
}

// detectTimedOut returns the ids of workers whose last contact is older
// than timeout as of nowMs, grounded on chunkServerManager.
// DetectDeadServers.
func (r *workerRegistry) detectTimedOut(timeout time.Duration, nowMs int64) []tachyon.WorkerID {
	var out []tachyon.WorkerID
	cutoff := nowMs - timeout.Milliseconds()
	for id, w := range r.workers {
		if w.lastContactMs < cutoff {
			out = append(out, id)
		}
	}
	return out
}

// remove drops workerID from the registry, returning the file-ids it
// was declared to hold.
func (r *workerRegistry) remove(workerID tachyon.WorkerID) []tachyon.FileID {
	w, ok := r.workers[workerID]
	if !ok {
		return nil
	}
	delete(r.workers, workerID)
	return fileSetToSlice(w.files)
}

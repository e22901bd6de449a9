package worker

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// userRecord is the worker-local bookkeeping for one client session,
// per spec.md §3's User data model. The master never stores this —
// it is purely a worker-lifetime concept.
type userRecord struct {
	id              tachyon.UserID
	localTempFolder string
	ufsTempFolder   string
	lastHeartbeatMs int64
}

// userManager owns per-user temp folders and their heartbeat-driven
// lifecycle, grounded on the teacher's downloadBuffer: a map guarded by
// one lock, with a ticker-driven sweep that deletes whatever has not
// been touched recently, generalized from "expiring byte buffers" to
// "expiring on-disk temp folders plus their still-reserved space".
type userManager struct {
	mu        sync.Mutex
	users     map[tachyon.UserID]*userRecord
	localRoot string
	ufsRoot   string
}

func newUserManager(localRoot, ufsRoot string) *userManager {
	return &userManager{
		users:     make(map[tachyon.UserID]*userRecord),
		localRoot: localRoot,
		ufsRoot:   ufsRoot,
	}
}

// ensure returns (creating if needed) the userRecord for id, and
// creates its local/UFS temp folders on first touch, per
// getUserTempFolder / getUserUnderfsTempFolder / userHeartbeat.
func (u *userManager) ensure(id tachyon.UserID, nowMs int64) (*userRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	r, ok := u.users[id]
	if ok {
		r.lastHeartbeatMs = nowMs
		return r, nil
	}

	local := filepath.Join(u.localRoot, strconv.FormatInt(int64(id), 10))
	ufs := filepath.Join(u.ufsRoot, strconv.FormatInt(int64(id), 10))
	if err := os.MkdirAll(local, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(ufs, 0o755); err != nil {
		return nil, err
	}
	r = &userRecord{id: id, localTempFolder: local, ufsTempFolder: ufs, lastHeartbeatMs: nowMs}
	u.users[id] = r
	return r, nil
}

func (u *userManager) heartbeat(id tachyon.UserID, nowMs int64) error {
	_, err := u.ensure(id, nowMs)
	return err
}

// sweepStale removes the temp folders (local and UFS) of every user
// whose last heartbeat is older than timeout, releasing any reservation
// the caller still holds for them via the onRelease callback (the
// caller is the WorkerStorage, so space accounting stays there). This
// is the worker-side counterpart of original_source's
// UsersHeartbeatExecutor (Worker.java) that the distilled spec names
// but does not flesh out.
func (u *userManager) sweepStale(timeout int64, nowMs int64, onRelease func(tachyon.UserID)) []tachyon.UserID {
	u.mu.Lock()
	var stale []*userRecord
	for id, r := range u.users {
		if nowMs-r.lastHeartbeatMs > timeout {
			stale = append(stale, r)
			delete(u.users, id)
		}
	}
	u.mu.Unlock()

	ids := make([]tachyon.UserID, 0, len(stale))
	for _, r := range stale {
		if err := os.RemoveAll(r.localTempFolder); err != nil {
			log.Warningf("remove local temp folder for user %v: %v", r.id, err)
		}
		if err := os.RemoveAll(r.ufsTempFolder); err != nil {
			log.Warningf("remove ufs temp folder for user %v: %v", r.id, err)
		}
		if onRelease != nil {
			onRelease(r.id)
		}
		ids = append(ids, r.id)
	}
	return ids
}

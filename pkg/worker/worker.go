package worker

import (
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wikieden/tachyon/internal/rpcutil"
	"github.com/wikieden/tachyon/pkg/tachyon"
)

// Worker is the WorkerStorage host process: it registers with the
// master, runs the to-master heartbeat loop, serves the worker-facing
// RPCs clients call directly, and sweeps stale user sessions. Grounded
// on ChunkServer.NewAndServe for the overall shape (accept loop plus a
// background heartbeat goroutine, both torn down via a shutdown
// channel).
type Worker struct {
	address    tachyon.NetAddress
	masterAddr tachyon.NetAddress

	storage *Storage
	users   *userManager

	ufsDataFolder string

	listener net.Listener
	shutdown chan struct{}

	id          tachyon.WorkerID
	startTimeMs int64

	pinned map[tachyon.FileID]bool

	evictionStop func()
}

// masterClient implements MasterNotifier over net/rpc, grounded on
// util.Call.
type masterClient struct {
	masterAddr tachyon.NetAddress
	workerID   func() tachyon.WorkerID
}

func (c *masterClient) NotifyCacheFile(workerUsedBytes int64, fileID tachyon.FileID, sizeBytes int64) error {
	args := tachyon.WorkerCacheFileArg{
		WorkerID:       c.workerID(),
		WorkerUsedByte: workerUsedBytes,
		FileID:         fileID,
		FileSizeBytes:  sizeBytes,
	}
	var reply tachyon.WorkerCacheFileReply
	return rpcutil.Call(c.masterAddr, "MasterService.WorkerCacheFile", args, &reply)
}

func (c *masterClient) NotifyCheckpoint(fileID tachyon.FileID, sizeBytes int64, checkpointPath string) error {
	args := tachyon.AddCheckpointArg{
		WorkerID:       c.workerID(),
		FileID:         fileID,
		FileSizeBytes:  sizeBytes,
		CheckpointPath: checkpointPath,
	}
	var reply tachyon.AddCheckpointReply
	return rpcutil.Call(c.masterAddr, "MasterService.AddCheckpoint", args, &reply)
}

func (c *masterClient) NotifyOutOfMemoryForPin(fileID tachyon.FileID) error {
	args := tachyon.OutOfMemoryForPinFileArg{FileID: fileID}
	var reply tachyon.OutOfMemoryForPinFileReply
	return rpcutil.Call(c.masterAddr, "MasterService.OutOfMemoryForPinFile", args, &reply)
}

// New constructs a Worker. capacityBytes bounds in-memory storage;
// dataFolder/userLocalRoot/userUfsRoot are created under root if
// missing.
func New(address, masterAddr tachyon.NetAddress, root string, capacityBytes int64) (*Worker, error) {
	dataFolder := filepath.Join(root, "data")
	userLocalRoot := filepath.Join(root, "users")
	userUfsRoot := filepath.Join(root, "ufs-users")
	ufsDataFolder := filepath.Join(root, "ufs-data")
	for _, dir := range []string{dataFolder, userLocalRoot, userUfsRoot, ufsDataFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	w := &Worker{
		address:       address,
		masterAddr:    masterAddr,
		ufsDataFolder: ufsDataFolder,
		shutdown:      make(chan struct{}),
		pinned:        make(map[tachyon.FileID]bool),
	}
	mc := &masterClient{masterAddr: masterAddr, workerID: func() tachyon.WorkerID { return w.id }}
	w.storage = NewStorage(capacityBytes, dataFolder, mc, func() int64 { return time.Now().UnixMilli() })
	w.users = newUserManager(userLocalRoot, userUfsRoot)
	return w, nil
}

// Serve registers with the master, starts the RPC accept loop, the
// to-master heartbeat goroutine, the pin-list sync goroutine and the
// stale-user sweep goroutine, then returns. Stop tears all of them
// down.
func (w *Worker) Serve() error {
	if err := w.register(); err != nil {
		return err
	}

	rpcs := rpc.NewServer()
	if err := rpcs.RegisterName("WorkerService", &rpcFacade{w: w}); err != nil {
		return err
	}
	l, err := net.Listen("tcp", w.address.String())
	if err != nil {
		return err
	}
	w.listener = l

	go w.acceptLoop(rpcs)
	go w.heartbeatLoop()
	go w.pinSyncLoop()
	go w.userSweepLoop()
	w.evictionStop = w.storage.StartEvictionSweep(tachyon.EvictionSweepInterval)

	log.Infof("worker %v listening at %v, master at %v", w.id, w.address, w.masterAddr)
	return nil
}

func (w *Worker) acceptLoop(rpcs *rpc.Server) {
	for {
		conn, err := w.listener.Accept()
		if err != nil {
			select {
			case <-w.shutdown:
				return
			default:
				log.Warningf("worker accept error: %v", err)
				return
			}
		}
		go func() {
			rpcs.ServeConn(conn)
			conn.Close()
		}()
	}
}

// register implements the worker side of worker_register: it reports
// its currently resident file set (empty on first boot, non-empty if
// this is an orphaned process rejoining after a master restart) and
// decodes the combined response per spec.md §4.3.
func (w *Worker) register() error {
	args := tachyon.RegisterWorkerArg{
		Address:      w.address,
		TotalBytes:   w.storage.capacityBytes,
		UsedBytes:    w.storage.UsedBytes(),
		CurrentFiles: w.storage.ResidentFileIDs(),
	}
	var reply tachyon.RegisterWorkerReply
	if err := rpcutil.Call(w.masterAddr, "MasterService.RegisterWorker", args, &reply); err != nil {
		return err
	}
	id, startTimeMs := tachyon.DecodeRegisterResponse(reply.Value)
	w.id = id
	w.startTimeMs = startTimeMs
	return nil
}

// heartbeatLoop is worker_heartbeat's driver: every
// ToMasterHeartbeatInterval it reports usage and evicted files and
// dispatches whatever Command comes back. A Register command (the
// master does not recognize this worker-id, e.g. after a master
// restart) is handled by re-running register(); repeated RPC failures
// beyond HeartbeatTimeout are fatal, per spec.md §7.
func (w *Worker) heartbeatLoop() {
	ticker := time.NewTicker(tachyon.ToMasterHeartbeatInterval)
	defer ticker.Stop()

	var firstFailureAt time.Time
	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
		}

		args := tachyon.HeartbeatArg{
			WorkerID:     w.id,
			UsedBytes:    w.storage.UsedBytes(),
			RemovedFiles: w.storage.DrainRemoved(),
		}
		var reply tachyon.HeartbeatReply
		if err := rpcutil.Call(w.masterAddr, "MasterService.Heartbeat", args, &reply); err != nil {
			if firstFailureAt.IsZero() {
				firstFailureAt = time.Now()
			} else if time.Since(firstFailureAt) > tachyon.HeartbeatTimeout {
				log.Fatalf("worker %v lost contact with master for %v, exiting", w.id, tachyon.HeartbeatTimeout)
			}
			log.Warningf("heartbeat rpc error: %v", err)
			continue
		}
		firstFailureAt = time.Time{}
		w.dispatch(reply.Command)
	}
}

func (w *Worker) dispatch(cmd tachyon.Command) {
	switch cmd.Type {
	case tachyon.CommandNothing, tachyon.CommandUnknown:
	case tachyon.CommandRegister:
		if err := w.register(); err != nil {
			log.Warningf("re-register after master restart failed: %v", err)
		}
	case tachyon.CommandFree:
		w.storage.HandleFree(cmd.Data)
	case tachyon.CommandDelete:
		w.storage.HandleDelete(cmd.Data)
	}
}

// pinSyncLoop periodically pulls the master's pin set (worker_getPinIdList)
// and applies it to resident files, so a pin/unpin issued against a file
// this worker already holds takes effect without waiting on cacheFile.
func (w *Worker) pinSyncLoop() {
	ticker := time.NewTicker(tachyon.ToMasterHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
		}
		var reply tachyon.GetPinIDListReply
		if err := rpcutil.Call(w.masterAddr, "MasterService.GetPinIDList", struct{}{}, &reply); err != nil {
			log.Warningf("getPinIdList rpc error: %v", err)
			continue
		}
		next := make(map[tachyon.FileID]bool, len(reply.IDs))
		for _, id := range reply.IDs {
			next[id] = true
			w.storage.SetPinned(id, true)
		}
		for id := range w.pinned {
			if !next[id] {
				w.storage.SetPinned(id, false)
			}
		}
		w.pinned = next
	}
}

// userSweepLoop runs the worker-local counterpart of the teacher's
// downloadBuffer ticker sweep: every UserHeartbeatInterval it clears out
// user sessions that have not sent userHeartbeat within UserTimeout,
// releasing their held reservation.
func (w *Worker) userSweepLoop() {
	ticker := time.NewTicker(tachyon.UserHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
		}
		now := time.Now().UnixMilli()
		w.users.sweepStale(tachyon.UserTimeout.Milliseconds(), now, func(id tachyon.UserID) {
			w.storage.ReturnSpace(id, w.storage.UserReservedBytes(id))
		})
	}
}

// Stop closes the listener and ends every background goroutine.
func (w *Worker) Stop() {
	close(w.shutdown)
	if w.evictionStop != nil {
		w.evictionStop()
	}
	if w.listener != nil {
		w.listener.Close()
	}
}

// ---- rpcFacade: WorkerService wire methods, one per client-facing RPC ----

type rpcFacade struct {
	w *Worker
}

func (f *rpcFacade) AccessFile(args tachyon.AccessFileArg, reply *tachyon.AccessFileReply) error {
	f.w.storage.AccessFile(args.FileID)
	return nil
}

func (f *rpcFacade) CacheFile(args tachyon.CacheFileArg, reply *tachyon.CacheFileReply) error {
	path := filepath.Join(f.w.storage.DataFolder(), strconv.FormatInt(int64(args.FileID), 10))
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	pinned := f.w.storage.IsPinned(args.FileID)
	return f.w.storage.CacheFile(args.UserID, args.FileID, info.Size(), pinned, f.w.storage.UsedBytes)
}

// WorkerAddCheckpoint promotes the checkpoint the user wrote under its
// UFS temp folder into the worker's durable UFS data area (never swept
// by userManager.sweepStale, unlike the temp folder it's promoted
// from) via a temp-to-final rename, then reports the final path to the
// master. A failed Stat or Rename is surfaced as FailedToCheckpoint.
func (f *rpcFacade) WorkerAddCheckpoint(args tachyon.WorkerAddCheckpointArg, reply *tachyon.WorkerAddCheckpointReply) error {
	u, err := f.w.users.ensure(args.UserID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	name := strconv.FormatInt(int64(args.FileID), 10)
	src := filepath.Join(u.ufsTempFolder, name)
	info, err := os.Stat(src)
	if err != nil {
		return tachyon.NewError(tachyon.FailedToCheckpoint, err.Error())
	}
	dst := filepath.Join(f.w.ufsDataFolder, name)
	if err := os.Rename(src, dst); err != nil {
		return tachyon.NewError(tachyon.FailedToCheckpoint, err.Error())
	}
	return f.w.storage.Notifier().NotifyCheckpoint(args.FileID, info.Size(), dst)
}

func (f *rpcFacade) GetDataFolder(args struct{}, reply *tachyon.GetDataFolderReply) error {
	reply.Path = f.w.storage.DataFolder()
	return nil
}

func (f *rpcFacade) GetUserTempFolder(args tachyon.GetUserTempFolderArg, reply *tachyon.GetUserTempFolderReply) error {
	u, err := f.w.users.ensure(args.UserID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	reply.Path = u.localTempFolder
	return nil
}

func (f *rpcFacade) GetUserUnderfsTempFolder(args tachyon.GetUserUnderfsTempFolderArg, reply *tachyon.GetUserUnderfsTempFolderReply) error {
	u, err := f.w.users.ensure(args.UserID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	reply.Path = u.ufsTempFolder
	return nil
}

func (f *rpcFacade) LockFile(args tachyon.LockFileArg, reply *tachyon.LockFileReply) error {
	f.w.storage.LockFile(args.FileID)
	return nil
}

func (f *rpcFacade) UnlockFile(args tachyon.UnlockFileArg, reply *tachyon.UnlockFileReply) error {
	f.w.storage.UnlockFile(args.FileID)
	return nil
}

func (f *rpcFacade) ReturnSpace(args tachyon.ReturnSpaceArg, reply *tachyon.ReturnSpaceReply) error {
	f.w.storage.ReturnSpace(args.UserID, args.Bytes)
	return nil
}

func (f *rpcFacade) RequestSpace(args tachyon.RequestSpaceArg, reply *tachyon.RequestSpaceReply) error {
	reply.Success = f.w.storage.RequestSpace(args.UserID, args.FileID, args.Bytes)
	return nil
}

func (f *rpcFacade) UserHeartbeat(args tachyon.UserHeartbeatArg, reply *tachyon.UserHeartbeatReply) error {
	return f.w.users.heartbeat(args.UserID, time.Now().UnixMilli())
}

package master

import (
	"net"
	"net/rpc"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// Server is the net/rpc front for MasterService: accept loop plus a
// background worker-timeout sweep, grounded in shape on the teacher's
// Master.NewAndServe (accept loop with a shutdown channel) and on
// chunkServerManager.DetectDeadServers invoked on a ticker.
type Server struct {
	svc      *MasterService
	listener net.Listener
	shutdown chan struct{}
}

// rpcFacade is the net/rpc-registered type: one method per wire RPC,
// each just unpacking args, calling into MasterService, and packing
// the reply — the teacher keeps this same thin-wrapper shape on Master
// itself; we split it out so MasterService stays transport-free and
// directly unit-testable.
type rpcFacade struct {
	svc *MasterService
}

// NewServer starts listening on addr and returns the running Server.
// The RPC accept loop and the worker-timeout sweep both run in
// background goroutines; Stop tears both down.
func NewServer(addr string, svc *MasterService) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{svc: svc, listener: l, shutdown: make(chan struct{})}

	rpcs := rpc.NewServer()
	if err := rpcs.RegisterName("MasterService", &rpcFacade{svc: svc}); err != nil {
		l.Close()
		return nil, err
	}

	go s.acceptLoop(rpcs)
	go s.sweepLoop()

	log.Infof("master listening at %v", addr)
	return s, nil
}

func (s *Server) acceptLoop(rpcs *rpc.Server) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Warningf("master accept error: %v", err)
				return
			}
		}
		go func() {
			rpcs.ServeConn(conn)
			conn.Close()
		}()
	}
}

func (s *Server) sweepLoop() {
	ticker := time.NewTicker(tachyon.WorkerTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.svc.SweepTimedOutWorkers(tachyon.WorkerTimeout)
		case <-s.shutdown:
			return
		}
	}
}

// Stop closes the listener and ends both background goroutines.
func (s *Server) Stop() {
	close(s.shutdown)
	s.listener.Close()
}

// ---- rpcFacade: wire methods, one per MasterService RPC ----

func (f *rpcFacade) RegisterWorker(args tachyon.RegisterWorkerArg, reply *tachyon.RegisterWorkerReply) error {
	reply.Value = f.svc.RegisterWorker(args.Address, args.TotalBytes, args.UsedBytes, args.CurrentFiles)
	return nil
}

func (f *rpcFacade) Heartbeat(args tachyon.HeartbeatArg, reply *tachyon.HeartbeatReply) error {
	reply.Command = f.svc.Heartbeat(args.WorkerID, args.UsedBytes, args.RemovedFiles)
	return nil
}

func (f *rpcFacade) WorkerCacheFile(args tachyon.WorkerCacheFileArg, reply *tachyon.WorkerCacheFileReply) error {
	return f.svc.WorkerCacheFile(args.WorkerID, args.WorkerUsedByte, args.FileID, args.FileSizeBytes)
}

func (f *rpcFacade) GetPinIDList(args struct{}, reply *tachyon.GetPinIDListReply) error {
	reply.IDs = f.svc.GetPinIDList()
	return nil
}

func (f *rpcFacade) AddCheckpoint(args tachyon.AddCheckpointArg, reply *tachyon.AddCheckpointReply) error {
	err := f.svc.AddCheckpoint(args.WorkerID, args.FileID, args.FileSizeBytes, args.CheckpointPath)
	reply.Success = err == nil
	return err
}

func (f *rpcFacade) CreateFile(args tachyon.CreateFileArg, reply *tachyon.CreateFileReply) error {
	id, err := f.svc.CreateFile(args.Path)
	reply.FileID = id
	return err
}

func (f *rpcFacade) GetFileID(args tachyon.GetFileIDArg, reply *tachyon.GetFileIDReply) error {
	reply.FileID = f.svc.GetFileID(args.Path)
	return nil
}

func (f *rpcFacade) GetUserID(args struct{}, reply *tachyon.GetUserIDReply) error {
	reply.UserID = f.svc.GetUserID()
	return nil
}

func (f *rpcFacade) GetWorker(args tachyon.GetWorkerArg, reply *tachyon.GetWorkerReply) error {
	addr, err := f.svc.GetWorker(args.Random, args.Host)
	reply.Address = addr
	return err
}

func (f *rpcFacade) GetClientFileInfoByID(args tachyon.GetClientFileInfoArg, reply *tachyon.GetClientFileInfoReply) error {
	info, err := f.svc.GetClientFileInfoByID(args.FileID)
	reply.Info = info
	return err
}

func (f *rpcFacade) GetClientFileInfoByPath(args tachyon.GetClientFileInfoArg, reply *tachyon.GetClientFileInfoReply) error {
	info, err := f.svc.GetClientFileInfoByPath(args.Path)
	reply.Info = info
	return err
}

func (f *rpcFacade) GetFileLocationsByID(args tachyon.GetFileLocationsArg, reply *tachyon.GetFileLocationsReply) error {
	locs, err := f.svc.GetFileLocationsByID(args.FileID)
	reply.Locations = locs
	return err
}

func (f *rpcFacade) GetFileLocationsByPath(args tachyon.GetFileLocationsArg, reply *tachyon.GetFileLocationsReply) error {
	locs, err := f.svc.GetFileLocationsByPath(args.Path)
	reply.Locations = locs
	return err
}

func (f *rpcFacade) ListFiles(args tachyon.ListFilesArg, reply *tachyon.ListFilesReply) error {
	ids, err := f.svc.ListFiles(args.Path)
	reply.FileIDs = ids
	return err
}

func (f *rpcFacade) Ls(args tachyon.LsArg, reply *tachyon.LsReply) error {
	infos, err := f.svc.Ls(args.Path)
	reply.Infos = infos
	return err
}

func (f *rpcFacade) ListStatus(args tachyon.ListStatusArg, reply *tachyon.ListStatusReply) error {
	infos, err := f.svc.ListStatus(args.Path)
	reply.Infos = infos
	return err
}

func (f *rpcFacade) DeleteByID(args tachyon.DeleteArg, reply *tachyon.DeleteReply) error {
	ok, err := f.svc.DeleteByID(args.FileID, args.Recursive)
	reply.Success = ok
	return err
}

func (f *rpcFacade) DeleteByPath(args tachyon.DeleteArg, reply *tachyon.DeleteReply) error {
	ok, err := f.svc.DeleteByPath(args.Path, args.Recursive)
	reply.Success = ok
	return err
}

func (f *rpcFacade) RenameFile(args tachyon.RenameFileArg, reply *tachyon.RenameFileReply) error {
	return f.svc.RenameFile(args.SrcPath, args.DstPath)
}

func (f *rpcFacade) UnpinFile(args tachyon.UnpinFileArg, reply *tachyon.UnpinFileReply) error {
	return f.svc.UnpinFile(args.FileID)
}

func (f *rpcFacade) Mkdir(args tachyon.MkdirArg, reply *tachyon.MkdirReply) error {
	id, err := f.svc.Mkdir(args.Path)
	reply.FolderID = id
	return err
}

func (f *rpcFacade) OutOfMemoryForPinFile(args tachyon.OutOfMemoryForPinFileArg, reply *tachyon.OutOfMemoryForPinFileReply) error {
	f.svc.OutOfMemoryForPinFile(args.FileID)
	return nil
}

func (f *rpcFacade) CreateRawTable(args tachyon.CreateRawTableArg, reply *tachyon.CreateRawTableReply) error {
	id, err := f.svc.CreateRawTable(args.Path, args.Columns, args.Metadata)
	reply.TableID = id
	return err
}

func (f *rpcFacade) GetRawTableID(args tachyon.GetRawTableIDArg, reply *tachyon.GetRawTableIDReply) error {
	reply.TableID = f.svc.GetRawTableID(args.Path)
	return nil
}

func (f *rpcFacade) GetClientRawTableInfoByID(args tachyon.GetClientRawTableInfoArg, reply *tachyon.GetClientRawTableInfoReply) error {
	info, err := f.svc.GetClientRawTableInfoByID(args.TableID)
	reply.Info = info
	return err
}

func (f *rpcFacade) GetClientRawTableInfoByPath(args tachyon.GetClientRawTableInfoArg, reply *tachyon.GetClientRawTableInfoReply) error {
	info, err := f.svc.GetClientRawTableInfoByPath(args.Path)
	reply.Info = info
	return err
}

func (f *rpcFacade) UpdateRawTableMetadata(args tachyon.UpdateRawTableMetadataArg, reply *tachyon.UpdateRawTableMetadataReply) error {
	return f.svc.UpdateRawTableMetadata(args.TableID, args.Metadata)
}

func (f *rpcFacade) GetNumberOfFiles(args tachyon.GetNumberOfFilesArg, reply *tachyon.GetNumberOfFilesReply) error {
	n, err := f.svc.GetNumberOfFiles(args.Path)
	reply.Count = n
	return err
}

func (f *rpcFacade) GetUnderfsAddress(args struct{}, reply *tachyon.GetUnderfsAddressReply) error {
	reply.Address = f.svc.GetUnderfsAddress()
	return nil
}

func (f *rpcFacade) GetWorkersInfo(args struct{}, reply *tachyon.GetWorkersInfoReply) error {
	reply.Infos = f.svc.GetWorkersInfo()
	return nil
}

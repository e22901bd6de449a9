// Package client is a thin driver over the wire contract: one method
// per RPC, unpacking a typed reply instead of exposing Arg/Reply
// structs to callers, grounded on the teacher's gfs/client.Client.
package client

import (
	"github.com/wikieden/tachyon/internal/rpcutil"
	"github.com/wikieden/tachyon/pkg/tachyon"
)

// MasterClient talks to one MasterService.
type MasterClient struct {
	addr tachyon.NetAddress
}

func NewMasterClient(addr tachyon.NetAddress) *MasterClient {
	return &MasterClient{addr: addr}
}

func (c *MasterClient) call(rpcname string, args, reply interface{}) error {
	return rpcutil.Call(c.addr, "MasterService."+rpcname, args, reply)
}

func (c *MasterClient) CreateFile(path tachyon.Path) (tachyon.FileID, error) {
	var reply tachyon.CreateFileReply
	err := c.call("CreateFile", tachyon.CreateFileArg{Path: path}, &reply)
	return reply.FileID, err
}

func (c *MasterClient) GetFileID(path tachyon.Path) (tachyon.FileID, error) {
	var reply tachyon.GetFileIDReply
	err := c.call("GetFileID", tachyon.GetFileIDArg{Path: path}, &reply)
	return reply.FileID, err
}

func (c *MasterClient) GetUserID() (tachyon.UserID, error) {
	var reply tachyon.GetUserIDReply
	err := c.call("GetUserID", struct{}{}, &reply)
	return reply.UserID, err
}

// GetWorker asks the master to pick a worker: random if random is true
// or host is empty, otherwise the worker on that host.
func (c *MasterClient) GetWorker(random bool, host string) (tachyon.NetAddress, error) {
	var reply tachyon.GetWorkerReply
	err := c.call("GetWorker", tachyon.GetWorkerArg{Random: random, Host: host}, &reply)
	return reply.Address, err
}

func (c *MasterClient) GetClientFileInfoByID(id tachyon.FileID) (tachyon.ClientFileInfo, error) {
	var reply tachyon.GetClientFileInfoReply
	err := c.call("GetClientFileInfoByID", tachyon.GetClientFileInfoArg{FileID: id}, &reply)
	return reply.Info, err
}

func (c *MasterClient) GetClientFileInfoByPath(path tachyon.Path) (tachyon.ClientFileInfo, error) {
	var reply tachyon.GetClientFileInfoReply
	err := c.call("GetClientFileInfoByPath", tachyon.GetClientFileInfoArg{Path: path}, &reply)
	return reply.Info, err
}

func (c *MasterClient) GetFileLocationsByID(id tachyon.FileID) ([]tachyon.NetAddress, error) {
	var reply tachyon.GetFileLocationsReply
	err := c.call("GetFileLocationsByID", tachyon.GetFileLocationsArg{FileID: id}, &reply)
	return reply.Locations, err
}

func (c *MasterClient) GetFileLocationsByPath(path tachyon.Path) ([]tachyon.NetAddress, error) {
	var reply tachyon.GetFileLocationsReply
	err := c.call("GetFileLocationsByPath", tachyon.GetFileLocationsArg{Path: path}, &reply)
	return reply.Locations, err
}

func (c *MasterClient) ListFiles(path tachyon.Path) ([]tachyon.FileID, error) {
	var reply tachyon.ListFilesReply
	err := c.call("ListFiles", tachyon.ListFilesArg{Path: path}, &reply)
	return reply.FileIDs, err
}

func (c *MasterClient) Ls(path tachyon.Path) ([]tachyon.ClientFileInfo, error) {
	var reply tachyon.LsReply
	err := c.call("Ls", tachyon.LsArg{Path: path}, &reply)
	return reply.Infos, err
}

func (c *MasterClient) ListStatus(path tachyon.Path) ([]tachyon.ClientFileInfo, error) {
	var reply tachyon.ListStatusReply
	err := c.call("ListStatus", tachyon.ListStatusArg{Path: path}, &reply)
	return reply.Infos, err
}

func (c *MasterClient) DeleteByID(id tachyon.FileID, recursive bool) (bool, error) {
	var reply tachyon.DeleteReply
	err := c.call("DeleteByID", tachyon.DeleteArg{FileID: id, Recursive: recursive}, &reply)
	return reply.Success, err
}

func (c *MasterClient) DeleteByPath(path tachyon.Path, recursive bool) (bool, error) {
	var reply tachyon.DeleteReply
	err := c.call("DeleteByPath", tachyon.DeleteArg{Path: path, Recursive: recursive}, &reply)
	return reply.Success, err
}

func (c *MasterClient) RenameFile(src, dst tachyon.Path) error {
	var reply tachyon.RenameFileReply
	return c.call("RenameFile", tachyon.RenameFileArg{SrcPath: src, DstPath: dst}, &reply)
}

func (c *MasterClient) UnpinFile(id tachyon.FileID) error {
	var reply tachyon.UnpinFileReply
	return c.call("UnpinFile", tachyon.UnpinFileArg{FileID: id}, &reply)
}

func (c *MasterClient) Mkdir(path tachyon.Path) (tachyon.FileID, error) {
	var reply tachyon.MkdirReply
	err := c.call("Mkdir", tachyon.MkdirArg{Path: path}, &reply)
	return reply.FolderID, err
}

func (c *MasterClient) OutOfMemoryForPinFile(id tachyon.FileID) error {
	var reply tachyon.OutOfMemoryForPinFileReply
	return c.call("OutOfMemoryForPinFile", tachyon.OutOfMemoryForPinFileArg{FileID: id}, &reply)
}

func (c *MasterClient) CreateRawTable(path tachyon.Path, columns int, metadata []byte) (tachyon.FileID, error) {
	var reply tachyon.CreateRawTableReply
	err := c.call("CreateRawTable", tachyon.CreateRawTableArg{Path: path, Columns: columns, Metadata: metadata}, &reply)
	return reply.TableID, err
}

func (c *MasterClient) GetRawTableID(path tachyon.Path) (tachyon.FileID, error) {
	var reply tachyon.GetRawTableIDReply
	err := c.call("GetRawTableID", tachyon.GetRawTableIDArg{Path: path}, &reply)
	return reply.TableID, err
}

func (c *MasterClient) GetClientRawTableInfoByID(id tachyon.FileID) (tachyon.ClientRawTableInfo, error) {
	var reply tachyon.GetClientRawTableInfoReply
	err := c.call("GetClientRawTableInfoByID", tachyon.GetClientRawTableInfoArg{TableID: id}, &reply)
	return reply.Info, err
}

func (c *MasterClient) GetClientRawTableInfoByPath(path tachyon.Path) (tachyon.ClientRawTableInfo, error) {
	var reply tachyon.GetClientRawTableInfoReply
	err := c.call("GetClientRawTableInfoByPath", tachyon.GetClientRawTableInfoArg{Path: path}, &reply)
	return reply.Info, err
}

func (c *MasterClient) UpdateRawTableMetadata(id tachyon.FileID, metadata []byte) error {
	var reply tachyon.UpdateRawTableMetadataReply
	return c.call("UpdateRawTableMetadata", tachyon.UpdateRawTableMetadataArg{TableID: id, Metadata: metadata}, &reply)
}

func (c *MasterClient) GetNumberOfFiles(path tachyon.Path) (int, error) {
	var reply tachyon.GetNumberOfFilesReply
	err := c.call("GetNumberOfFiles", tachyon.GetNumberOfFilesArg{Path: path}, &reply)
	return reply.Count, err
}

func (c *MasterClient) GetUnderfsAddress() (string, error) {
	var reply tachyon.GetUnderfsAddressReply
	err := c.call("GetUnderfsAddress", struct{}{}, &reply)
	return reply.Address, err
}

func (c *MasterClient) GetWorkersInfo() ([]tachyon.ClientWorkerInfo, error) {
	var reply tachyon.GetWorkersInfoReply
	err := c.call("GetWorkersInfo", struct{}{}, &reply)
	return reply.Infos, err
}

// WorkerClient talks to one worker's WorkerService, for the
// space/lock/temp-folder calls a reader or writer issues directly
// against the worker holding its data, grounded on the teacher's
// LeaseBuffer pattern of caching short-lived per-file state client-side
// instead of round-tripping the master for every access: here it caches
// the worker's GetDataFolder result so a session doing many accesses to
// the same worker does not re-resolve it every time.
type WorkerClient struct {
	addr       tachyon.NetAddress
	dataFolder *cachedDataFolder
}

func NewWorkerClient(addr tachyon.NetAddress) *WorkerClient {
	return &WorkerClient{addr: addr, dataFolder: &cachedDataFolder{}}
}

func (c *WorkerClient) call(rpcname string, args, reply interface{}) error {
	return rpcutil.Call(c.addr, "WorkerService."+rpcname, args, reply)
}

func (c *WorkerClient) AccessFile(id tachyon.FileID) error {
	var reply tachyon.AccessFileReply
	return c.call("AccessFile", tachyon.AccessFileArg{FileID: id}, &reply)
}

func (c *WorkerClient) CacheFile(userID tachyon.UserID, id tachyon.FileID) error {
	var reply tachyon.CacheFileReply
	return c.call("CacheFile", tachyon.CacheFileArg{UserID: userID, FileID: id}, &reply)
}

func (c *WorkerClient) WorkerAddCheckpoint(userID tachyon.UserID, id tachyon.FileID) error {
	var reply tachyon.WorkerAddCheckpointReply
	return c.call("WorkerAddCheckpoint", tachyon.WorkerAddCheckpointArg{UserID: userID, FileID: id}, &reply)
}

// GetDataFolder is cached client-side: the worker's data folder never
// changes for the lifetime of a WorkerClient.
func (c *WorkerClient) GetDataFolder() (string, error) {
	if p, ok := c.dataFolder.get(); ok {
		return p, nil
	}
	var reply tachyon.GetDataFolderReply
	if err := c.call("GetDataFolder", struct{}{}, &reply); err != nil {
		return "", err
	}
	c.dataFolder.set(reply.Path)
	return reply.Path, nil
}

func (c *WorkerClient) GetUserTempFolder(userID tachyon.UserID) (string, error) {
	var reply tachyon.GetUserTempFolderReply
	err := c.call("GetUserTempFolder", tachyon.GetUserTempFolderArg{UserID: userID}, &reply)
	return reply.Path, err
}

func (c *WorkerClient) GetUserUnderfsTempFolder(userID tachyon.UserID) (string, error) {
	var reply tachyon.GetUserUnderfsTempFolderReply
	err := c.call("GetUserUnderfsTempFolder", tachyon.GetUserUnderfsTempFolderArg{UserID: userID}, &reply)
	return reply.Path, err
}

func (c *WorkerClient) LockFile(id tachyon.FileID, userID tachyon.UserID) error {
	var reply tachyon.LockFileReply
	return c.call("LockFile", tachyon.LockFileArg{FileID: id, UserID: userID}, &reply)
}

func (c *WorkerClient) UnlockFile(id tachyon.FileID, userID tachyon.UserID) error {
	var reply tachyon.UnlockFileReply
	return c.call("UnlockFile", tachyon.UnlockFileArg{FileID: id, UserID: userID}, &reply)
}

func (c *WorkerClient) ReturnSpace(userID tachyon.UserID, bytes int64) error {
	var reply tachyon.ReturnSpaceReply
	return c.call("ReturnSpace", tachyon.ReturnSpaceArg{UserID: userID, Bytes: bytes}, &reply)
}

func (c *WorkerClient) RequestSpace(userID tachyon.UserID, fileID tachyon.FileID, bytes int64) (bool, error) {
	var reply tachyon.RequestSpaceReply
	err := c.call("RequestSpace", tachyon.RequestSpaceArg{UserID: userID, FileID: fileID, Bytes: bytes}, &reply)
	return reply.Success, err
}

func (c *WorkerClient) UserHeartbeat(userID tachyon.UserID) error {
	var reply tachyon.UserHeartbeatReply
	return c.call("UserHeartbeat", tachyon.UserHeartbeatArg{UserID: userID}, &reply)
}

// cachedDataFolder is a one-shot memoization cell, the minimal
// generalization of LeaseBuffer's expiring cache to a value that never
// needs to expire.
type cachedDataFolder struct {
	path   string
	loaded bool
}

func (c *cachedDataFolder) get() (string, bool) { return c.path, c.loaded }

func (c *cachedDataFolder) set(path string) {
	c.path = path
	c.loaded = true
}

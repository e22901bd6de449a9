package tachyon

// Argument/reply pairs for every RPC named in the method contracts.
// Shaped the way the teacher's rpc_structs.go pairs one Arg/Reply type
// per RPC method instead of using variadic or map-based payloads.

// ---- MasterService: worker-facing ----

type RegisterWorkerArg struct {
	Address      NetAddress
	TotalBytes   int64
	UsedBytes    int64
	CurrentFiles []FileID
}
type RegisterWorkerReply struct {
	Value int64 // EncodeRegisterResponse(workerID, masterStartTimeMs)
}

type HeartbeatArg struct {
	WorkerID     WorkerID
	UsedBytes    int64
	RemovedFiles []FileID
}
type HeartbeatReply struct {
	Command Command
}

type WorkerCacheFileArg struct {
	WorkerID       WorkerID
	WorkerUsedByte int64
	FileID         FileID
	FileSizeBytes  int64
}
type WorkerCacheFileReply struct{}

type GetPinIDListReply struct {
	IDs []FileID
}

type AddCheckpointArg struct {
	WorkerID       WorkerID
	FileID         FileID
	FileSizeBytes  int64
	CheckpointPath string
}
type AddCheckpointReply struct {
	Success bool
}

// ---- MasterService: client/user-facing ----

type CreateFileArg struct {
	Path Path
}
type CreateFileReply struct {
	FileID FileID
}

type GetFileIDArg struct {
	Path Path
}
type GetFileIDReply struct {
	FileID FileID
}

type GetUserIDReply struct {
	UserID UserID
}

type GetWorkerArg struct {
	Random bool
	Host   string
}
type GetWorkerReply struct {
	Address NetAddress
}

type GetClientFileInfoArg struct {
	FileID FileID
	Path   Path
}
type GetClientFileInfoReply struct {
	Info ClientFileInfo
}

type GetFileLocationsArg struct {
	FileID FileID
	Path   Path
}
type GetFileLocationsReply struct {
	Locations []NetAddress
}

type ListFilesArg struct {
	Path Path
}
type ListFilesReply struct {
	FileIDs []FileID
}

type LsArg struct {
	Path Path
}
type LsReply struct {
	Infos []ClientFileInfo
}

type DeleteArg struct {
	FileID    FileID
	Path      Path
	Recursive bool
}
type DeleteReply struct {
	Success bool
}

type RenameFileArg struct {
	SrcPath Path
	DstPath Path
}
type RenameFileReply struct{}

type UnpinFileArg struct {
	FileID FileID
}
type UnpinFileReply struct{}

type MkdirArg struct {
	Path Path
}
type MkdirReply struct {
	FolderID FileID
}

type OutOfMemoryForPinFileArg struct {
	FileID FileID
}
type OutOfMemoryForPinFileReply struct{}

type CreateRawTableArg struct {
	Path     Path
	Columns  int
	Metadata []byte
}
type CreateRawTableReply struct {
	TableID FileID
}

type GetRawTableIDArg struct {
	Path Path
}
type GetRawTableIDReply struct {
	TableID FileID
}

type GetClientRawTableInfoArg struct {
	TableID FileID
	Path    Path
}
type GetClientRawTableInfoReply struct {
	Info ClientRawTableInfo
}

type UpdateRawTableMetadataArg struct {
	TableID  FileID
	Metadata []byte
}
type UpdateRawTableMetadataReply struct{}

type GetNumberOfFilesArg struct {
	Path Path
}
type GetNumberOfFilesReply struct {
	Count int
}

type GetUnderfsAddressReply struct {
	Address string
}

type GetWorkersInfoReply struct {
	Infos []ClientWorkerInfo
}

type ListStatusArg struct {
	Path Path
}
type ListStatusReply struct {
	Infos []ClientFileInfo
}

// ---- WorkerService ----

type AccessFileArg struct {
	FileID FileID
}
type AccessFileReply struct{}

type WorkerAddCheckpointArg struct {
	UserID UserID
	FileID FileID
}
type WorkerAddCheckpointReply struct{}

type CacheFileArg struct {
	UserID UserID
	FileID FileID
}
type CacheFileReply struct{}

type GetDataFolderReply struct {
	Path string
}

type GetUserTempFolderArg struct {
	UserID UserID
}
type GetUserTempFolderReply struct {
	Path string
}

type GetUserUnderfsTempFolderArg struct {
	UserID UserID
}
type GetUserUnderfsTempFolderReply struct {
	Path string
}

type LockFileArg struct {
	FileID FileID
	UserID UserID
}
type LockFileReply struct{}

type UnlockFileArg struct {
	FileID FileID
	UserID UserID
}
type UnlockFileReply struct{}

type ReturnSpaceArg struct {
	UserID UserID
	Bytes  int64
}
type ReturnSpaceReply struct{}

type RequestSpaceArg struct {
	UserID UserID
	FileID FileID
	Bytes  int64
}
type RequestSpaceReply struct {
	Success bool
}

type UserHeartbeatArg struct {
	UserID UserID
}
type UserHeartbeatReply struct{}

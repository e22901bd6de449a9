package tachyon

// Kind is the closed set of failure categories an RPC boundary may
// surface, per the error taxonomy of the wire contract. Callers branch
// on Kind, never on the error string.
type Kind int

const (
	UnknownError Kind = iota
	FileAlreadyExist
	FileDoesNotExist
	InvalidPath
	SuspectedFileSize
	TableColumn
	TableDoesNotExist
	NoLocalWorker
	OutOfMemoryForPinFile
	FailedToCheckpoint
)

func (k Kind) String() string {
	switch k {
	case FileAlreadyExist:
		return "FileAlreadyExist"
	case FileDoesNotExist:
		return "FileDoesNotExist"
	case InvalidPath:
		return "InvalidPath"
	case SuspectedFileSize:
		return "SuspectedFileSize"
	case TableColumn:
		return "TableColumn"
	case TableDoesNotExist:
		return "TableDoesNotExist"
	case NoLocalWorker:
		return "NoLocalWorker"
	case OutOfMemoryForPinFile:
		return "OutOfMemoryForPinFile"
	case FailedToCheckpoint:
		return "FailedToCheckpoint"
	default:
		return "UnknownError"
	}
}

// Error is the typed failure raised at every RPC boundary. It is
// generalized from the teacher's gfs.Error{Code, Err}.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

// NewError constructs an *Error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the Kind of err if it is a *Error, or UnknownError.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return UnknownError
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

package master

import (
	"strconv"
	"strings"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// inode is the authoritative record for one file or directory. It is
// exclusively owned by inodeStore; every mutation to it happens while
// the caller (masterService) holds the global mutator lock.
type inode struct {
	id             tachyon.FileID
	path           tachyon.Path
	name           string
	isFolder       bool
	sizeBytes      int64
	creationTimeMs int64
	ready          bool
	pin            bool
	cache          bool
	checkpointPath string
}

// rawTable is the directory-annotation overlay keyed by the folder's
// file-id, per spec.md's RawTable data model.
type rawTable struct {
	columns  int
	metadata []byte
}

// maxRawTableColumns bounds RawTable.Columns.
const maxRawTableColumns = 1024

// inodeStore is the authoritative table of files and directories, keyed
// by dense file-id, composing a pathTrie on every mutation. Grounded on
// chunkManager's id-counter-plus-record-map shape, generalized from
// per-chunk records to per-file records.
type inodeStore struct {
	trie      *pathTrie
	files     map[tachyon.FileID]*inode
	rawTables map[tachyon.FileID]*rawTable
	nextID    tachyon.FileID
}

func newInodeStore() *inodeStore {
	root := &inode{id: 0, path: "/", name: "", isFolder: true}
	s := &inodeStore{
		trie:      newPathTrie(),
		files:     make(map[tachyon.FileID]*inode),
		rawTables: make(map[tachyon.FileID]*rawTable),
		nextID:    1,
	}
	s.files[0] = root
	return s
}

func leafName(p tachyon.Path) string {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// allocID returns the next strictly increasing file-id.
func (s *inodeStore) allocID() tachyon.FileID {
	id := s.nextID
	s.nextID++
	return id
}

// ensureAncestors auto-creates any missing ancestor folders of path,
// returning an error only on a structural conflict (an intermediate
// component that exists but is not a folder).
func (s *inodeStore) ensureAncestors(path tachyon.Path, nowMs int64) error {
	parts, err := normalizePath(path)
	if err != nil {
		return err
	}
	cur := tachyon.Path("/")
	for _, name := range parts[:max0(len(parts)-1)] {
		if cur == "/" {
			cur = tachyon.Path("/" + name)
		} else {
			cur = cur + "/" + tachyon.Path(name)
		}
		if _, ok := s.trie.lookup(cur); ok {
			continue
		}
		if _, err := s.mkdir(cur, nowMs); err != nil {
			return err
		}
	}
	return nil
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// createFile creates a non-folder, not-ready inode, auto-creating
// missing ancestor folders.
func (s *inodeStore) createFile(path tachyon.Path, nowMs int64) (tachyon.FileID, error) {
	if err := s.ensureAncestors(path, nowMs); err != nil {
		return tachyon.NoFileID, err
	}
	id := s.allocID()
	if err := s.trie.insert(path, id, false); err != nil {
		return tachyon.NoFileID, err
	}
	s.files[id] = &inode{
		id:             id,
		path:           path,
		name:           leafName(path),
		isFolder:       false,
		creationTimeMs: nowMs,
	}
	return id, nil
}

// mkdir creates a folder inode at path. It is not idempotent: it fails
// FileAlreadyExist if path already exists as any node.
func (s *inodeStore) mkdir(path tachyon.Path, nowMs int64) (tachyon.FileID, error) {
	if err := s.ensureAncestors(path, nowMs); err != nil {
		return tachyon.NoFileID, err
	}
	id := s.allocID()
	if err := s.trie.insert(path, id, true); err != nil {
		return tachyon.NoFileID, err
	}
	s.files[id] = &inode{
		id:             id,
		path:           path,
		name:           leafName(path),
		isFolder:       true,
		creationTimeMs: nowMs,
	}
	return id, nil
}

// createRawTable creates a folder at path plus one child folder per
// column, named "0".."columns-1", and records the (columns, metadata)
// side table keyed by the top folder's id.
func (s *inodeStore) createRawTable(path tachyon.Path, columns int, metadata []byte, nowMs int64) (tachyon.FileID, error) {
	if columns < 1 || columns > maxRawTableColumns {
		return tachyon.NoFileID, tachyon.NewError(tachyon.TableColumn, "columns out of range")
	}
	id, err := s.mkdir(path, nowMs)
	if err != nil {
		return tachyon.NoFileID, err
	}
	for i := 0; i < columns; i++ {
		colPath := tachyon.Path(string(path) + "/" + strconv.Itoa(i))
		if _, err := s.mkdir(colPath, nowMs); err != nil {
			return tachyon.NoFileID, err
		}
	}
	s.rawTables[id] = &rawTable{columns: columns, metadata: metadata}
	return id, nil
}

func (s *inodeStore) updateRawTableMetadata(tableID tachyon.FileID, metadata []byte) error {
	rt, ok := s.rawTables[tableID]
	if !ok {
		return tachyon.NewError(tachyon.TableDoesNotExist, "")
	}
	rt.metadata = metadata
	return nil
}

// rename moves src to dst in the trie and updates the stored path and
// name on the inode; the file-id is stable.
func (s *inodeStore) rename(src, dst tachyon.Path) error {
	id, ok := s.trie.lookup(src)
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, string(src))
	}
	if err := s.trie.rename(src, dst); err != nil {
		return err
	}
	n := s.files[id]
	n.path = dst
	n.name = leafName(dst)
	return nil
}

// delete removes the inode (and, if recursive, its subtree) and returns
// the set of deleted file-ids.
func (s *inodeStore) delete(id tachyon.FileID, recursive bool) ([]tachyon.FileID, error) {
	n, ok := s.files[id]
	if !ok {
		return nil, tachyon.NewError(tachyon.FileDoesNotExist, "")
	}

	var deleted []tachyon.FileID
	if n.isFolder {
		kids, err := s.trie.children(n.path)
		if err != nil {
			return nil, err
		}
		if len(kids) > 0 && !recursive {
			return nil, tachyon.NewError(tachyon.InvalidPath, string(n.path)+" is not empty")
		}
		var collect func(tachyon.Path) error
		collect = func(p tachyon.Path) error {
			cid, ok := s.trie.lookup(p)
			if !ok {
				return nil
			}
			cn := s.files[cid]
			if cn.isFolder {
				ck, err := s.trie.children(p)
				if err != nil {
					return err
				}
				for _, c := range ck {
					childPath := tachyon.Path(string(p) + "/" + c.Name)
					if err := collect(childPath); err != nil {
						return err
					}
				}
			}
			deleted = append(deleted, cid)
			return nil
		}
		if err := collect(n.path); err != nil {
			return nil, err
		}
	} else {
		deleted = append(deleted, id)
	}

	if err := s.trie.remove(n.path, recursive); err != nil {
		return nil, err
	}
	for _, d := range deleted {
		delete(s.files, d)
		delete(s.rawTables, d)
	}
	return deleted, nil
}

// addCheckpoint sets checkpointPath on the inode and, if size was not
// yet committed, commits it and marks the inode ready.
func (s *inodeStore) addCheckpoint(id tachyon.FileID, sizeBytes int64, path string) error {
	n, ok := s.files[id]
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	if n.ready && n.sizeBytes != sizeBytes {
		return tachyon.NewError(tachyon.SuspectedFileSize, "")
	}
	n.checkpointPath = path
	if !n.ready {
		n.sizeBytes = sizeBytes
		n.ready = true
	}
	return nil
}

// commitCachedSize is the analog of addCheckpoint for a worker_cacheFile
// notification: a worker has finished caching fileID with the given
// final on-disk size.
func (s *inodeStore) commitCachedSize(id tachyon.FileID, sizeBytes int64) error {
	n, ok := s.files[id]
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, "")
	}
	if n.ready && n.sizeBytes != sizeBytes {
		return tachyon.NewError(tachyon.SuspectedFileSize, "")
	}
	if !n.ready {
		n.sizeBytes = sizeBytes
		n.ready = true
	}
	return nil
}

func (s *inodeStore) getFileID(path tachyon.Path) tachyon.FileID {
	id, ok := s.trie.lookup(path)
	if !ok {
		return tachyon.NoFileID
	}
	return id
}

func (s *inodeStore) getRawTableID(path tachyon.Path) tachyon.FileID {
	id, ok := s.trie.lookup(path)
	if !ok {
		return tachyon.NoRawTableID
	}
	if _, ok := s.rawTables[id]; !ok {
		return tachyon.NoRawTableID
	}
	return id
}

func (s *inodeStore) file(id tachyon.FileID) (*inode, bool) {
	n, ok := s.files[id]
	return n, ok
}

func (s *inodeStore) fileByPath(path tachyon.Path) (*inode, bool) {
	id, ok := s.trie.lookup(path)
	if !ok {
		return nil, false
	}
	return s.file(id)
}

// list returns the direct children's file-ids of path (or just path's
// own id if it names a file).
func (s *inodeStore) list(path tachyon.Path) ([]tachyon.FileID, error) {
	n, ok := s.fileByPath(path)
	if !ok {
		return nil, tachyon.NewError(tachyon.FileDoesNotExist, string(path))
	}
	if !n.isFolder {
		return []tachyon.FileID{n.id}, nil
	}
	kids, err := s.trie.children(path)
	if err != nil {
		return nil, err
	}
	out := make([]tachyon.FileID, len(kids))
	for i, k := range kids {
		out[i] = k.ID
	}
	return out, nil
}

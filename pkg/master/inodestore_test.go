package master

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

func TestCreateFileAutoCreatesAncestors(t *testing.T) {
	s := newInodeStore()
	id, err := s.createFile("/a/b/c.txt", 1000)
	require.NoError(t, err)
	assert.NotEqual(t, tachyon.NoFileID, id)

	dirID := s.getFileID("/a/b")
	require.NotEqual(t, tachyon.NoFileID, dirID)
	n, ok := s.file(dirID)
	require.True(t, ok)
	assert.True(t, n.isFolder)
}

func TestAddCheckpointCommitsSizeOnce(t *testing.T) {
	s := newInodeStore()
	id, err := s.createFile("/f.txt", 1000)
	require.NoError(t, err)

	require.NoError(t, s.addCheckpoint(id, 100, "/ufs/f.txt"))
	n, _ := s.file(id)
	assert.True(t, n.ready)
	assert.Equal(t, int64(100), n.sizeBytes)

	err = s.addCheckpoint(id, 200, "/ufs/f.txt")
	assert.True(t, tachyon.Is(err, tachyon.SuspectedFileSize))
}

func TestCommitCachedSizeAgreesWithCheckpoint(t *testing.T) {
	s := newInodeStore()
	id, err := s.createFile("/f.txt", 1000)
	require.NoError(t, err)

	require.NoError(t, s.commitCachedSize(id, 50))
	require.NoError(t, s.commitCachedSize(id, 50))
	err = s.commitCachedSize(id, 51)
	assert.True(t, tachyon.Is(err, tachyon.SuspectedFileSize))
}

func TestCreateRawTableCreatesColumnFolders(t *testing.T) {
	s := newInodeStore()
	id, err := s.createRawTable("/tables/t1", 3, []byte("meta"), 1000)
	require.NoError(t, err)

	kids, err := s.trie.children("/tables/t1")
	require.NoError(t, err)
	require.Len(t, kids, 3)
	assert.Equal(t, "0", kids[0].Name)
	assert.Equal(t, "2", kids[2].Name)

	rt, ok := s.rawTables[id]
	require.True(t, ok)
	assert.Equal(t, 3, rt.columns)
}

func TestCreateRawTableRejectsOutOfRangeColumns(t *testing.T) {
	s := newInodeStore()
	_, err := s.createRawTable("/t", 0, nil, 1000)
	assert.True(t, tachyon.Is(err, tachyon.TableColumn))

	_, err = s.createRawTable("/t2", maxRawTableColumns+1, nil, 1000)
	assert.True(t, tachyon.Is(err, tachyon.TableColumn))
}

func TestDeleteRecursiveRemovesSubtree(t *testing.T) {
	s := newInodeStore()
	_, err := s.createFile("/dir/a.txt", 1000)
	require.NoError(t, err)
	_, err = s.createFile("/dir/b.txt", 1000)
	require.NoError(t, err)

	dirID := s.getFileID("/dir")
	deleted, err := s.delete(dirID, true)
	require.NoError(t, err)
	assert.Len(t, deleted, 3) // dir + a.txt + b.txt

	assert.Equal(t, tachyon.NoFileID, s.getFileID("/dir"))
	assert.Equal(t, tachyon.NoFileID, s.getFileID("/dir/a.txt"))
}

func TestDeleteNonEmptyWithoutRecursiveFails(t *testing.T) {
	s := newInodeStore()
	_, err := s.createFile("/dir/a.txt", 1000)
	require.NoError(t, err)

	dirID := s.getFileID("/dir")
	_, err = s.delete(dirID, false)
	assert.True(t, tachyon.Is(err, tachyon.InvalidPath))
}

func TestRenamePreservesFileID(t *testing.T) {
	s := newInodeStore()
	id, err := s.createFile("/a.txt", 1000)
	require.NoError(t, err)

	require.NoError(t, s.rename("/a.txt", "/b.txt"))
	assert.Equal(t, id, s.getFileID("/b.txt"))
	assert.Equal(t, tachyon.NoFileID, s.getFileID("/a.txt"))

	n, _ := s.file(id)
	assert.Equal(t, tachyon.Path("/b.txt"), n.path)
	assert.Equal(t, "b.txt", n.name)
}

func TestListReturnsOwnIDForAFile(t *testing.T) {
	s := newInodeStore()
	id, err := s.createFile("/f.txt", 1000)
	require.NoError(t, err)

	ids, err := s.list("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, []tachyon.FileID{id}, ids)
}

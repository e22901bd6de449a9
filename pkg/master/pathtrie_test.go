package master

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

func TestPathTrieInsertLookup(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/a", 1, true))
	require.NoError(t, trie.insert("/a/b.txt", 2, false))

	id, ok := trie.lookup("/a/b.txt")
	require.True(t, ok)
	assert.EqualValues(t, 2, id)

	_, ok = trie.lookup("/a/missing")
	assert.False(t, ok)
}

func TestPathTrieInsertRejectsNonFolderIntermediate(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/a", 1, false))
	err := trie.insert("/a/b", 2, false)
	assert.True(t, tachyon.Is(err, tachyon.InvalidPath))
}

func TestPathTrieInsertRejectsDuplicate(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/a", 1, true))
	err := trie.insert("/a", 2, true)
	assert.True(t, tachyon.Is(err, tachyon.FileAlreadyExist))
}

func TestPathTrieChildrenSortedByName(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/dir", 1, true))
	require.NoError(t, trie.insert("/dir/z.txt", 2, false))
	require.NoError(t, trie.insert("/dir/a.txt", 3, false))

	kids, err := trie.children("/dir")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "a.txt", kids[0].Name)
	assert.Equal(t, "z.txt", kids[1].Name)
}

func TestPathTrieRemoveNonEmptyRequiresRecursive(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/dir", 1, true))
	require.NoError(t, trie.insert("/dir/f.txt", 2, false))

	err := trie.remove("/dir", false)
	assert.True(t, tachyon.Is(err, tachyon.InvalidPath))

	require.NoError(t, trie.remove("/dir", true))
	_, ok := trie.lookup("/dir")
	assert.False(t, ok)
}

func TestPathTrieRenameRejectsDestinationUnderSource(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/dir", 1, true))
	require.NoError(t, trie.insert("/dir/f.txt", 2, false))

	err := trie.rename("/dir", "/dir/sub")
	assert.True(t, tachyon.Is(err, tachyon.InvalidPath))
}

func TestPathTrieRename(t *testing.T) {
	trie := newPathTrie()
	require.NoError(t, trie.insert("/a", 1, true))
	require.NoError(t, trie.insert("/a/f.txt", 2, false))
	require.NoError(t, trie.insert("/b", 3, true))

	require.NoError(t, trie.rename("/a/f.txt", "/b/f.txt"))

	_, ok := trie.lookup("/a/f.txt")
	assert.False(t, ok)
	id, ok := trie.lookup("/b/f.txt")
	require.True(t, ok)
	assert.EqualValues(t, 2, id)
}

package nstrie

import (
	"testing"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFolderRejectsDuplicate(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFolder("a", "alice"))

	err := idx.AddFolder("a", "bob")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrConflict, dferrors.CodeOf(err))
}

func TestMoveFolderCascadesFileFolders(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFolder("a", "alice"))
	require.NoError(t, idx.AddFolder("a/b", "alice"))

	require.NoError(t, idx.Add("f1.txt", "alice", 0))
	_, err := idx.SetFileFolder("f1.txt", "a", "alice")
	require.NoError(t, err)

	require.NoError(t, idx.Add("f2.txt", "alice", 1))
	_, err = idx.SetFileFolder("f2.txt", "a/b", "alice")
	require.NoError(t, err)

	updates, err := idx.MoveFolder("a", "c", "alice")
	require.NoError(t, err)
	require.Len(t, updates, 2)

	rec1, err := idx.GetDetails("f1.txt")
	require.NoError(t, err)
	assert.Equal(t, "c", rec1.Folder)

	rec2, err := idx.GetDetails("f2.txt")
	require.NoError(t, err)
	assert.Equal(t, "c/b", rec2.Folder)

	assert.True(t, idx.FolderExists("c"))
	assert.True(t, idx.FolderExists("c/b"))
	assert.False(t, idx.FolderExists("a"))
	assert.False(t, idx.FolderExists("a/b"))
}

func TestMoveFolderRequiresOwnership(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFolder("a", "alice"))

	_, err := idx.MoveFolder("a", "c", "bob")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))
}

func TestMoveFolderRefusesExistingDest(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFolder("a", "alice"))
	require.NoError(t, idx.AddFolder("c", "alice"))

	_, err := idx.MoveFolder("a", "c", "alice")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrConflict, dferrors.CodeOf(err))
}

func TestMoveFolderDoesNotMatchUnrelatedPrefix(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFolder("a", "alice"))
	require.NoError(t, idx.Add("f1.txt", "alice", 0))
	_, err := idx.SetFileFolder("f1.txt", "ab", "alice")
	require.NoError(t, err)

	updates, err := idx.MoveFolder("a", "z", "alice")
	require.NoError(t, err)
	assert.Empty(t, updates)

	rec, err := idx.GetDetails("f1.txt")
	require.NoError(t, err)
	assert.Equal(t, "ab", rec.Folder)
}

func TestViewFolderListsImmediateChildren(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFolder("a", "alice"))
	require.NoError(t, idx.AddFolder("a/b", "alice"))
	require.NoError(t, idx.AddFolder("a/b/c", "alice"))

	require.NoError(t, idx.Add("f1.txt", "alice", 0))
	_, err := idx.SetFileFolder("f1.txt", "a", "alice")
	require.NoError(t, err)

	require.NoError(t, idx.Add("f2.txt", "alice", 0))
	_, err = idx.SetFileFolder("f2.txt", "a/b", "alice")
	require.NoError(t, err)

	folders, files := idx.ViewFolder("a", "alice", false)
	assert.Equal(t, []string{"a/b"}, folders)
	require.Len(t, files, 1)
	assert.Equal(t, "f1.txt", files[0].Filename)
}

func TestSetFileFolderRequiresOwnership(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("f1.txt", "alice", 0))

	_, err := idx.SetFileFolder("f1.txt", "a", "bob")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))
}

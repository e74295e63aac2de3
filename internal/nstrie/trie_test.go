package nstrie

import (
	"testing"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFindDelete(t *testing.T) {
	idx := New()

	require.NoError(t, idx.Add("notes.txt", "alice", 0))

	ss, ok := idx.Find("notes.txt")
	require.True(t, ok)
	assert.Equal(t, 0, ss)

	err := idx.Add("notes.txt", "bob", 1)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrConflict, dferrors.CodeOf(err))

	_, err = idx.Delete("notes.txt", "bob")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))

	ssIndex, err := idx.Delete("notes.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, ssIndex)

	_, ok = idx.Find("notes.txt")
	assert.False(t, ok)
}

func TestCheckPermissionDistinguishesNotFoundAndDenied(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))

	err := idx.CheckPermission("missing.txt", "bob", wire.PermissionRead)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrNotFound, dferrors.CodeOf(err))

	err = idx.CheckPermission("a.txt", "bob", wire.PermissionRead)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))

	require.NoError(t, idx.Grant("a.txt", "alice", "bob", wire.PermissionRead))
	assert.NoError(t, idx.CheckPermission("a.txt", "bob", wire.PermissionRead))

	err = idx.CheckPermission("a.txt", "bob", wire.PermissionWrite)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))
}

func TestGrantUpdatesInPlace(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))
	require.NoError(t, idx.Grant("a.txt", "alice", "bob", wire.PermissionRead))
	require.NoError(t, idx.Grant("a.txt", "alice", "bob", wire.PermissionWrite))

	rec, err := idx.GetDetails("a.txt")
	require.NoError(t, err)
	require.Len(t, rec.ACL, 1)
	assert.Equal(t, wire.PermissionWrite, rec.ACL[0].Permission)
}

func TestGrantOnlyOwner(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))

	err := idx.Grant("a.txt", "bob", "carol", wire.PermissionRead)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))
}

func TestACLCapped(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))

	for i := 0; i < MaxACLEntries; i++ {
		user := string(rune('b' + i))
		require.NoError(t, idx.Grant("a.txt", "alice", user, wire.PermissionRead))
	}

	err := idx.Grant("a.txt", "alice", "zzz", wire.PermissionRead)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrConflict, dferrors.CodeOf(err))
}

func TestRevoke(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))
	require.NoError(t, idx.Grant("a.txt", "alice", "bob", wire.PermissionRead))
	require.NoError(t, idx.Revoke("a.txt", "alice", "bob"))

	err := idx.CheckPermission("a.txt", "bob", wire.PermissionRead)
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrAccessDenied, dferrors.CodeOf(err))

	// Revoking again is a no-op, not an error.
	assert.NoError(t, idx.Revoke("a.txt", "alice", "bob"))
}

func TestRebuildAddAcceptsSameSSRejectsOther(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 3))

	err := idx.RebuildAdd(3, Record{Filename: "a.txt", Owner: "alice"})
	assert.NoError(t, err)

	err = idx.RebuildAdd(4, Record{Filename: "a.txt", Owner: "alice"})
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrConflict, dferrors.CodeOf(err))

	ss, ok := idx.Find("a.txt")
	require.True(t, ok)
	assert.Equal(t, 3, ss)
}

func TestPurgeBySS(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 1))
	require.NoError(t, idx.Add("b.txt", "alice", 2))
	require.NoError(t, idx.Add("c.txt", "bob", 1))

	removed := idx.PurgeBySS(1)
	assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, removed)

	_, ok := idx.Find("a.txt")
	assert.False(t, ok)
	_, ok = idx.Find("b.txt")
	assert.True(t, ok)
}

func TestListFiltersByOwnerOrACL(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))
	require.NoError(t, idx.Add("b.txt", "bob", 0))
	require.NoError(t, idx.Grant("b.txt", "bob", "alice", wire.PermissionRead))

	rows := idx.List("alice", false)
	var names []string
	for _, r := range rows {
		names = append(names, r.Filename)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	all := idx.List("carol", true)
	assert.Len(t, all, 2)

	nothing := idx.List("carol", false)
	assert.Empty(t, nothing)
}

func TestApplyRefresh(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add("a.txt", "alice", 0))

	err := idx.ApplyRefresh("a.txt", wire.MetadataRespPayload{
		WordCount: 12,
		CharCount: 80,
	})
	require.NoError(t, err)

	rec, err := idx.GetDetails("a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 12, rec.WordCount)
	assert.EqualValues(t, 80, rec.CharCount)
}

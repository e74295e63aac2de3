package ssmeta

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metadata.txt"))
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	rec := Record{
		Filename:       "notes.txt",
		SizeBytes:      42,
		WordCount:      7,
		CreatedAt:      now,
		ModifiedAt:     now,
		LastAccessedAt: now,
		Owner:          "alice",
		Folder:         "docs",
		ACL:            []wire.ACLEntry{{Username: "bob", Permission: wire.PermissionWrite}},
	}
	require.NoError(t, s.Put(rec))

	got, err := s.Get("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, rec.Owner, got.Owner)
	assert.Equal(t, rec.Folder, got.Folder)
	require.Len(t, got.ACL, 1)
	assert.Equal(t, "bob", got.ACL[0].Username)
	assert.Equal(t, wire.PermissionWrite, got.ACL[0].Permission)
}

func TestReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.txt")
	s, err := Open(path)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	require.NoError(t, s.Put(Record{Filename: "a.txt", Owner: "alice", CreatedAt: now, ModifiedAt: now, LastAccessedAt: now}))
	require.NoError(t, s.Put(Record{Filename: "b.txt", Owner: "bob", Folder: "x", CreatedAt: now, ModifiedAt: now, LastAccessedAt: now}))

	reopened, err := Open(path)
	require.NoError(t, err)

	all := reopened.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a.txt", all[0].Filename)
	assert.Equal(t, "b.txt", all[1].Filename)
	assert.Equal(t, "x", all[1].Folder)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metadata.txt"))
	require.NoError(t, err)

	_, err = s.Get("missing.txt")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrNotFound, dferrors.CodeOf(err))
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.txt")
	s, err := Open(path)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	require.NoError(t, s.Put(Record{Filename: "a.txt", Owner: "alice", CreatedAt: now, ModifiedAt: now, LastAccessedAt: now}))
	require.NoError(t, s.Delete("a.txt"))

	_, err = s.Get("a.txt")
	require.Error(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, reopened.All())
}

func TestMutateCreatesOrUpdates(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metadata.txt"))
	require.NoError(t, err)

	require.NoError(t, s.Mutate("a.txt", func(r *Record) {
		r.Owner = "alice"
	}))
	require.NoError(t, s.Mutate("a.txt", func(r *Record) {
		r.Folder = "docs"
	}))

	got, err := s.Get("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "docs", got.Folder)
}

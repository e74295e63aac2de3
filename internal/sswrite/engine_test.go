package sswrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dfs/internal/ssfs"
	"github.com/marmos91/dfs/internal/sslock"
	"github.com/marmos91/dfs/internal/ssmeta"
	"github.com/marmos91/dfs/internal/ssundo"
)

func newTestEngine(t *testing.T) (*Engine, ssfs.Layout) {
	t.Helper()
	base := t.TempDir()
	layout := ssfs.New(base)
	meta, err := ssmeta.Open(layout.MetadataFile())
	require.NoError(t, err)
	undo := ssundo.New(layout)
	locks := sslock.New()
	return New(layout, locks, meta, undo), layout
}

func writeLive(t *testing.T, layout ssfs.Layout, filename, content string) {
	t.Helper()
	path := layout.LiveFile(filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readLive(t *testing.T, layout ssfs.Layout, filename string) string {
	t.Helper()
	b, err := os.ReadFile(layout.LiveFile(filename))
	require.NoError(t, err)
	return string(b)
}

// S2: concurrent sentence writers, either commit order, same final result.
func TestEngineConcurrentSentenceWriters(t *testing.T) {
	eng, layout := newTestEngine(t)
	writeLive(t, layout, "doc", "Hello world. Goodbye world.")

	require.NoError(t, eng.Begin("doc", 1, "connA"))
	require.NoError(t, eng.Begin("doc", 2, "connB"))

	require.NoError(t, eng.Insert("doc", 1, "connA", 3, "cruel"))
	require.NoError(t, eng.Insert("doc", 2, "connB", 1, "Farewell"))

	require.NoError(t, eng.Commit("doc", 1, "connA", "alice"))
	require.NoError(t, eng.Commit("doc", 2, "connB", "bob"))

	require.Equal(t, "Hello world cruel. Farewell Goodbye world.", readLive(t, layout, "doc"))
}

func TestEngineConcurrentSentenceWritersReverseCommitOrder(t *testing.T) {
	eng, layout := newTestEngine(t)
	writeLive(t, layout, "doc", "Hello world. Goodbye world.")

	require.NoError(t, eng.Begin("doc", 1, "connA"))
	require.NoError(t, eng.Begin("doc", 2, "connB"))
	require.NoError(t, eng.Insert("doc", 1, "connA", 3, "cruel"))
	require.NoError(t, eng.Insert("doc", 2, "connB", 1, "Farewell"))

	require.NoError(t, eng.Commit("doc", 2, "connB", "bob"))
	require.NoError(t, eng.Commit("doc", 1, "connA", "alice"))

	require.Equal(t, "Hello world cruel. Farewell Goodbye world.", readLive(t, layout, "doc"))
}

func TestEngineLockConflict(t *testing.T) {
	eng, _ := newTestEngine(t)
	require.NoError(t, eng.Begin("doc", 1, "connA"))
	err := eng.Begin("doc", 1, "connC")
	require.Error(t, err)
}

// S3: insert at N+1 appends before the terminator.
func TestEngineInsertAppendPosition(t *testing.T) {
	eng, layout := newTestEngine(t)
	writeLive(t, layout, "a", "one. two.")

	require.NoError(t, eng.Begin("a", 1, "conn1"))
	require.NoError(t, eng.Insert("a", 1, "conn1", 2, "big"))
	require.NoError(t, eng.Commit("a", 1, "conn1", "alice"))

	require.Equal(t, "one big. two.", readLive(t, layout, "a"))
}

func TestEngineInsertPrependPosition(t *testing.T) {
	eng, layout := newTestEngine(t)
	writeLive(t, layout, "a", "one two.")

	require.NoError(t, eng.Begin("a", 1, "conn1"))
	require.NoError(t, eng.Insert("a", 1, "conn1", 1, "zero"))
	require.NoError(t, eng.Commit("a", 1, "conn1", "alice"))

	require.Equal(t, "zero one two.", readLive(t, layout, "a"))
}

func TestEngineEmptyFileHasOneEditableSentence(t *testing.T) {
	eng, layout := newTestEngine(t)
	require.NoError(t, eng.Begin("empty", 1, "conn1"))
	require.NoError(t, eng.Insert("empty", 1, "conn1", 1, "Hello."))
	require.NoError(t, eng.Commit("empty", 1, "conn1", "alice"))

	require.Equal(t, "Hello.", readLive(t, layout, "empty"))
}

func TestEngineCommitBeyondSentenceCountAppends(t *testing.T) {
	eng, layout := newTestEngine(t)
	writeLive(t, layout, "a", "one.")

	require.NoError(t, eng.Begin("a", 2, "conn1"))
	require.NoError(t, eng.Insert("a", 2, "conn1", 1, "two."))
	require.NoError(t, eng.Commit("a", 2, "conn1", "alice"))

	require.Equal(t, "one. two.", readLive(t, layout, "a"))
}

func TestEngineAbandonDiscardsSwap(t *testing.T) {
	eng, layout := newTestEngine(t)
	writeLive(t, layout, "a", "one. two.")

	require.NoError(t, eng.Begin("a", 1, "conn1"))
	require.NoError(t, eng.Insert("a", 1, "conn1", 2, "big"))
	eng.Abandon("a", 1, "conn1")

	require.NoError(t, eng.Begin("a", 1, "conn2"))
	require.Equal(t, "one. two.", readLive(t, layout, "a"))
}

package sslock

import (
	"testing"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireConflictFromDifferentConnection(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Acquire("doc", 1, "connA"))

	err := tbl.Acquire("doc", 1, "connB")
	require.Error(t, err)
	assert.Equal(t, dferrors.ErrConflict, dferrors.CodeOf(err))

	// Different sentence, same file: no conflict.
	assert.NoError(t, tbl.Acquire("doc", 2, "connB"))
}

func TestReleaseIsIdempotentAndOwnerScoped(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Acquire("doc", 1, "connA"))

	// connB releasing a lock it doesn't own is a no-op.
	tbl.Release("doc", 1, "connB")
	assert.Error(t, tbl.Acquire("doc", 1, "connC"))

	tbl.Release("doc", 1, "connA")
	tbl.Release("doc", 1, "connA") // idempotent
	assert.NoError(t, tbl.Acquire("doc", 1, "connC"))
}

func TestReleaseAllDropsOnlyThatConnectionsLocks(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Acquire("doc", 1, "connA"))
	require.NoError(t, tbl.Acquire("doc", 2, "connB"))

	tbl.ReleaseAll("connA")

	assert.NoError(t, tbl.Acquire("doc", 1, "connC"))
	assert.Error(t, tbl.Acquire("doc", 2, "connC"))
}

func TestAnyLockHeld(t *testing.T) {
	tbl := New()
	assert.False(t, tbl.AnyLockHeld("doc"))

	require.NoError(t, tbl.Acquire("doc", 2, "connA"))
	assert.True(t, tbl.AnyLockHeld("doc"))

	tbl.Release("doc", 2, "connA")
	assert.False(t, tbl.AnyLockHeld("doc"))
}

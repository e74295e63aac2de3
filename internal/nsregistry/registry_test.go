package nsregistry

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a
}

func TestRegisterAndGetByIndex(t *testing.T) {
	r := New(2, nil)

	idx, err := r.Register(pipeConn(t), "10.0.0.1", 9001)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	slot, ok := r.GetByIndex(idx)
	require.True(t, ok)
	ip, port := slot.PublicAddress()
	assert.Equal(t, "10.0.0.1", ip)
	assert.EqualValues(t, 9001, port)
}

func TestRegistryFullReturnsError(t *testing.T) {
	r := New(1, nil)
	_, err := r.Register(pipeConn(t), "10.0.0.1", 1)
	require.NoError(t, err)

	_, err = r.Register(pipeConn(t), "10.0.0.2", 2)
	assert.Error(t, err)
}

func TestGetForNewFileRoundRobin(t *testing.T) {
	r := New(3, nil)
	r.Register(pipeConn(t), "a", 1)
	r.Register(pipeConn(t), "b", 2)
	r.Register(pipeConn(t), "c", 3)

	var seen []int
	for i := 0; i < 6; i++ {
		idx, _, ok := r.GetForNewFile()
		require.True(t, ok)
		seen = append(seen, idx)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, seen)
}

func TestGetForNewFileSkipsInactiveSlots(t *testing.T) {
	r := New(3, func(int) {})
	r.Register(pipeConn(t), "a", 1)
	r.Register(pipeConn(t), "b", 2)
	r.Register(pipeConn(t), "c", 3)

	r.Remove(1)

	var seen []int
	for i := 0; i < 4; i++ {
		idx, _, ok := r.GetForNewFile()
		require.True(t, ok)
		seen = append(seen, idx)
	}
	assert.Equal(t, []int{0, 2, 0, 2}, seen)
}

func TestGetBySockAddress(t *testing.T) {
	r := New(2, nil)
	r.Register(pipeConn(t), "10.0.0.1", 9001)
	r.Register(pipeConn(t), "10.0.0.2", 9002)

	idx, ok := r.GetBySockAddress("10.0.0.2", 9002)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = r.GetBySockAddress("10.0.0.9", 1)
	assert.False(t, ok)
}

func TestRemoveInvokesPurgeAndIsIdempotent(t *testing.T) {
	purged := 0
	r := New(2, func(index int) { purged++ })
	r.Register(pipeConn(t), "a", 1)

	r.Remove(0)
	r.Remove(0)

	assert.Equal(t, 1, purged)
	_, ok := r.GetByIndex(0)
	assert.False(t, ok)
}

func TestTransactFailurePurgesSlot(t *testing.T) {
	purged := 0
	r := New(1, func(index int) { purged++ })
	r.Register(pipeConn(t), "a", 1)

	wantErr := errors.New("broken socket")
	err := r.Transact(0, func(conn net.Conn) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, purged)

	_, ok := r.GetByIndex(0)
	assert.False(t, ok)
}

func TestTransactSuccessLeavesSlotActive(t *testing.T) {
	r := New(1, func(int) {})
	r.Register(pipeConn(t), "a", 1)

	var sawConn net.Conn
	err := r.Transact(0, func(conn net.Conn) error {
		sawConn = conn
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, sawConn)

	_, ok := r.GetByIndex(0)
	assert.True(t, ok)
}

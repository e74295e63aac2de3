// Package nsregistry implements the name server's storage-server registry:
// a fixed-size slot array tracking every connected storage server, and the
// per-slot lock that multiplexes NS→SS request/response transactions onto
// each slot's session socket.
package nsregistry

import (
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/dfs/internal/logger"
)

// DefaultCapacity is the registry's fixed slot count.
const DefaultCapacity = 10

// Slot holds one registered storage server: its session socket, public
// address, and the lock serializing transactions on that socket.
type Slot struct {
	mu         sync.Mutex
	active     bool
	conn       net.Conn
	publicIP   string
	publicPort uint32
}

// Active reports whether the slot currently holds a live storage server.
// Racy by design — used for best-effort listings, never to gate a
// transaction (Transact re-checks under the slot lock).
func (s *Slot) Active() bool {
	return s.active
}

// PublicAddress returns the address a client should dial to reach this
// storage server directly.
func (s *Slot) PublicAddress() (ip string, port uint32) {
	return s.publicIP, s.publicPort
}

// Registry is the fixed-size array of storage-server slots plus the
// round-robin cursor used to spread new files across them.
type Registry struct {
	mu       sync.Mutex
	slots    []*Slot
	cursor   int
	capacity int
	onPurge  func(index int)
}

// New creates a Registry with the given capacity (DefaultCapacity if <= 0)
// and a callback invoked whenever a slot is removed, so the caller can
// purge the slot's files from the trie and cache.
func New(capacity int, onPurge func(index int)) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	slots := make([]*Slot, capacity)
	for i := range slots {
		slots[i] = &Slot{}
	}
	return &Registry{slots: slots, capacity: capacity, onPurge: onPurge}
}

// Register finds a free slot, records the session socket and public
// address, and returns the slot's index. It returns an error if every
// slot is occupied.
func (r *Registry) Register(conn net.Conn, publicIP string, publicPort uint32) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.slots {
		if !s.active {
			s.mu.Lock()
			s.active = true
			s.conn = conn
			s.publicIP = publicIP
			s.publicPort = publicPort
			s.mu.Unlock()
			logger.Info("registry: storage server registered",
				logger.SSIndex(i), logger.ClientAddr(fmt.Sprintf("%s:%d", publicIP, publicPort)))
			return i, nil
		}
	}
	return 0, fmt.Errorf("storage server registry full (capacity %d)", r.capacity)
}

// GetByIndex returns the slot at index if it is active.
func (r *Registry) GetByIndex(index int) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.slots) {
		return nil, false
	}
	s := r.slots[index]
	if !s.active {
		return nil, false
	}
	return s, true
}

// GetBySockAddress returns the index of the active slot advertising the
// given public address, used by the client's dead-SS report path.
func (r *Registry) GetBySockAddress(ip string, port uint32) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.slots {
		if s.active && s.publicIP == ip && s.publicPort == port {
			return i, true
		}
	}
	return 0, false
}

// GetForNewFile returns the next active slot in round-robin order,
// advancing the shared cursor under the registry lock. It returns false
// if no slot is active.
func (r *Registry) GetForNewFile() (int, *Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.slots)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		if r.slots[idx].active {
			r.cursor = (idx + 1) % n
			return idx, r.slots[idx], true
		}
	}
	return 0, nil, false
}

// Remove deactivates the slot at index and invokes the purge callback so
// the caller can drop the slot's files from the trie and cache. It is
// idempotent: removing an already-inactive slot is a no-op.
func (r *Registry) Remove(index int) {
	r.mu.Lock()
	s := r.slotLocked(index)
	if s == nil || !s.active {
		r.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.active = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	logger.Warn("registry: storage server removed", logger.SSIndex(index))
	if r.onPurge != nil {
		r.onPurge(index)
	}
}

func (r *Registry) slotLocked(index int) *Slot {
	if index < 0 || index >= len(r.slots) {
		return nil
	}
	return r.slots[index]
}

// Transact runs fn with the slot's session lock held, implementing the
// "send request then recv response under one lock" contract. If fn
// returns an error, the slot's socket is assumed broken: the lock is
// released and the slot is removed (purging its files) before the error
// is returned to the caller.
func (r *Registry) Transact(index int, fn func(conn net.Conn) error) error {
	r.mu.Lock()
	s := r.slotLocked(index)
	r.mu.Unlock()
	if s == nil {
		return fmt.Errorf("no such storage server slot %d", index)
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return fmt.Errorf("storage server slot %d is not active", index)
	}
	conn := s.conn
	err := fn(conn)
	s.mu.Unlock()

	if err != nil {
		r.Remove(index)
	}
	return err
}

// Capacity returns the fixed number of slots.
func (r *Registry) Capacity() int {
	return r.capacity
}

// ActiveIndices returns the indices of every currently active slot.
func (r *Registry) ActiveIndices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int
	for i, s := range r.slots {
		if s.active {
			out = append(out, i)
		}
	}
	return out
}

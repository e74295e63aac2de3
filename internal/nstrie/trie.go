// Package nstrie implements the name server's concurrent trie index: a
// character-indexed tree mapping filename to file record, plus the flat
// folder registry it is kept co-consistent with.
//
// The tree stores invariants, not bytes — file content lives only on the
// storage server that owns it. All mutating operations, and reads that
// copy state out, take a single tree-wide lock; interior pointers are
// never handed to callers.
package nstrie

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/wire"
)

// MaxACLEntries bounds a file's ACL to an ordered sequence of at most 10
// (username, permission) entries.
const MaxACLEntries = 10

// ACLEntry is one (username, permission) pair in a file's ACL.
type ACLEntry struct {
	Username   string
	Permission wire.Permission
}

// Record is the NS-side file record.
type Record struct {
	Filename       string
	Owner          string
	SSIndex        int
	Folder         string
	WordCount      uint32
	CharCount      uint32
	CreatedAt      time.Time
	ModifiedAt     time.Time
	LastAccessedAt time.Time
	LastAccessedBy string
	ACL            []ACLEntry
}

// clone returns a deep copy of r, so callers never hold interior pointers
// into the trie.
func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ACL = append([]ACLEntry(nil), r.ACL...)
	return &out
}

// hasPermission reports whether user may access the record at level perm,
// either as owner (implicit all rights) or via the ACL.
func (r *Record) hasPermission(user string, perm wire.Permission) bool {
	if r.Owner == user {
		return true
	}
	for _, e := range r.ACL {
		if e.Username != user {
			continue
		}
		if perm == wire.PermissionRead {
			return true // WRITE implies READ
		}
		return e.Permission == wire.PermissionWrite
	}
	return false
}

type node struct {
	children map[byte]*node
	record   *Record
}

func newNode() *node {
	return &node{children: make(map[byte]*node)}
}

// Index is the NS trie index plus the co-consistent folder registry,
// guarded by a single lock shared across both.
type Index struct {
	mu      sync.Mutex
	root    *node
	folders map[string]string // folder path -> owner
}

// New creates an empty Index.
func New() *Index {
	return &Index{root: newNode(), folders: make(map[string]string)}
}

func (idx *Index) lookupLocked(filename string) *node {
	n := idx.root
	for i := 0; i < len(filename); i++ {
		child, ok := n.children[filename[i]]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (idx *Index) insertLocked(filename string) *node {
	n := idx.root
	for i := 0; i < len(filename); i++ {
		b := filename[i]
		child, ok := n.children[b]
		if !ok {
			child = newNode()
			n.children[b] = child
		}
		n = child
	}
	return n
}

// Add inserts a new file record. It returns ErrConflict if filename already
// exists.
func (idx *Index) Add(filename, owner string, ssIndex int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if n := idx.lookupLocked(filename); n != nil && n.record != nil {
		return dferrors.Conflict(filename, "file already exists")
	}

	now := time.Now()
	n := idx.insertLocked(filename)
	n.record = &Record{
		Filename:   filename,
		Owner:      owner,
		SSIndex:    ssIndex,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	logger.Info("trie: file added", logger.Filename(filename), logger.Owner(owner), logger.SSIndex(ssIndex))
	return nil
}

// Find returns the ss_index for filename, or false if unknown.
func (idx *Index) Find(filename string) (int, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return 0, false
	}
	return n.record.SSIndex, true
}

// CheckPermission reports whether user has at least perm on filename.
// A missing file yields dferrors.ErrNotFound and a denied one
// dferrors.ErrAccessDenied; dferrors.WireMessage renders both the same way,
// so a remote caller cannot probe for a filename's existence.
func (idx *Index) CheckPermission(filename, user string, perm wire.Permission) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return dferrors.NotFound(filename)
	}
	if !n.record.hasPermission(user, perm) {
		return dferrors.Denied(filename)
	}
	return nil
}

// Grant adds or updates an ACL entry. Only the owner may grant. Granting to
// a user already present updates their permission in place rather than
// duplicating the entry.
func (idx *Index) Grant(filename, owner, target string, perm wire.Permission) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return dferrors.NotFound(filename)
	}
	if n.record.Owner != owner {
		return dferrors.Denied(filename)
	}
	for i := range n.record.ACL {
		if n.record.ACL[i].Username == target {
			n.record.ACL[i].Permission = perm
			return nil
		}
	}
	if len(n.record.ACL) >= MaxACLEntries {
		return dferrors.New(dferrors.ErrConflict, "ACL is full")
	}
	n.record.ACL = append(n.record.ACL, ACLEntry{Username: target, Permission: perm})
	return nil
}

// Revoke removes target's ACL entry. Revoking an absent entry is a no-op.
func (idx *Index) Revoke(filename, owner, target string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return dferrors.NotFound(filename)
	}
	if n.record.Owner != owner {
		return dferrors.Denied(filename)
	}
	for i, e := range n.record.ACL {
		if e.Username == target {
			n.record.ACL = append(n.record.ACL[:i], n.record.ACL[i+1:]...)
			return nil
		}
	}
	return nil
}

// Delete removes filename's record, iff requester is the owner. On success
// it returns the ss_index so the caller can forward the delete to that SS.
func (idx *Index) Delete(filename, requester string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return 0, dferrors.NotFound(filename)
	}
	if n.record.Owner != requester {
		return 0, dferrors.Denied(filename)
	}
	ssIndex := n.record.SSIndex
	n.record = nil
	return ssIndex, nil
}

// GetDetails returns a copy of filename's record.
func (idx *Index) GetDetails(filename string) (*Record, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return nil, dferrors.NotFound(filename)
	}
	return n.record.clone(), nil
}

// RebuildAdd is the SS-bootstrap path: when an SS reconnects and
// re-declares a file, the NS accepts it if the file is unknown, or
// previously claimed by the same SS (refresh). It rejects (and logs) a
// conflicting claim from a different active SS without attempting
// reconciliation — the byte copy on the rejected SS is orphaned until a
// future operator decision.
func (idx *Index) RebuildAdd(ssIndex int, rec Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.insertLocked(rec.Filename)
	if n.record != nil && n.record.SSIndex != ssIndex {
		logger.Warn("trie: rebuild conflict, rejecting re-registration",
			logger.Filename(rec.Filename), logger.SSIndex(ssIndex))
		return dferrors.Conflict(rec.Filename, "already claimed by another storage server")
	}
	stored := rec
	stored.SSIndex = ssIndex
	n.record = &stored
	return nil
}

// PurgeBySS removes every record whose ss_index equals ssIndex, returning
// the filenames removed so the caller can invalidate cache entries too.
func (idx *Index) PurgeBySS(ssIndex int) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var removed []string
	var walk func(n *node)
	walk = func(n *node) {
		if n.record != nil && n.record.SSIndex == ssIndex {
			removed = append(removed, n.record.Filename)
			n.record = nil
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(idx.root)
	if len(removed) > 0 {
		logger.Info("trie: purged storage server", logger.SSIndex(ssIndex))
	}
	return removed
}

// allRecordsLocked returns every live record in the trie (must hold idx.mu).
func (idx *Index) allRecordsLocked() []*Record {
	var out []*Record
	var walk func(n *node)
	walk = func(n *node) {
		if n.record != nil {
			out = append(out, n.record)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(idx.root)
	return out
}

// canSee reports whether user may see a row in a listing: owner, ACL
// member with at least read access, or the caller asked to see everything.
func canSee(rec *Record, user string, showAll bool) bool {
	if showAll || rec.Owner == user {
		return true
	}
	for _, e := range rec.ACL {
		if e.Username == user {
			return true
		}
	}
	return false
}

// List returns the root-level file records (those whose folder field is
// empty) that user may see, sorted by filename. Folders are not included;
// TopLevelFolders returns those.
func (idx *Index) List(user string, showAll bool) []*Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []*Record
	for _, rec := range idx.allRecordsLocked() {
		if rec.Folder != "" {
			continue
		}
		if canSee(rec, user, showAll) {
			out = append(out, rec.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// TopLevelFolders returns folder names with no '/' segment.
func (idx *Index) TopLevelFolders() []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []string
	for name := range idx.folders {
		if !strings.Contains(name, "/") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ApplyRefresh patches the word/char counts and timestamps the SS is
// authoritative for, without touching owner/ACL/folder.
func (idx *Index) ApplyRefresh(filename string, m wire.MetadataRespPayload) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return dferrors.NotFound(filename)
	}
	n.record.WordCount = m.WordCount
	n.record.CharCount = m.CharCount
	n.record.CreatedAt = time.Unix(int64(m.CreatedAt), 0)
	n.record.ModifiedAt = time.Unix(int64(m.ModifiedAt), 0)
	n.record.LastAccessedAt = time.Unix(int64(m.LastAccessedAt), 0)
	n.record.LastAccessedBy = m.LastAccessedBy
	return nil
}

// Snapshot returns (filename, ss_index) pairs for every live record, used
// by the metadata-refresh fan-out without holding the trie lock across
// network I/O.
func (idx *Index) Snapshot() []struct {
	Filename string
	SSIndex  int
} {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	recs := idx.allRecordsLocked()
	out := make([]struct {
		Filename string
		SSIndex  int
	}, len(recs))
	for i, r := range recs {
		out[i] = struct {
			Filename string
			SSIndex  int
		}{r.Filename, r.SSIndex}
	}
	return out
}

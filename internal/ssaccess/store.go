// Package ssaccess implements the storage server's per-file access-request
// workflow: an append-only list of pending/approved/denied requests a
// non-ACL user can use to ask the file's owner for a permission, routed
// directly to the storage server via the name server's locate_file.
package ssaccess

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/ssfs"
	"github.com/marmos91/dfs/internal/wire"
)

// Status is an access request's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusDenied
)

func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "APPROVED"
	case StatusDenied:
		return "DENIED"
	default:
		return "PENDING"
	}
}

// Request is one entry in a file's access-request log.
type Request struct {
	Timestamp  time.Time
	User       string
	Permission wire.Permission
	Status     Status
}

// Store manages the access-request log for one storage server.
type Store struct {
	layout ssfs.Layout
}

// New creates a Store rooted at layout.
func New(layout ssfs.Layout) *Store {
	return &Store{layout: layout}
}

func (s *Store) readAll(filename string) ([]Request, error) {
	path := s.layout.AccessRequests(filename)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open access requests: %w", err)
	}
	defer f.Close()

	var reqs []Request
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		r, err := parseRequest(line)
		if err != nil {
			continue
		}
		reqs = append(reqs, r)
	}
	return reqs, scanner.Err()
}

func (s *Store) rewriteAll(filename string, reqs []Request) error {
	path := s.layout.AccessRequests(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create access request directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, r := range reqs {
		if _, err := fmt.Fprintln(w, formatRequest(r)); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func formatRequest(r Request) string {
	return strings.Join([]string{
		strconv.FormatInt(r.Timestamp.UnixNano(), 10),
		r.User,
		r.Permission.String(),
		r.Status.String(),
	}, "|")
}

func parseRequest(line string) (Request, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 4 {
		return Request{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Request{}, err
	}
	perm := wire.PermissionRead
	if fields[2] == wire.PermissionWrite.String() {
		perm = wire.PermissionWrite
	}
	status := StatusPending
	switch fields[3] {
	case StatusApproved.String():
		status = StatusApproved
	case StatusDenied.String():
		status = StatusDenied
	}
	return Request{Timestamp: time.Unix(0, ts), User: fields[1], Permission: perm, Status: status}, nil
}

// Request appends a PENDING entry for (filename, user, perm). A duplicate
// pending request from the same user for the same permission is rejected
// as a conflict.
func (s *Store) Request(filename, user string, perm wire.Permission) error {
	reqs, err := s.readAll(filename)
	if err != nil {
		return err
	}
	for _, r := range reqs {
		if r.User == user && r.Permission == perm && r.Status == StatusPending {
			return dferrors.Conflict(filename, "duplicate pending access request")
		}
	}
	reqs = append(reqs, Request{Timestamp: time.Now(), User: user, Permission: perm, Status: StatusPending})
	return s.rewriteAll(filename, reqs)
}

// View returns every access request recorded for filename. Callers must
// restrict this to the file's owner.
func (s *Store) View(filename string) ([]Request, error) {
	return s.readAll(filename)
}

// Approve flips the most recent PENDING request from user to APPROVED and
// returns the permission it was granted, so the caller can persist a
// matching ACL entry.
func (s *Store) Approve(filename, user string) (wire.Permission, error) {
	return s.resolve(filename, user, StatusApproved)
}

// Deny flips the most recent PENDING request from user to DENIED.
func (s *Store) Deny(filename, user string) error {
	_, err := s.resolve(filename, user, StatusDenied)
	return err
}

func (s *Store) resolve(filename, user string, to Status) (wire.Permission, error) {
	reqs, err := s.readAll(filename)
	if err != nil {
		return 0, err
	}
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].User == user && reqs[i].Status == StatusPending {
			reqs[i].Status = to
			if err := s.rewriteAll(filename, reqs); err != nil {
				return 0, err
			}
			return reqs[i].Permission, nil
		}
	}
	return 0, dferrors.NotFound(filename)
}

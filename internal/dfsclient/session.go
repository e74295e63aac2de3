package dfsclient

import (
	"fmt"

	"github.com/marmos91/dfs/internal/wire"
)

// Session bundles the persistent NS connection with the caller's identity
// and resolves every content operation to a short-lived SS connection,
// mirroring how a human client is expected to use the two protocols: one
// long-lived NS session, one SS dial per read/write/checkpoint call.
type Session struct {
	ns       *NSClient
	addr     string
	username string
}

// Connect opens the NS session for username at addr.
func Connect(addr, username string) (*Session, error) {
	ns, err := DialNS(addr, username)
	if err != nil {
		return nil, err
	}
	return &Session{ns: ns, addr: addr, username: username}, nil
}

// Close ends the NS session.
func (s *Session) Close() error { return s.ns.Close() }

// NS exposes the underlying binary-protocol client for callers that need
// an operation with no SS-redirect counterpart (Info, View, List, ...).
func (s *Session) NS() *NSClient { return s.ns }

func ssAddr(r wire.RedirectPayload) string {
	return fmt.Sprintf("%s:%d", r.IP, r.Port)
}

func (s *Session) withSS(redir wire.RedirectPayload, fn func(*SSClient) error) error {
	ss, err := DialSS(ssAddr(redir), s.username)
	if err != nil {
		return err
	}
	defer ss.Close()
	return fn(ss)
}

// ReadFile returns filename's full content.
func (s *Session) ReadFile(filename string) ([]string, error) {
	redir, err := s.ns.ReadRedirect(filename)
	if err != nil {
		return nil, err
	}
	var lines []string
	err = s.withSS(redir, func(ss *SSClient) error {
		var readErr error
		lines, readErr = ss.Read(filename)
		return readErr
	})
	return lines, err
}

// StreamFile is the streaming counterpart of ReadFile.
func (s *Session) StreamFile(filename string) ([]string, error) {
	redir, err := s.ns.StreamRedirect(filename)
	if err != nil {
		return nil, err
	}
	var lines []string
	err = s.withSS(redir, func(ss *SSClient) error {
		var readErr error
		lines, readErr = ss.Stream(filename)
		return readErr
	})
	return lines, err
}

// WriteSentence opens sentence sentenceNum of filename and applies edits.
func (s *Session) WriteSentence(filename string, sentenceNum int, edits []Edit) error {
	redir, err := s.ns.WriteRedirect(filename)
	if err != nil {
		return err
	}
	return s.withSS(redir, func(ss *SSClient) error {
		return ss.Write(filename, sentenceNum, edits)
	})
}

// Checkpoint snapshots filename under tag.
func (s *Session) Checkpoint(filename, tag string) error {
	redir, err := s.ns.CheckpointRedirect(filename)
	if err != nil {
		return err
	}
	return s.withSS(redir, func(ss *SSClient) error {
		return ss.Checkpoint(filename, tag)
	})
}

// ViewCheckpoint returns the content snapshotted under tag.
func (s *Session) ViewCheckpoint(filename, tag string) ([]string, error) {
	redir, err := s.ns.ViewCheckpointRedirect(filename)
	if err != nil {
		return nil, err
	}
	var lines []string
	err = s.withSS(redir, func(ss *SSClient) error {
		var readErr error
		lines, readErr = ss.ViewCheckpoint(filename, tag)
		return readErr
	})
	return lines, err
}

// Revert restores filename to the content snapshotted under tag.
func (s *Session) Revert(filename, tag string) error {
	redir, err := s.ns.RevertRedirect(filename)
	if err != nil {
		return err
	}
	return s.withSS(redir, func(ss *SSClient) error {
		return ss.Revert(filename, tag)
	})
}

// ListCheckpoints returns the tags available for filename.
func (s *Session) ListCheckpoints(filename string) ([]string, error) {
	redir, err := s.ns.ListCheckpointsRedirect(filename)
	if err != nil {
		return nil, err
	}
	var tags []string
	err = s.withSS(redir, func(ss *SSClient) error {
		var readErr error
		tags, readErr = ss.ListCheckpoints(filename)
		return readErr
	})
	return tags, err
}

// RequestAccess asks filename's owner to grant perm. The caller must
// already know which storage server holds filename; LocateFile resolves
// that without requiring any permission on the file itself.
func (s *Session) RequestAccess(filename string, perm wire.Permission) error {
	redir, err := s.ns.LocateFile(filename)
	if err != nil {
		return err
	}
	return s.withSS(redir, func(ss *SSClient) error {
		return ss.RequestAccess(filename, perm.String())
	})
}

// ViewRequests lists pending access requests for filename. Only the
// file's owner will get a non-error result.
func (s *Session) ViewRequests(filename string) ([]string, error) {
	redir, err := s.ns.LocateFile(filename)
	if err != nil {
		return nil, err
	}
	var lines []string
	err = s.withSS(redir, func(ss *SSClient) error {
		var readErr error
		lines, readErr = ss.ViewRequests(filename)
		return readErr
	})
	return lines, err
}

// ApproveRequest grants target the permission they requested on filename.
func (s *Session) ApproveRequest(filename, target string) error {
	redir, err := s.ns.LocateFile(filename)
	if err != nil {
		return err
	}
	return s.withSS(redir, func(ss *SSClient) error {
		return ss.ApproveRequest(filename, target)
	})
}

// DenyRequest rejects target's pending request on filename.
func (s *Session) DenyRequest(filename, target string) error {
	redir, err := s.ns.LocateFile(filename)
	if err != nil {
		return err
	}
	return s.withSS(redir, func(ss *SSClient) error {
		return ss.DenyRequest(filename, target)
	})
}

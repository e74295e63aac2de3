// Package sscheckpoint implements the storage server's named checkpoints:
// full-content snapshots of a file at a moment in time, recorded in a
// per-file meta log alongside the snapshot bytes.
package sscheckpoint

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
	"github.com/marmos91/dfs/internal/ssundo"
)

// Meta is one recorded checkpoint for a file.
type Meta struct {
	Timestamp time.Time
	Tag       string
	User      string
	Size      int64
}

// Store manages checkpoint snapshots and their meta log for one storage
// server.
type Store struct {
	layout ssfs.Layout
}

// New creates a Store rooted at layout.
func New(layout ssfs.Layout) *Store {
	return &Store{layout: layout}
}

func (s *Store) readMeta(filename string) ([]Meta, error) {
	path := s.layout.CheckpointMeta(filename)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint meta: %w", err)
	}
	defer f.Close()

	var metas []Meta
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		m, err := parseMeta(line)
		if err != nil {
			continue
		}
		metas = append(metas, m)
	}
	return metas, scanner.Err()
}

func (s *Store) appendMeta(filename string, m Meta) error {
	path := s.layout.CheckpointMeta(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint meta directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open checkpoint meta: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, formatMeta(m))
	return err
}

func formatMeta(m Meta) string {
	return strings.Join([]string{
		strconv.FormatInt(m.Timestamp.UnixNano(), 10),
		m.Tag,
		m.User,
		strconv.FormatInt(m.Size, 10),
	}, "|")
}

func parseMeta(line string) (Meta, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 4 {
		return Meta{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Meta{}, err
	}
	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Meta{}, err
	}
	return Meta{Timestamp: time.Unix(0, ts), Tag: fields[1], User: fields[2], Size: size}, nil
}

// Checkpoint copies filename's live content into a tagged snapshot and
// records its meta entry. It fails with ErrConflict if tag already exists
// for filename; callers are expected to have already refused this while any
// sentence lock is held.
func (s *Store) Checkpoint(filename, tag, user string, liveContent []byte) error {
	metas, err := s.readMeta(filename)
	if err != nil {
		return err
	}
	for _, m := range metas {
		if m.Tag == tag {
			return dferrors.Conflict(filename, fmt.Sprintf("checkpoint tag %q already exists", tag))
		}
	}

	path := s.layout.CheckpointFile(filename, tag)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	if err := os.WriteFile(path, liveContent, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return s.appendMeta(filename, Meta{
		Timestamp: time.Now(),
		Tag:       tag,
		User:      user,
		Size:      int64(len(liveContent)),
	})
}

// View returns the snapshot bytes for (filename, tag).
func (s *Store) View(filename, tag string) ([]byte, error) {
	path := s.layout.CheckpointFile(filename, tag)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, dferrors.NotFound(filename)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return content, nil
}

// List returns every checkpoint recorded for filename.
func (s *Store) List(filename string) ([]Meta, error) {
	return s.readMeta(filename)
}

// Revert restores filename's live content to the bytes captured at tag. It
// first takes a fresh undo backup of the current live content (so the
// revert itself participates in undo history), then overwrites the live
// file. It returns the restored content so the caller can refresh
// word/char-count metadata.
func (s *Store) Revert(filename, tag, user string, undo *ssundo.Store, currentLiveContent []byte) ([]byte, error) {
	snapshot, err := s.View(filename, tag)
	if err != nil {
		return nil, err
	}
	if err := undo.Backup(filename, user, currentLiveContent); err != nil {
		return nil, err
	}
	livePath := s.layout.LiveFile(filename)
	if err := os.MkdirAll(filepath.Dir(livePath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(livePath, snapshot, 0o644); err != nil {
		return nil, fmt.Errorf("write live file: %w", err)
	}
	return snapshot, nil
}

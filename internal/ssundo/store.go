// Package ssundo implements the storage server's per-file undo history: an
// append-only backup log with a per-entry "used" bit, giving a linear undo
// chain with no redo.
package ssundo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/ssfs"
)

// Entry is one backup line in a file's undo log.
type Entry struct {
	Timestamp  time.Time
	BackupFile string
	User       string
	Used       bool
}

// Store manages undo logs and version backups for one storage server.
type Store struct {
	layout ssfs.Layout
}

// New creates a Store rooted at layout.
func New(layout ssfs.Layout) *Store {
	return &Store{layout: layout}
}

func (s *Store) readLog(filename string) ([]Entry, error) {
	path := s.layout.UndoLog(filename)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open undo log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (s *Store) rewriteLog(filename string, entries []Entry) error {
	path := s.layout.UndoLog(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create undo directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create undo log: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, formatEntry(e)); err != nil {
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

func formatEntry(e Entry) string {
	used := "0"
	if e.Used {
		used = "1"
	}
	return strings.Join([]string{
		strconv.FormatInt(e.Timestamp.UnixNano(), 10),
		e.BackupFile,
		e.User,
		used,
	}, "|")
}

func parseEntry(line string) (Entry, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Timestamp:  time.Unix(0, ts),
		BackupFile: fields[1],
		User:       fields[2],
		Used:       fields[3] == "1",
	}, nil
}

// Backup copies content into a new timestamped version file and appends a
// fresh, unused undo entry to filename's log. It is called just before any
// operation that overwrites the live file (a write-engine commit, or a
// checkpoint revert) so the prior content is always recoverable.
func (s *Store) Backup(filename, user string, content []byte) error {
	if err := os.MkdirAll(s.layout.VersionsDir(), 0o755); err != nil {
		return fmt.Errorf("create versions directory: %w", err)
	}
	now := time.Now()
	backupPath := s.layout.VersionFile(filename, now.UnixNano())
	if err := os.WriteFile(backupPath, content, 0o644); err != nil {
		return fmt.Errorf("write version backup: %w", err)
	}

	entries, err := s.readLog(filename)
	if err != nil {
		return err
	}
	entries = append(entries, Entry{Timestamp: now, BackupFile: backupPath, User: user})
	return s.rewriteLog(filename, entries)
}

// Undo restores the most recent unused backup for filename into the live
// file, marks that entry used, and returns the restored content. It returns
// dferrors.ErrNotFound if no unused entry remains — undo never resurrects an
// already-used entry (no automatic redo).
func (s *Store) Undo(filename string) ([]byte, error) {
	entries, err := s.readLog(filename)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	for i := range entries {
		if entries[i].Used {
			continue
		}
		content, err := os.ReadFile(entries[i].BackupFile)
		if err != nil {
			return nil, fmt.Errorf("read undo backup: %w", err)
		}
		livePath := s.layout.LiveFile(filename)
		if err := os.MkdirAll(filepath.Dir(livePath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(livePath, content, 0o644); err != nil {
			return nil, fmt.Errorf("restore undo backup: %w", err)
		}
		entries[i].Used = true
		if err := s.rewriteLog(filename, entries); err != nil {
			return nil, err
		}
		return content, nil
	}
	return nil, dferrors.NewFile(dferrors.ErrNotFound, "no undo history available", filename)
}

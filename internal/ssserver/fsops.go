package ssserver

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dfs/internal/ssfs"
	"github.com/marmos91/dfs/internal/ssmeta"
)

func readLiveOrEmpty(layout ssfs.Layout, filename string) ([]byte, error) {
	b, err := os.ReadFile(layout.LiveFile(filename))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

func writeLive(layout ssfs.Layout, filename string, content []byte) error {
	path := layout.LiveFile(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// removeFileTree deletes filename's live content, undo log, checkpoint
// meta, and access requests. Checkpoint snapshot files are not removed.
// Version backups are left in place; they are addressed by path, not by
// filename lookup, and undo history for a deleted file is simply orphaned.
func removeFileTree(layout ssfs.Layout, filename string) error {
	var firstErr error
	for _, path := range []string{
		layout.LiveFile(filename),
		layout.UndoLog(filename),
		layout.CheckpointMeta(filename),
		layout.AccessRequests(filename),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func wordCount(text string) int { return len(strings.Fields(text)) }
func charCount(text string) int { return len([]rune(text)) }

// refreshStats recomputes word/char counts and mtime after a mutation that
// bypasses the write engine (undo, revert).
func (s *Server) refreshStats(filename string, content []byte, user string) {
	now := time.Now()
	text := string(content)
	s.Meta.Mutate(filename, func(rec *ssmeta.Record) {
		rec.SizeBytes = uint64(len(content))
		rec.WordCount = uint32(wordCount(text))
		rec.CharCount = uint32(charCount(text))
		rec.ModifiedAt = now
		rec.LastAccessedAt = now
		if user != "" {
			rec.LastAccessedBy = user
		}
	})
}

// touchAccess records a read without touching word/char counts or mtime.
func (s *Server) touchAccess(filename, user string) {
	now := time.Now()
	s.Meta.Mutate(filename, func(rec *ssmeta.Record) {
		rec.LastAccessedAt = now
		if user != "" {
			rec.LastAccessedBy = user
		}
	})
}

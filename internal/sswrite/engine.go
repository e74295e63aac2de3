// Package sswrite implements the storage server's sentence-granular write
// engine: per-(file, sentence) advisory locks, a copy-on-write swap file per
// writer, and a read-merge-write commit that reconciles a writer's edits
// against concurrent commits to other sentences of the same file.
package sswrite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/ssfs"
	"github.com/marmos91/dfs/internal/sslock"
	"github.com/marmos91/dfs/internal/ssmeta"
	"github.com/marmos91/dfs/internal/ssundo"
)

// Engine drives the write/commit lifecycle for one storage server.
type Engine struct {
	layout ssfs.Layout
	locks  *sslock.Table
	meta   *ssmeta.Store
	undo   *ssundo.Store
}

// New creates an Engine wired to the given layout, lock table, metadata
// store, and undo store.
func New(layout ssfs.Layout, locks *sslock.Table, meta *ssmeta.Store, undo *ssundo.Store) *Engine {
	return &Engine{layout: layout, locks: locks, meta: meta, undo: undo}
}

func readOrEmpty(path string) (string, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Begin acquires the advisory lock on (filename, sentence) for connID. It
// refuses with ErrConflict if another connection already holds it.
func (e *Engine) Begin(filename string, sentence int, connID string) error {
	if sentence < 1 {
		return dferrors.New(dferrors.ErrProtocol, "sentence number must be >= 1")
	}
	if err := e.locks.Acquire(filename, sentence, connID); err != nil {
		return err
	}
	logger.Info("write: lock acquired", logger.Filename(filename), logger.Sentence(sentence), logger.LockOwner(connID))
	return nil
}

// Insert applies one `<word_index> <content>` edit to the writer's private
// swap copy of the document. wordIndex is 1-based within the target
// sentence; len(words)+1 appends to the sentence's end, before its
// terminator.
func (e *Engine) Insert(filename string, sentenceIdx int, connID string, wordIndex int, content string) error {
	swapPath := e.layout.SwapFile(filename, sentenceIdx, connID)

	text, err := readOrEmpty(swapPath)
	if err != nil {
		return fmt.Errorf("read swap state: %w", err)
	}
	if text == "" {
		text, err = readOrEmpty(e.layout.LiveFile(filename))
		if err != nil {
			return fmt.Errorf("read live file: %w", err)
		}
	}

	sentences := tokenizeSentences(text)
	if sentenceIdx > len(sentences)+1 {
		return dferrors.New(dferrors.ErrProtocol, "sentence does not exist yet")
	}
	if sentenceIdx == len(sentences)+1 {
		sentences = append(sentences, sentence{})
	}

	target := sentences[sentenceIdx-1]
	stripped, terminator := peelTerminator(target)

	if wordIndex < 1 || wordIndex > len(stripped)+1 {
		return dferrors.New(dferrors.ErrProtocol, fmt.Sprintf("word index %d out of range (sentence has %d words)", wordIndex, len(stripped)))
	}

	contentWords := sentence{}
	for _, w := range splitWhitespace(content) {
		contentWords = append(contentWords, w)
	}
	if len(contentWords) == 0 {
		return dferrors.New(dferrors.ErrProtocol, "insert content must not be empty")
	}

	edited := make(sentence, 0, len(stripped)+len(contentWords))
	edited = append(edited, stripped[:wordIndex-1]...)
	edited = append(edited, contentWords...)
	edited = append(edited, stripped[wordIndex-1:]...)
	edited = reattachTerminator(edited, terminator)

	sentences[sentenceIdx-1] = edited

	if err := os.MkdirAll(filepath.Dir(swapPath), 0o755); err != nil {
		return fmt.Errorf("create swap directory: %w", err)
	}
	if err := os.WriteFile(swapPath, []byte(joinSentences(sentences)), 0o644); err != nil {
		return fmt.Errorf("write swap file: %w", err)
	}
	logger.Info("write: inserted", logger.Filename(filename), logger.Sentence(sentenceIdx), logger.WordIndex(wordIndex))
	return nil
}

func splitWhitespace(s string) []string {
	var words []string
	start := -1
	for i := 0; i < len(s); i++ {
		isSpace := s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r'
		if isSpace {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// Commit (the ETIRW sentinel) finalizes a WRITE: it re-reads the current
// live file, takes the writer's edited sentence from the swap, and merges —
// sentences before and after the target index come from the current live
// file so concurrent commits to other sentences survive, and the target
// sentence comes from the swap. A backup is appended to the undo log before
// the merged text is written. The lock is released and the swap removed
// whether or not the live file actually changed.
func (e *Engine) Commit(filename string, sentenceIdx int, connID, user string) error {
	defer e.locks.Release(filename, sentenceIdx, connID)

	swapPath := e.layout.SwapFile(filename, sentenceIdx, connID)
	livePath := e.layout.LiveFile(filename)
	defer os.Remove(swapPath)

	liveText, err := readOrEmpty(livePath)
	if err != nil {
		return fmt.Errorf("read live file: %w", err)
	}
	liveSentences := tokenizeSentences(liveText)

	swapText, err := readOrEmpty(swapPath)
	if err != nil {
		return fmt.Errorf("read swap file: %w", err)
	}
	var targetWords sentence
	if swapText != "" {
		swapSentences := tokenizeSentences(swapText)
		if sentenceIdx <= len(swapSentences) {
			targetWords = swapSentences[sentenceIdx-1]
		}
	}

	var mergedText string
	if sentenceIdx > len(liveSentences) {
		targetText := sentenceText(targetWords)
		switch {
		case liveText == "":
			mergedText = targetText
		case targetText == "":
			mergedText = liveText
		default:
			mergedText = liveText + " " + targetText
		}
	} else {
		merged := make([]sentence, len(liveSentences))
		copy(merged, liveSentences)
		merged[sentenceIdx-1] = targetWords
		mergedText = joinSentences(merged)
	}

	if err := e.undo.Backup(filename, user, []byte(liveText)); err != nil {
		return fmt.Errorf("backup before commit: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(livePath), 0o755); err != nil {
		return fmt.Errorf("create files directory: %w", err)
	}
	if err := os.WriteFile(livePath, []byte(mergedText), 0o644); err != nil {
		return fmt.Errorf("write live file: %w", err)
	}

	now := time.Now()
	if err := e.meta.Mutate(filename, func(rec *ssmeta.Record) {
		rec.SizeBytes = uint64(len(mergedText))
		rec.WordCount = uint32(wordCount(mergedText))
		rec.CharCount = uint32(charCount(mergedText))
		rec.ModifiedAt = now
		rec.LastAccessedAt = now
		rec.LastAccessedBy = user
	}); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}

	logger.Info("write: committed", logger.Filename(filename), logger.Sentence(sentenceIdx), logger.Username(user))
	return nil
}

// Abandon releases connID's lock on (filename, sentence) without
// committing, discarding its swap file. Orphaned swap files left by a
// disconnect without an explicit abandon are tolerated by design.
func (e *Engine) Abandon(filename string, sentence int, connID string) {
	os.Remove(e.layout.SwapFile(filename, sentence, connID))
	e.locks.Release(filename, sentence, connID)
}

// ReleaseConnection releases every lock connID holds (and their swap
// files), used when its connection closes without explicit commits.
func (e *Engine) ReleaseConnection(connID string) {
	for _, h := range e.locks.HeldBy(connID) {
		os.Remove(e.layout.SwapFile(h.Filename, h.Sentence, connID))
	}
	e.locks.ReleaseAll(connID)
}

// AnyLockHeld reports whether filename currently has any sentence locked,
// used to gate undo/checkpoint/revert.
func (e *Engine) AnyLockHeld(filename string) bool {
	return e.locks.AnyLockHeld(filename)
}

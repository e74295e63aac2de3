// Package ssfs centralizes the storage server's on-disk layout: one base
// directory holding live file content, swap files, undo backups and
// logs, checkpoints, and access-request logs.
package ssfs

import (
	"fmt"
	"path/filepath"
)

// Layout resolves every on-disk path a storage server touches, rooted at
// a single base directory.
type Layout struct {
	Base string
}

// New creates a Layout rooted at base.
func New(base string) Layout {
	return Layout{Base: base}
}

// FilesDir is the directory holding live file content.
func (l Layout) FilesDir() string { return filepath.Join(l.Base, "files") }

// LiveFile is the path to a file's current committed content.
func (l Layout) LiveFile(filename string) string {
	return filepath.Join(l.FilesDir(), filename)
}

// MetadataFile is the path to the single delimited metadata table.
func (l Layout) MetadataFile() string {
	return filepath.Join(l.Base, "metadata", "metadata.txt")
}

// SwapDir is the directory holding per-writer scratch files.
func (l Layout) SwapDir() string { return filepath.Join(l.Base, "swap") }

// SwapFile is a writer's private scratch file for one (file, sentence,
// connection) triple.
func (l Layout) SwapFile(filename string, sentence int, connID string) string {
	name := fmt.Sprintf("%s.%d.%s.swap", filename, sentence, connID)
	return filepath.Join(l.SwapDir(), name)
}

// VersionsDir holds timestamped undo backup copies.
func (l Layout) VersionsDir() string { return filepath.Join(l.Base, "versions") }

// VersionFile names one backup copy of filename taken at unixNano.
func (l Layout) VersionFile(filename string, unixNano int64) string {
	name := fmt.Sprintf("%s.%d.bak", filename, unixNano)
	return filepath.Join(l.VersionsDir(), name)
}

// UndoLog is the append-only undo log for filename.
func (l Layout) UndoLog(filename string) string {
	return filepath.Join(l.Base, "undo", filename+".undo")
}

// CheckpointFile is the full-content snapshot for (filename, tag).
func (l Layout) CheckpointFile(filename, tag string) string {
	return filepath.Join(l.Base, "checkpoints", filename+"_"+tag+".checkpoint")
}

// CheckpointMeta is the meta log recording every checkpoint taken for
// filename.
func (l Layout) CheckpointMeta(filename string) string {
	return filepath.Join(l.Base, "checkpoint_meta", filename+".meta")
}

// AccessRequests is the append-only access-request log for filename.
func (l Layout) AccessRequests(filename string) string {
	return filepath.Join(l.Base, "access_requests", filename+".requests")
}

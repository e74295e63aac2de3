package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // correlation id for a client session
	KeySpanID  = "span_id"  // correlation id for a single request/response transaction

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyMessageType = "msg_type"  // wire message type (create, read, write, register, ...)
	KeyComponent   = "component" // NS, SS, or CLIENT
	KeyStatus      = "status"    // ack / error
	KeyStatusMsg   = "status_msg"
	KeyProcedure   = "procedure" // request type name, kept for LogContext compatibility
	KeyShare       = "share"     // reserved for future multi-tenant folder scoping

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyFilename  = "filename"
	KeyFolder    = "folder"
	KeyOwner     = "owner"
	KeySize      = "size"
	KeyWordCount = "word_count"
	KeyCharCount = "char_count"

	// ========================================================================
	// Client / User Identification
	// ========================================================================
	KeyClientAddr = "client_addr"
	KeyUsername   = "username"
	KeyPermission = "permission"

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID    = "session_id"
	KeyConnectionID = "connection_id"
	KeySSIndex      = "ss_index"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyOperation  = "operation"
	KeyAttempt    = "attempt"

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheHit      = "cache_hit"
	KeyCacheSize     = "cache_size"
	KeyCacheCapacity = "cache_capacity"
	KeyEvicted       = "evicted"

	// ========================================================================
	// Sentence Locking (SS write engine)
	// ========================================================================
	KeySentence  = "sentence"
	KeyWordIndex = "word_index"
	KeyLockOwner = "lock_owner"

	// ========================================================================
	// Undo / Checkpoints
	// ========================================================================
	KeyTag       = "tag"
	KeyUsed      = "used"
	KeyTimestamp = "timestamp"
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for a client session correlation id.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for a single request/response transaction id.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// MessageType returns a slog.Attr for the wire message type.
func MessageType(t string) slog.Attr { return slog.String(KeyMessageType, t) }

// Procedure returns a slog.Attr for the request type name.
func Procedure(name string) slog.Attr { return slog.String(KeyProcedure, name) }

// Share returns a slog.Attr reserved for future multi-tenant folder scoping.
func Share(name string) slog.Attr { return slog.String(KeyShare, name) }

// Component returns a slog.Attr for the originating component (NS/SS/CLIENT).
func Component(c string) slog.Attr { return slog.String(KeyComponent, c) }

// Status returns a slog.Attr for an operation status code.
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// StatusMsg returns a slog.Attr for a human-readable status message.
func StatusMsg(msg string) slog.Attr { return slog.String(KeyStatusMsg, msg) }

// Filename returns a slog.Attr for the file key.
func Filename(name string) slog.Attr { return slog.String(KeyFilename, name) }

// Folder returns a slog.Attr for a folder path.
func Folder(name string) slog.Attr { return slog.String(KeyFolder, name) }

// Owner returns a slog.Attr for a file/folder owner username.
func Owner(name string) slog.Attr { return slog.String(KeyOwner, name) }

// Size returns a slog.Attr for a file size in bytes.
func Size(n uint64) slog.Attr { return slog.Uint64(KeySize, n) }

// WordCount returns a slog.Attr for a file's word count.
func WordCount(n uint32) slog.Attr { return slog.Uint64(KeyWordCount, uint64(n)) }

// ClientAddr returns a slog.Attr for a client's network address.
func ClientAddr(addr string) slog.Attr { return slog.String(KeyClientAddr, addr) }

// Username returns a slog.Attr for a self-declared username.
func Username(name string) slog.Attr { return slog.String(KeyUsername, name) }

// Permission returns a slog.Attr for an ACL permission (READ/WRITE).
func Permission(p string) slog.Attr { return slog.String(KeyPermission, p) }

// SSIndex returns a slog.Attr for a storage server registry slot index.
func SSIndex(idx int) slog.Attr { return slog.Int(KeySSIndex, idx) }

// ConnectionID returns a slog.Attr for a connection identifier.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr wrapping a Go error, or an empty attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// CacheHit returns a slog.Attr for a cache hit/miss indicator.
func CacheHit(hit bool) slog.Attr { return slog.Bool(KeyCacheHit, hit) }

// Evicted returns a slog.Attr for the filename evicted from the LRU cache.
func Evicted(name string) slog.Attr { return slog.String(KeyEvicted, name) }

// Sentence returns a slog.Attr for a 1-based sentence index.
func Sentence(n int) slog.Attr { return slog.Int(KeySentence, n) }

// WordIndex returns a slog.Attr for a 1-based word index within a sentence.
func WordIndex(n int) slog.Attr { return slog.Int(KeyWordIndex, n) }

// LockOwner returns a slog.Attr for a sentence lock owner (connection id).
func LockOwner(owner string) slog.Attr { return slog.String(KeyLockOwner, owner) }

// Tag returns a slog.Attr for a checkpoint tag.
func Tag(tag string) slog.Attr { return slog.String(KeyTag, tag) }

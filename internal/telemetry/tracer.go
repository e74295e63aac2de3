package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for the NS/SS/client protocols.
const (
	// Client/session attributes
	AttrClientAddr = "client.address"
	AttrUsername   = "user.name"

	// Protocol component originating a span: ns, ss, client
	AttrComponent = "dfs.component"

	// File/folder identity
	AttrFilename = "dfs.filename"
	AttrFolder   = "dfs.folder"
	AttrOwner    = "dfs.owner"

	// Access control
	AttrTarget     = "dfs.access.target"
	AttrPermission = "dfs.access.permission"

	// Write engine
	AttrSentenceNum = "dfs.write.sentence"
	AttrWordIndex   = "dfs.write.word_index"

	// Checkpoints
	AttrCheckpointTag = "dfs.checkpoint.tag"

	// Storage server addressing
	AttrSSAddr = "dfs.ss.address"

	// Cache
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"

	// Generic outcome
	AttrStatus = "dfs.status"
)

// Span names for NS/SS operations and internal subsystems.
const (
	SpanNSCreate       = "ns.create"
	SpanNSCreateFolder = "ns.create_folder"
	SpanNSDelete       = "ns.delete"
	SpanNSUndo         = "ns.undo"
	SpanNSInfo         = "ns.info"
	SpanNSList         = "ns.list"
	SpanNSView         = "ns.view"
	SpanNSViewFolder   = "ns.view_folder"
	SpanNSAddAccess    = "ns.add_access"
	SpanNSRemAccess    = "ns.rem_access"
	SpanNSMoveFile     = "ns.move_file"
	SpanNSMoveFolder   = "ns.move_folder"
	SpanNSRedirect     = "ns.redirect"
	SpanNSExec         = "ns.exec"

	SpanSSRead            = "ss.read"
	SpanSSStream          = "ss.stream"
	SpanSSWrite           = "ss.write"
	SpanSSCheckpoint      = "ss.checkpoint"
	SpanSSViewCheckpoint  = "ss.view_checkpoint"
	SpanSSRevert          = "ss.revert"
	SpanSSListCheckpoints = "ss.list_checkpoints"
	SpanSSRequestAccess   = "ss.request_access"
	SpanSSApproveRequest  = "ss.approve_request"
	SpanSSDenyRequest     = "ss.deny_request"

	SpanTrieLookup = "trie.lookup"
	SpanTrieInsert = "trie.insert"
	SpanTrieDelete = "trie.delete"

	SpanCacheLookup = "cache.lookup"
	SpanCacheWrite  = "cache.write"
	SpanCacheEvict  = "cache.evict"
)

// ClientAddr returns an attribute for a client's remote address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Username returns an attribute for the session's username.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Component returns an attribute identifying which actor produced a span.
func Component(name string) attribute.KeyValue {
	return attribute.String(AttrComponent, name)
}

// Filename returns an attribute for a file path.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Folder returns an attribute for a folder path.
func Folder(name string) attribute.KeyValue {
	return attribute.String(AttrFolder, name)
}

// Owner returns an attribute for a file's owning user.
func Owner(name string) attribute.KeyValue {
	return attribute.String(AttrOwner, name)
}

// Target returns an attribute for the user targeted by an access change.
func Target(name string) attribute.KeyValue {
	return attribute.String(AttrTarget, name)
}

// Permission returns an attribute for an access permission level.
func Permission(perm string) attribute.KeyValue {
	return attribute.String(AttrPermission, perm)
}

// SentenceNum returns an attribute for a 1-based sentence index.
func SentenceNum(n int) attribute.KeyValue {
	return attribute.Int(AttrSentenceNum, n)
}

// WordIndex returns an attribute for a 1-based word index within a sentence.
func WordIndex(n int) attribute.KeyValue {
	return attribute.Int(AttrWordIndex, n)
}

// CheckpointTag returns an attribute for a checkpoint tag.
func CheckpointTag(tag string) attribute.KeyValue {
	return attribute.String(AttrCheckpointTag, tag)
}

// SSAddr returns an attribute for the storage server address a request was
// redirected to.
func SSAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrSSAddr, addr)
}

// CacheHit returns an attribute for whether a lookup hit the cache.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute describing which cache tier served a hit.
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// Status returns an attribute for a generic operation outcome.
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// StartNSSpan starts a span for a name server operation.
func StartNSSpan(ctx context.Context, name, filename string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Component("ns"), Filename(filename)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartSSSpan starts a span for a storage server operation.
func StartSSSpan(ctx context.Context, name, filename string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Component("ss"), Filename(filename)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for an LRU cache operation on the name server.
func StartCacheSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartTrieSpan starts a span for a trie index operation on the name server.
func StartTrieSpan(ctx context.Context, name, filename string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Filename(filename)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dfs", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(ctx)
	assert.NoError(t, err)

	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	tracer = nil
	enabled = false

	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientAddr("192.168.1.1:5000"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("Username", func(t *testing.T) {
		attr := Username("alice")
		assert.Equal(t, AttrUsername, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("Component", func(t *testing.T) {
		attr := Component("ns")
		assert.Equal(t, AttrComponent, string(attr.Key))
		assert.Equal(t, "ns", attr.Value.AsString())
	})

	t.Run("Filename", func(t *testing.T) {
		attr := Filename("report.txt")
		assert.Equal(t, AttrFilename, string(attr.Key))
		assert.Equal(t, "report.txt", attr.Value.AsString())
	})

	t.Run("Folder", func(t *testing.T) {
		attr := Folder("/drafts")
		assert.Equal(t, AttrFolder, string(attr.Key))
		assert.Equal(t, "/drafts", attr.Value.AsString())
	})

	t.Run("Owner", func(t *testing.T) {
		attr := Owner("alice")
		assert.Equal(t, AttrOwner, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("Target", func(t *testing.T) {
		attr := Target("bob")
		assert.Equal(t, AttrTarget, string(attr.Key))
		assert.Equal(t, "bob", attr.Value.AsString())
	})

	t.Run("Permission", func(t *testing.T) {
		attr := Permission("WRITE")
		assert.Equal(t, AttrPermission, string(attr.Key))
		assert.Equal(t, "WRITE", attr.Value.AsString())
	})

	t.Run("SentenceNum", func(t *testing.T) {
		attr := SentenceNum(3)
		assert.Equal(t, AttrSentenceNum, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("WordIndex", func(t *testing.T) {
		attr := WordIndex(5)
		assert.Equal(t, AttrWordIndex, string(attr.Key))
		assert.Equal(t, int64(5), attr.Value.AsInt64())
	})

	t.Run("CheckpointTag", func(t *testing.T) {
		attr := CheckpointTag("v1")
		assert.Equal(t, AttrCheckpointTag, string(attr.Key))
		assert.Equal(t, "v1", attr.Value.AsString())
	})

	t.Run("SSAddr", func(t *testing.T) {
		attr := SSAddr("127.0.0.1:9001")
		assert.Equal(t, AttrSSAddr, string(attr.Key))
		assert.Equal(t, "127.0.0.1:9001", attr.Value.AsString())
	})

	t.Run("CacheHit", func(t *testing.T) {
		attr := CacheHit(true)
		assert.Equal(t, AttrCacheHit, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("CacheSource", func(t *testing.T) {
		attr := CacheSource("lru")
		assert.Equal(t, AttrCacheSource, string(attr.Key))
		assert.Equal(t, "lru", attr.Value.AsString())
	})

	t.Run("Status", func(t *testing.T) {
		attr := Status("ok")
		assert.Equal(t, AttrStatus, string(attr.Key))
		assert.Equal(t, "ok", attr.Value.AsString())
	})
}

func TestStartNSSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartNSSpan(ctx, SpanNSCreate, "report.txt")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartNSSpan(ctx, SpanNSAddAccess, "report.txt", Target("bob"), Permission("READ"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartSSSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartSSSpan(ctx, SpanSSWrite, "report.txt", SentenceNum(1), WordIndex(3))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartSSSpan(ctx, SpanSSCheckpoint, "report.txt", CheckpointTag("v1"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartCacheSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartCacheSpan(ctx, SpanCacheLookup)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartCacheSpan(ctx, SpanCacheEvict, CacheHit(false))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartTrieSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartTrieSpan(ctx, SpanTrieLookup, "report.txt")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

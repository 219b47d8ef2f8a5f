package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "rebuild", "gen-1")
	_, build := StartChildSpan(ctx, "build")
	build.SetAttr("posts", 12)
	build.End(nil)
	_, publish := StartChildSpan(ctx, "publish")
	publish.End(errors.New("rename failed"))
	root.End(nil)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "gen-1", root.Children[0].TraceID)
	posts, ok := build.Attr("posts")
	require.True(t, ok)
	assert.Equal(t, 12, posts)
	assert.Same(t, root, SpanFromContext(ctx))

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "rename failed")
	assert.Contains(t, lines[2], "level=WARN")
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End(nil)
	assert.Empty(t, span.TraceID)
	_, ok := span.Attr("missing")
	assert.False(t, ok)
}

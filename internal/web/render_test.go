package web

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matst80/rendezvous/internal/proto"
)

func TestRenderDashboard(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, "dashboard", map[string]any{
		"Indexed":   2,
		"Active":    1,
		"Streaming": 0,
		"Bytes":     int64(2048),
		"Sessions": []proto.Summary{
			{ID: "s-1", State: "CREATED", Active: true, CreatedAt: time.Now()},
			{ID: "s-2", State: "SRC_ERROR", Error: proto.StreamFailure(true, false), BytesTransferred: 3},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<h1>rendezvous</h1>")
	assert.Contains(t, out, "s-1")
	assert.Contains(t, out, `class="inactive"`)
	assert.Contains(t, out, "StreamSourceError: Stream source raised an error")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "rendered ")
}

func TestRenderMissingData(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, "dashboard", nil))
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "dashboard", map[string]any{"Bytes": int64(0)}))
	assert.Contains(t, buf.String(), "no sessions")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "12 B", humanBytes(12))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "3.0 MiB", humanBytes(3<<20))
}

func TestRenderUnknownFallsBackToBase(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "nope", map[string]any{"Bytes": int64(0)}))
	assert.Contains(t, buf.String(), "<h1>rendezvous</h1>")
	assert.Contains(t, buf.String(), "rendered ")
}

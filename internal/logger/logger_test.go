package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("should not appear")
	Info("should not appear either")
	Warn("this one shows", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "this one shows")
	assert.Contains(t, out, "key=value")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "json", false)

	Info("hello", "request_id", uint64(42))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.EqualValues(t, 42, decoded["request_id"])
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	ctx := WithContext(context.Background(), &LogContext{ChannelID: "10.0.0.1:4000", RequestID: 7})
	DebugCtx(ctx, "dispatching")

	out := buf.String()
	assert.Contains(t, out, "channel=10.0.0.1:4000")
	assert.Contains(t, out, "request_id=7")
}

func TestColorTextHandlerPinsCorrelationFieldsFirst(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	Info("chunk sent", "bytes", 128, "stream_id", uint64(9), "channel", "10.0.0.1:4000")

	out := buf.String()
	channelIdx := strings.Index(out, "channel=")
	streamIdx := strings.Index(out, "stream_id=")
	bytesIdx := strings.Index(out, "bytes=")
	require.True(t, channelIdx >= 0 && streamIdx >= 0 && bytesIdx >= 0)
	assert.Less(t, channelIdx, streamIdx, "channel should be pinned ahead of stream_id")
	assert.Less(t, streamIdx, bytesIdx, "stream_id should be pinned ahead of unpinned attrs")
}

func TestColorTextHandlerOmitsEscapesWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)
	Info("plain")
	assert.False(t, strings.Contains(buf.String(), "\033["))
}

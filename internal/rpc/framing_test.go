package rpc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{}))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFrame_RejectsOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{}))
	// Overwrite the length prefix with something past MaxMessageBytes.
	raw := buf.Bytes()
	raw[0] = 0xFF
	raw[1] = 0xFF
	raw[2] = 0xFF
	raw[3] = 0xFF

	_, err := ReadFrame(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "exceeds"))
	assert.ErrorIs(t, err, ErrOversizeMessage)
}

func TestReadFrame_TruncatedStreamErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	truncated := buf.Bytes()[:6] // length prefix plus one byte of body

	_, err := ReadFrame(bytes.NewReader(truncated))
	require.Error(t, err)
}

package gateway

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundtrip(t *testing.T) {
	f, err := NewFrame(EvtStatusUpdate, "corr-1", StatusUpdate{
		ServerID:    "w-1",
		NewStatus:   "running",
		ContainerID: "abc123",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, EvtStatusUpdate, got.Type)
	assert.Equal(t, "corr-1", got.CorrelationID)

	var e StatusUpdate
	require.NoError(t, got.Decode(&e))
	assert.Equal(t, "w-1", e.ServerID)
	assert.Equal(t, "running", e.NewStatus)
	assert.Equal(t, "abc123", e.ContainerID)
}

func TestFrameWithoutPayload(t *testing.T) {
	f, err := NewFrame(EvtHeartbeat, "", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, EvtHeartbeat, got.Type)
	assert.Empty(t, got.Payload)

	var v struct{}
	assert.Error(t, got.Decode(&v))
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	chunk := BlobChunk{TargetPath: "big.tar.gz", Data: make([]byte, MaxFrameSize)}
	f, err := NewFrame(CmdUploadChunk, "", chunk)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = WriteFrame(&buf, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
	assert.Zero(t, buf.Len(), "nothing must hit the wire")
}

func TestReadFrameRejectsBadLength(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
	}{
		{name: "zero length", length: 0},
		{name: "over the cap", length: MaxFrameSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], tt.length)
			buf.Write(hdr[:])

			_, err := ReadFrame(&buf)
			require.Error(t, err)
		})
	}
}

func TestReadFrameRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 100)
	buf.Write(hdr[:])
	buf.WriteString(`{"type":"hello"}`)

	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestChunkDataSurvivesEncoding(t *testing.T) {
	data := make([]byte, MaxChunkData)
	for i := range data {
		data[i] = byte(i % 251)
	}
	f, err := NewFrame(CmdUploadChunk, "", BlobChunk{TargetPath: "a.bin", Seq: 7, Data: data})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)

	var chunk BlobChunk
	require.NoError(t, got.Decode(&chunk))
	assert.Equal(t, 7, chunk.Seq)
	assert.Equal(t, data, chunk.Data)
}

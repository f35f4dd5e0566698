package frame_test

import (
	"encoding/binary"
	"testing"

	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	f := &frame.Frame{
		ID:        7,
		Timestamp: 1.5,
		Meta: map[string]any{
			"topic":  "cam",
			"raw":    []byte{0x01, 0x02},
			"count":  int64(42),
			"active": true,
		},
		Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}

	buf := frame.Encode(f)
	got, err := frame.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), got.ID)
	assert.Equal(t, 1.5, got.Timestamp)
	assert.Equal(t, "cam", got.Topic())
	assert.Equal(t, []byte{0x01, 0x02}, got.Meta["raw"])
	assert.Equal(t, true, got.Meta["active"])
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got.Payload)

	// encode(decode(b)) must reproduce b for any encoder output
	assert.Equal(t, buf, frame.Encode(got))
}

func TestPeekIDWithoutDecoding(t *testing.T) {
	f := frame.New(4242, []byte("payload"))
	buf := frame.Encode(f)

	id, err := frame.PeekID(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), id)

	// First four bytes are the id, big endian, by contract.
	assert.Equal(t, uint32(4242), binary.BigEndian.Uint32(buf[:4]))
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := frame.Decode([]byte{0x00, 0x01})
	require.Error(t, err)
	assert.True(t, frame.IsMalformed(err))

	_, err = frame.PeekID([]byte{0x00})
	require.Error(t, err)
	assert.True(t, frame.IsMalformed(err))
}

func TestDecodeMetaLengthOverflow(t *testing.T) {
	f := frame.New(1, []byte("x"))
	buf := frame.Encode(f)

	// Claim more metadata than the buffer holds.
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(buf)))
	_, err := frame.Decode(buf)
	require.Error(t, err)
	assert.True(t, frame.IsMalformed(err))
}

func TestEncodeNilMetaIsTotal(t *testing.T) {
	f := &frame.Frame{ID: 3, Timestamp: 9.0, Payload: []byte("p")}
	got, err := frame.Decode(frame.Encode(f))
	require.NoError(t, err)
	assert.NotNil(t, got.Meta)
	assert.Empty(t, got.Topic())
}

func TestEmptyPayload(t *testing.T) {
	f := frame.New(9, nil)
	got, err := frame.Decode(frame.Encode(f))
	require.NoError(t, err)
	assert.Equal(t, uint32(9), got.ID)
	assert.Empty(t, got.Payload)
}

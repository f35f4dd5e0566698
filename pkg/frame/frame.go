// Package frame implements the wire codec for pipeline frames.
//
// A frame travels as a self-describing byte buffer:
//
//	[frame_id u32 BE][timestamp f64 BE][meta_len u32 BE][meta bytes][payload bytes]
//
// The frame id is extractable from the first four bytes without touching the
// metadata; the broker relies on this to index payloads cheaply. Metadata is a
// compact CBOR map that round-trips UTF-8 keys with byte-string, numeric and
// boolean values. The payload consumes the remainder of the buffer - there is
// no trailing length, the enclosing transport frames the message.
package frame

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// headerSize covers frame_id, timestamp and meta_len.
const headerSize = 4 + 8 + 4

// metaEncMode sorts map keys so equal metadata always encodes to the same
// bytes.
var metaEncMode, _ = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()

// Frame is the unit of data flowing through the pipeline. Treat it as
// immutable once handed to a handler.
type Frame struct {
	// ID is a per-producer counter, strictly increasing until it wraps at 2^32.
	ID uint32

	// Timestamp is seconds since epoch at capture time.
	Timestamp float64

	// Meta carries routing and annotation data. Always includes "topic" when
	// the frame is routed through TCP.
	Meta map[string]any

	// Payload is an opaque byte sequence, typically an encoded image.
	Payload []byte
}

// New builds a frame stamped with the current wall clock.
func New(id uint32, payload []byte) *Frame {
	return &Frame{
		ID:        id,
		Timestamp: Now(),
		Meta:      map[string]any{},
		Payload:   payload,
	}
}

// Now returns the current time as epoch seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Topic returns the routing topic from metadata, or "" if unset.
func (f *Frame) Topic() string {
	if f.Meta == nil {
		return ""
	}
	if t, ok := f.Meta["topic"].(string); ok {
		return t
	}
	return ""
}

// SetMeta assigns a metadata key, allocating the map on first use.
func (f *Frame) SetMeta(key string, value any) {
	if f.Meta == nil {
		f.Meta = map[string]any{}
	}
	f.Meta[key] = value
}

// Encode serializes the frame into its wire form. Encoding is total: a frame
// whose metadata cannot be marshalled is encoded with empty metadata instead,
// so a producer's hot path never fails on annotation garbage.
func Encode(f *Frame) []byte {
	meta, err := metaEncMode.Marshal(f.Meta)
	if err != nil || f.Meta == nil {
		meta, _ = metaEncMode.Marshal(map[string]any{})
	}

	buf := make([]byte, headerSize+len(meta)+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], f.ID)
	binary.BigEndian.PutUint64(buf[4:12], math.Float64bits(f.Timestamp))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(meta)))
	copy(buf[headerSize:], meta)
	copy(buf[headerSize+len(meta):], f.Payload)
	return buf
}

// Decode parses a wire-form buffer back into a frame.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < headerSize {
		return nil, ErrMalformed("buffer shorter than frame header", nil)
	}

	metaLen := binary.BigEndian.Uint32(buf[12:16])
	if uint64(headerSize)+uint64(metaLen) > uint64(len(buf)) {
		return nil, ErrMalformed("metadata length exceeds buffer", nil)
	}

	f := &Frame{
		ID:        binary.BigEndian.Uint32(buf[0:4]),
		Timestamp: math.Float64frombits(binary.BigEndian.Uint64(buf[4:12])),
	}

	metaEnd := headerSize + int(metaLen)
	if metaLen > 0 {
		meta := map[string]any{}
		if err := cbor.Unmarshal(buf[headerSize:metaEnd], &meta); err != nil {
			return nil, ErrMalformed("metadata does not parse", err)
		}
		f.Meta = normalizeMeta(meta)
	} else {
		f.Meta = map[string]any{}
	}

	// Payload aliases the input buffer; callers that retain the frame past
	// the buffer's lifetime must copy.
	f.Payload = buf[metaEnd:]
	return f, nil
}

// PeekID extracts the frame id without decoding the rest of the buffer.
func PeekID(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, ErrMalformed("buffer shorter than frame id", nil)
	}
	return binary.BigEndian.Uint32(buf[0:4]), nil
}

// normalizeMeta flattens cbor's interface{} keys so metadata round-trips as
// map[string]any regardless of how the encoder typed the map.
func normalizeMeta(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[any]any:
			nested := make(map[string]any, len(t))
			for nk, nv := range t {
				if s, ok := nk.(string); ok {
					nested[s] = nv
				}
			}
			out[k] = nested
		default:
			out[k] = v
		}
	}
	return out
}

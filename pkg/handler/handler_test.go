package handler_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolgugu/edgeflow/pkg/broker/adapters/memory"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/handler"
)

func TestBrokerHandlerPublishesToSourceTopic(t *testing.T) {
	b := memory.New()
	h := handler.NewBrokerHandler(b, "camera", 100)
	defer h.Close()

	f := frame.New(1, []byte("jpeg"))
	h.Send(f)

	got := b.Pop(context.Background(), "camera", time.Second)
	require.NotNil(t, got)
	decoded, err := frame.Decode(got)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), decoded.ID)
	assert.Equal(t, []byte("jpeg"), decoded.Payload)
}

func TestBrokerHandlerRealtimeCapacity(t *testing.T) {
	b := memory.New()
	h := handler.NewBrokerHandler(b, "camera", 1)
	defer h.Close()

	ctx := context.Background()
	for id := uint32(1); id <= 5; id++ {
		h.Send(frame.New(id, []byte("x")))
	}
	assert.Equal(t, 1, b.QueueSize(ctx, "camera"))

	got := b.PopLatest(ctx, "camera", time.Second)
	require.NotNil(t, got)
	id, _ := frame.PeekID(got)
	assert.Equal(t, uint32(5), id)
}

// fakeGateway accepts one connection and decodes length-prefixed frames.
func fakeGateway(t *testing.T) (net.Listener, chan *frame.Frame) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	frames := make(chan *frame.Frame, 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var lenBuf [4]byte
			if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
				return
			}
			body := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			f, err := frame.Decode(body)
			if err != nil {
				return
			}
			frames <- f
		}
	}()
	return ln, frames
}

func TestTCPHandlerDeliversRoutedFrames(t *testing.T) {
	ln, frames := fakeGateway(t)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	h := handler.NewTCPHandler("127.0.0.1", addr.Port, "cam0")
	defer h.Close()

	h.Send(&frame.Frame{ID: 9, Timestamp: 2.5, Payload: []byte("img")})

	select {
	case f := <-frames:
		assert.Equal(t, uint32(9), f.ID)
		assert.Equal(t, "cam0", f.Topic())
		assert.Equal(t, []byte("img"), f.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestTCPHandlerSurvivesUnreachableGateway(t *testing.T) {
	h := handler.NewTCPHandler("127.0.0.1", 1, "cam0")
	defer h.Close()

	// Sends must neither block nor panic while the gateway is down.
	done := make(chan struct{})
	go func() {
		for id := uint32(1); id <= 100; id++ {
			h.Send(frame.New(id, []byte("x")))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Send blocked on unreachable gateway")
	}
}

func TestTCPHandlerCloseIsIdempotent(t *testing.T) {
	h := handler.NewTCPHandler("127.0.0.1", 1, "cam0")
	h.Close()
	h.Close()
	h.Send(frame.New(1, []byte("x"))) // after close: dropped, no panic
}

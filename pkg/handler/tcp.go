package handler

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

const (
	// queueCap bounds frames waiting on the background sender.
	queueCap = 10

	connectTimeout = time.Second
	closeJoinWait  = time.Second
)

// TCPHandler streams frames to a gateway ingress over a lazily established
// TCP connection. Send enqueues (drop-oldest when full) and returns; a
// background sender owns the socket, writes [len u32 BE][frame] and
// reconnects on the next frame after any I/O error.
type TCPHandler struct {
	addr     string
	sourceID string

	queue chan *frame.Frame
	done  chan struct{}
	idle  chan struct{}

	conn net.Conn
}

// NewTCPHandler starts the background sender for the given gateway endpoint.
// sourceID is the logical channel injected into each frame's metadata for
// ingress routing.
func NewTCPHandler(host string, port int, sourceID string) *TCPHandler {
	h := &TCPHandler{
		addr:     fmt.Sprintf("%s:%d", host, port),
		sourceID: sourceID,
		queue:    make(chan *frame.Frame, queueCap),
		done:     make(chan struct{}),
		idle:     make(chan struct{}),
	}
	go h.sender()
	return h
}

// SourceID returns the logical channel name stamped into routed frames.
func (h *TCPHandler) SourceID() string { return h.sourceID }

// Send stamps the routing topic and enqueues the frame. A full queue evicts
// the oldest entry so the stream stays fresh. The frame is shallow-copied so
// the routing stamp never leaks into sibling handlers.
func (h *TCPHandler) Send(f *frame.Frame) {
	if f == nil {
		return
	}

	routed := &frame.Frame{
		ID:        f.ID,
		Timestamp: f.Timestamp,
		Meta:      make(map[string]any, len(f.Meta)+1),
		Payload:   f.Payload,
	}
	for k, v := range f.Meta {
		routed.Meta[k] = v
	}
	routed.Meta["topic"] = h.sourceID
	f = routed

	for {
		select {
		case <-h.done:
			return
		case h.queue <- f:
			return
		default:
		}
		select {
		case <-h.queue:
			logger.L().Debug("frame evicted", "error", ErrBacklog(h.addr))
		default:
		}
	}
}

// Close stops the sender, allowing up to one second for the queue to drain,
// then closes the socket.
func (h *TCPHandler) Close() {
	select {
	case <-h.done:
		return
	default:
	}
	close(h.done)

	select {
	case <-h.idle:
	case <-time.After(closeJoinWait):
	}
}

// sender drains the queue onto the socket. It drains remaining frames after
// Close before exiting.
func (h *TCPHandler) sender() {
	defer func() {
		h.closeConn()
		close(h.idle)
	}()

	for {
		select {
		case f := <-h.queue:
			h.write(f)
		case <-h.done:
			for {
				select {
				case f := <-h.queue:
					h.write(f)
				default:
					return
				}
			}
		}
	}
}

func (h *TCPHandler) write(f *frame.Frame) {
	if h.conn == nil {
		conn, err := net.DialTimeout("tcp", h.addr, connectTimeout)
		if err != nil {
			logger.L().Warn("gateway unreachable", "error", ErrConnFailed(h.addr, err))
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		h.conn = conn
		logger.L().Info("connected to gateway", "addr", h.addr, "source_id", h.sourceID)
	}

	body := frame.Encode(f)
	packet := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(packet[:4], uint32(len(body)))
	copy(packet[4:], body)

	if _, err := h.conn.Write(packet); err != nil {
		logger.L().Warn("gateway send failed", "error", ErrWriteFailed(h.addr, err))
		h.closeConn()
	}
}

func (h *TCPHandler) closeConn() {
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
}

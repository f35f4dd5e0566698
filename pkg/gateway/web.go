// Package gateway implements the ingress surface of a gateway node.
//
// The Web interface accepts length-prefixed framed TCP from any number of
// upstream senders, routes each frame by its metadata topic into a per-topic
// jitter buffer, and serves MJPEG streams, JSON introspection, a live
// websocket stats feed, Prometheus metrics and an HTML dashboard over HTTP.
package gateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/concurrency"
	"github.com/seolgugu/edgeflow/pkg/config"
	"github.com/seolgugu/edgeflow/pkg/errframe"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// maxIngressFrame guards the length prefix against garbage connections.
const maxIngressFrame = 32 << 20

// WebConfig configures the combined TCP+HTTP ingress interface.
type WebConfig struct {
	// TCPPort accepts upstream producers. 0 means the GATEWAY_TCP_PORT
	// environment default.
	TCPPort int

	// HTTPPort serves streams and stats. 0 means the GATEWAY_HTTP_PORT
	// environment default.
	HTTPPort int

	// BufferDelay is the jitter compensation in seconds. 0 plays frames as
	// they arrive.
	BufferDelay float64
}

// Web is the gateway ingress interface. One mutex guards buffers, arrival
// timestamps and latest metadata; every mutation goes through it.
type Web struct {
	cfg    WebConfig
	broker broker.Broker

	mu         sync.Mutex
	buffers    map[string]*JitterBuffer
	fps        *fpsTracker
	fpsStats   map[string]TopicFPS
	latestMeta map[string]map[string]any

	clientsMu sync.Mutex
	clients   map[*wsClient]bool

	placeholder []byte
	routes      []customRoute
}

// NewWeb creates the interface; ports resolve against the environment at
// Start.
func NewWeb(cfg WebConfig) *Web {
	return &Web{
		cfg:        cfg,
		buffers:    map[string]*JitterBuffer{},
		fps:        newFPSTracker(),
		fpsStats:   map[string]TopicFPS{},
		latestMeta: map[string]map[string]any{},
		clients:    map[*wsClient]bool{},
	}
}

// Bind hands the interface the node's broker for queue introspection.
func (w *Web) Bind(b broker.Broker) { w.broker = b }

// Start serves TCP ingress, HTTP and the stats broadcaster until ctx is
// canceled.
func (w *Web) Start(ctx context.Context) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if w.cfg.TCPPort == 0 {
		w.cfg.TCPPort = settings.GatewayTCPPort
	}
	if w.cfg.HTTPPort == 0 {
		w.cfg.HTTPPort = settings.GatewayHTTPPort
	}

	// Cached "no signal" asset, rendered once.
	w.placeholder = errframe.Render(errframe.NoSignal, "")

	tcpAddr := fmt.Sprintf(":%d", w.cfg.TCPPort)
	ln, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		return ErrListen(tcpAddr, err)
	}

	logger.L().InfoContext(ctx, "gateway ingress listening",
		"tcp_port", w.cfg.TCPPort, "http_port", w.cfg.HTTPPort,
		"buffer_delay", w.cfg.BufferDelay)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return w.serveTCP(ctx, ln) })
	eg.Go(func() error { return w.serveHTTP(ctx) })
	eg.Go(func() error { w.broadcastStats(ctx); return nil })
	return eg.Wait()
}

// serveTCP accepts upstream producer connections.
func (w *Web) serveTCP(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	concurrency.SafeGo(ctx, func() {
		<-ctx.Done()
		ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ErrListen(ln.Addr().String(), err)
		}
		concurrency.SafeGo(ctx, func() { w.readConn(ctx, conn) })
	}
}

// readConn decodes repeated [len u32 BE][frame] messages. A partial read or
// an undecodable frame closes the connection; the server keeps running.
func (w *Web) readConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	ingressConns.Inc()
	defer ingressConns.Dec()
	defer conn.Close()

	logger.L().InfoContext(ctx, "upstream connected", "remote", remote)

	var lenBuf [4]byte
	for ctx.Err() == nil {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			if err != io.EOF {
				logger.L().WarnContext(ctx, "upstream dropped", "error", ErrIngressIO(remote, err))
			}
			return
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length > maxIngressFrame {
			logger.L().WarnContext(ctx, "closing upstream", "error", ErrFrameTooBig(length))
			return
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(conn, body); err != nil {
			logger.L().WarnContext(ctx, "upstream dropped", "error", ErrIngressIO(remote, err))
			return
		}

		f, err := frame.Decode(body)
		if err != nil {
			logger.L().WarnContext(ctx, "closing upstream on bad frame",
				"remote", remote, "error", err)
			return
		}
		w.onFrame(f)
	}
}

// onFrame routes a decoded frame into its topic buffer and stats.
func (w *Web) onFrame(f *frame.Frame) {
	topic := f.Topic()
	if topic == "" {
		topic = "default"
	}
	now := frame.Now()

	var workerID string
	if id, ok := f.Meta["worker_id"].(string); ok {
		workerID = id
	}

	w.mu.Lock()
	buf, ok := w.buffers[topic]
	if !ok {
		buf = NewJitterBuffer(w.cfg.BufferDelay)
		w.buffers[topic] = buf
		logger.L().Info("new topic detected", "topic", topic)
	}
	buf.Push(f)
	w.fps.Record(topic, workerID, now)

	if len(f.Meta) > 0 {
		meta, ok := w.latestMeta[topic]
		if !ok {
			meta = map[string]any{}
			w.latestMeta[topic] = meta
		}
		for k, v := range f.Meta {
			meta[k] = v
		}
	}
	depth := buf.Len()
	w.mu.Unlock()

	framesIngested.WithLabelValues(topic).Inc()
	bufferDepth.WithLabelValues(topic).Set(float64(depth))
}

// popTopic takes the next deliverable payload for a stream, if any.
func (w *Web) popTopic(topic string) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf, ok := w.buffers[topic]
	if !ok {
		return nil
	}
	return buf.Pop()
}

// Placeholder returns the cached "no signal" JPEG served to starved streams.
func (w *Web) Placeholder() []byte { return w.placeholder }

// Route registers a custom HTTP route served alongside the built-in surface.
// Must be called before Start. h must be an echo.HandlerFunc or a
// func(echo.Context) error; values of any other type are not served.
func (w *Web) Route(method, path string, h any) {
	w.routes = append(w.routes, customRoute{method: method, path: path, handler: h})
}

// snapshot assembles the combined stats payload for websocket and metrics.
func (w *Web) snapshot(ctx context.Context) map[string]any {
	now := frame.Now()

	var queueStats map[string]broker.TopicStats
	if w.broker != nil {
		queueStats = w.broker.QueueStats(ctx)
	}

	w.mu.Lock()
	fps := w.fps.Snapshot(now)
	w.fpsStats = fps

	buffers := make(map[string]broker.TopicStats, len(w.buffers))
	for topic, buf := range w.buffers {
		buffers[topic] = broker.TopicStats{Current: buf.Len(), Max: buf.Cap()}
	}
	status := make(map[string]map[string]any, len(w.latestMeta))
	for topic, meta := range w.latestMeta {
		copied := make(map[string]any, len(meta))
		for k, v := range meta {
			copied[k] = v
		}
		status[topic] = copied
	}
	w.mu.Unlock()

	for topic, stat := range buffers {
		bufferDepth.WithLabelValues(topic).Set(float64(stat.Current))
	}
	for topic, stat := range queueStats {
		queueDepth.WithLabelValues(topic).Set(float64(stat.Current))
	}
	for topic, f := range fps {
		topicFPS.WithLabelValues(topic).Set(f.Total)
	}

	return map[string]any{
		"fps":     fps,
		"buffers": buffers,
		"queues":  queueStats,
		"status":  status,
	}
}

// broadcastStats pushes a snapshot to every websocket client at ~10 Hz.
func (w *Web) broadcastStats(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.closeClients()
			return
		case <-ticker.C:
			w.sendStats(ctx)
		}
	}
}

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

const (
	mjpegContentType = "multipart/x-mixed-replace; boundary=frameboundary"

	// noSignalAfter is how long a stream may starve before the placeholder
	// kicks in, throttled to placeholderEvery.
	noSignalAfter    = 2 * time.Second
	placeholderEvery = 500 * time.Millisecond

	// streamPoll paces the generator when nothing is deliverable.
	streamPoll = 10 * time.Millisecond
)

type customRoute struct {
	method  string
	path    string
	handler any
}

// serveHTTP runs the echo server until ctx is canceled.
func (w *Web) serveHTTP(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/dashboard")
	})
	e.GET("/dashboard", w.handleDashboard)
	e.GET("/video", func(c echo.Context) error { return w.streamTopic(c, "default") })
	e.GET("/video/:topic", func(c echo.Context) error {
		return w.streamTopic(c, c.Param("topic"))
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/api/status", w.handleStatus)
	e.GET("/api/fps", w.handleFPS)
	e.GET("/api/resources", w.handleResources)
	e.GET("/ws/stats", w.handleWS)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	for _, r := range w.routes {
		var h echo.HandlerFunc
		switch fn := r.handler.(type) {
		case echo.HandlerFunc:
			h = fn
		case func(echo.Context) error:
			h = fn
		default:
			continue
		}
		e.Add(r.method, r.path, h)
		logger.L().Info("custom route added", "method", r.method, "path", r.path)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", w.cfg.HTTPPort))
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return ErrListen(fmt.Sprintf(":%d", w.cfg.HTTPPort), err)
	}
}

// streamTopic writes an MJPEG multipart stream for one topic. Starved
// streams show the cached placeholder instead of stalling the response.
func (w *Web) streamTopic(c echo.Context, topic string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, mjpegContentType)
	res.WriteHeader(http.StatusOK)

	logger.L().Info("stream started", "topic", topic)
	defer logger.L().Info("stream stopped", "topic", topic)

	ctx := c.Request().Context()
	lastData := time.Now()
	var lastPlaceholder time.Time

	// Delivered frames pace faster in low-latency mode.
	deliveredPause := time.Millisecond
	if w.cfg.BufferDelay > 0 {
		deliveredPause = streamPoll
	}

	for ctx.Err() == nil {
		if data := w.popTopic(topic); data != nil {
			if err := writePart(res, data); err != nil {
				return nil
			}
			lastData = time.Now()
			if !sleepStream(ctx, deliveredPause) {
				return nil
			}
			continue
		}

		if time.Since(lastData) > noSignalAfter {
			if time.Since(lastPlaceholder) >= placeholderEvery {
				if err := writePart(res, w.placeholder); err != nil {
					return nil
				}
				lastPlaceholder = time.Now()
			}
		}
		if !sleepStream(ctx, streamPoll) {
			return nil
		}
	}
	return nil
}

func writePart(res *echo.Response, data []byte) error {
	if _, err := fmt.Fprintf(res,
		"--frameboundary\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
		return err
	}
	if _, err := res.Write(data); err != nil {
		return err
	}
	if _, err := fmt.Fprint(res, "\r\n"); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func sleepStream(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// handleStatus returns the latest metadata per topic.
func (w *Web) handleStatus(c echo.Context) error {
	w.mu.Lock()
	out := make(map[string]map[string]any, len(w.latestMeta))
	for topic, meta := range w.latestMeta {
		copied := make(map[string]any, len(meta))
		for k, v := range meta {
			copied[k] = v
		}
		out[topic] = copied
	}
	w.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

// handleFPS recomputes the rate stats, stores them as the cached copy the
// broadcaster also updates, and returns them.
func (w *Web) handleFPS(c echo.Context) error {
	w.mu.Lock()
	// Refresh in place so the endpoint works without websocket clients.
	stats := w.fps.Snapshot(frame.Now())
	w.fpsStats = stats
	w.mu.Unlock()
	return c.JSON(http.StatusOK, stats)
}

// handleResources returns jitter buffer and broker queue depths.
func (w *Web) handleResources(c echo.Context) error {
	w.mu.Lock()
	buffers := make(map[string]map[string]int, len(w.buffers))
	topics := make([]string, 0, len(w.buffers))
	for topic, buf := range w.buffers {
		buffers[topic] = map[string]int{"current": buf.Len(), "max": buf.Cap()}
		topics = append(topics, topic)
	}
	w.mu.Unlock()

	queues := map[string]int{}
	if w.broker != nil {
		ctx := c.Request().Context()
		for _, topic := range topics {
			queues[topic] = w.broker.QueueSize(ctx, topic)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"buffers": buffers,
		"queues":  queues,
	})
}

package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/seolgugu/edgeflow/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stats feed is same-origin on a dashboard or scraped by tools;
	// origin enforcement adds nothing on a cluster-internal port.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsClient wraps a stats subscriber; writeMu serializes broadcaster writes
// against close.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// handleWS upgrades a stats subscriber and parks until it disconnects.
func (w *Web) handleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{conn: conn}
	w.clientsMu.Lock()
	w.clients[client] = true
	w.clientsMu.Unlock()

	logger.L().Info("stats client connected", "remote", conn.RemoteAddr().String())

	// Reads only serve to detect the close; clients need not send anything.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	w.dropClient(client)
	return nil
}

// sendStats broadcasts one snapshot, dropping clients whose send fails.
// Iterates over a copy so connects and disconnects mid-iteration are safe.
func (w *Web) sendStats(ctx context.Context) {
	w.clientsMu.Lock()
	if len(w.clients) == 0 {
		w.clientsMu.Unlock()
		return
	}
	active := make([]*wsClient, 0, len(w.clients))
	for client := range w.clients {
		active = append(active, client)
	}
	w.clientsMu.Unlock()

	stats := w.snapshot(ctx)

	for _, client := range active {
		client.writeMu.Lock()
		err := client.conn.WriteJSON(stats)
		client.writeMu.Unlock()
		if err != nil {
			w.dropClient(client)
		}
	}
}

func (w *Web) dropClient(client *wsClient) {
	w.clientsMu.Lock()
	delete(w.clients, client)
	w.clientsMu.Unlock()
	_ = client.conn.Close()
}

func (w *Web) closeClients() {
	w.clientsMu.Lock()
	clients := make([]*wsClient, 0, len(w.clients))
	for client := range w.clients {
		clients = append(clients, client)
	}
	w.clients = map[*wsClient]bool{}
	w.clientsMu.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}

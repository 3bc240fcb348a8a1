package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/logger"
)

const (
	// wsWriteWait bounds a single frame write to a slow client.
	wsWriteWait = 10 * time.Second

	// wsPingInterval keeps idle streams alive through proxies.
	wsPingInterval = 30 * time.Second

	// wsReadLimit caps inbound frames; clients only ever send control
	// frames.
	wsReadLimit = 512
)

// StreamHandler serves live pipeline events over WebSocket. Each
// connection gets its own bus subscription; events arrive as JSON in
// publish order until the client disconnects or the subscription is
// closed.
type StreamHandler struct {
	bus      *events.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(bus *events.Bus, logger *slog.Logger) *StreamHandler {
	if bus == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("event bus cannot be nil for StreamHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for StreamHandler")
	}

	return &StreamHandler{
		bus:    bus,
		logger: logger.With(slog.String("component", "stream_handler")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary local hosts.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// StreamAll handles GET /ws/live requests, streaming every event on the
// bus.
func (h *StreamHandler) StreamAll(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// StreamTask handles GET /ws/live/{taskID} requests, streaming only that
// task's events.
func (h *StreamHandler) StreamTask(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "taskID"))
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, taskID string) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Debug("websocket close failed", slog.String("error", cerr.Error()))
		}
	}()

	sub := h.bus.Subscribe(taskID)
	defer h.bus.Unsubscribe(sub)

	log.Debug("stream opened",
		slog.String("task_id", taskID),
		slog.String("remote_addr", r.RemoteAddr))

	// Reader goroutine: clients never send data frames, but reading is
	// what processes control frames and detects the disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		conn.SetReadLimit(wsReadLimit)
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Subscription closed server-side (task deleted or bus
				// teardown); tell the client this is a normal end.
				deadline := time.Now().Add(wsWriteWait)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"),
					deadline)
				return
			}
			if werr := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); werr != nil {
				return
			}
			if werr := conn.WriteJSON(ev); werr != nil {
				log.Debug("stream write failed",
					slog.String("task_id", taskID),
					slog.String("error", werr.Error()))
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(wsWriteWait)
			if werr := conn.WriteControl(websocket.PingMessage, nil, deadline); werr != nil {
				return
			}

		case <-disconnected:
			log.Debug("stream client disconnected",
				slog.String("task_id", taskID),
				slog.String("remote_addr", r.RemoteAddr))
			return
		}
	}
}

package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accordlabs/accord/backend/internal/events"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
	"github.com/accordlabs/accord/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler delivers session events over Server-Sent Events for clients
// that cannot hold a websocket.
type Handler struct {
	mediationSvc *mediation.Service
	bus          *events.Bus
}

// New creates the SSE handler.
func New(mediationSvc *mediation.Service, bus *events.Bus) *Handler {
	return &Handler{mediationSvc: mediationSvc, bus: bus}
}

// RegisterRoutes mounts the event stream endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

// handleEvents streams bus events for one session until the client
// disconnects. Heartbeats keep intermediaries from closing the idle
// connection.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.mediationSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ch, cancel := h.bus.Subscribe(sessionID)
	defer cancel()

	ctx := r.Context()
	log.Printf("[sse] opening event stream session=%s", sessionID)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	utils.SendSSEChunk(w, flusher, map[string]any{
		"event":   "status",
		"message": "stream established",
	})

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing event stream session=%s", sessionID)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, string(ev.Type), ev)
		case t := <-ticker.C:
			utils.SendSSEChunk(w, flusher, map[string]any{
				"event": "heartbeat",
				"time":  t.UTC().Format(time.RFC3339),
			})
		}
	}
}

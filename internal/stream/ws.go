package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greensort-data/sortstream/internal/monitoring"
)

const (
	// maxFrameBytes caps a single websocket message. A 640x480 JPEG is
	// well under 1MB even base64-encoded.
	maxFrameBytes = 4 << 20

	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	// Browser clients connect from arbitrary origins on the LAN.
	CheckOrigin: func(*http.Request) bool { return true },
}

// controlMessage is a non-frame client message, e.g. {"mode":"classify"}.
type controlMessage struct {
	Mode *string `json:"mode"`
}

// Handler serves /ws/realtime: one Session per connection, frames
// processed serially from the read loop. Options are fetched per
// connection so runtime tuning updates apply to new sessions.
type Handler struct {
	opts     func() Options
	registry *Registry
}

// NewHandler returns a websocket handler that builds sessions from
// opts. registry may be nil.
func NewHandler(opts func() Options, registry *Registry) *Handler {
	return &Handler{opts: opts, registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	opts := h.opts()
	session, err := NewSession(opts)
	if err != nil {
		monitoring.Logf("session setup failed: %v", err)
		writeJSON(conn, &FrameResponse{Success: false, Error: "session setup failed"})
		return
	}

	if h.registry != nil {
		h.registry.add(session)
		defer h.registry.remove(session)
	}
	if m := opts.Metrics; m != nil {
		m.SessionOpened()
		defer m.SessionClosed()
	}
	monitoring.Logf("session %s: connected from %s", session.ID, r.RemoteAddr)

	ctx := r.Context()
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Logf("session %s: read error: %v", session.ID, err)
			}
			break
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		if resp, handled := handleControl(session, payload); handled {
			if err := writeJSON(conn, resp); err != nil {
				break
			}
			continue
		}

		resp := session.ProcessFrame(ctx, payload)
		if err := writeJSON(conn, resp); err != nil {
			monitoring.Logf("session %s: write error: %v", session.ID, err)
			break
		}
	}

	monitoring.Logf("session %s: disconnected after %d frames", session.ID, session.FrameCount())
}

// handleControl intercepts control messages. Frames are base64 strings
// or objects with an image field, so a JSON object bearing "mode" is
// unambiguous.
func handleControl(s *Session, payload []byte) (*FrameResponse, bool) {
	var ctrl controlMessage
	if err := json.Unmarshal(payload, &ctrl); err != nil || ctrl.Mode == nil {
		return nil, false
	}
	if err := s.SetMode(Mode(*ctrl.Mode)); err != nil {
		return &FrameResponse{Success: false, Error: err.Error()}, true
	}
	monitoring.Logf("session %s: mode set to %s", s.ID, s.Mode())
	return &FrameResponse{Success: true}, true
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

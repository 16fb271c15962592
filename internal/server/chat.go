package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string `json:"type"`       // "ask" or "reset"
	SessionID string `json:"session_id"` // empty for new sessions
	Content   string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string                 `json:"type"` // "token", "done", "reset" or "error"
	SessionID string                 `json:"session_id,omitempty"`
	Content   string                 `json:"content"`
	HTML      string                 `json:"html,omitempty"`
	Sources   []searchResultResponse `json:"sources,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", zap.Error(err))
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError(conn, "", "invalid message format")
			continue
		}

		switch req.Type {
		case "ask":
			if strings.TrimSpace(req.Content) == "" {
				s.sendError(conn, req.SessionID, "content is required")
				continue
			}
			if !s.streamAnswer(conn, r, req) {
				return
			}
		case "reset":
			if err := s.sessions.Reset(r.Context(), req.SessionID); err != nil {
				s.sendError(conn, req.SessionID, "reset failed: "+err.Error())
				continue
			}
			s.send(conn, chatResponse{Type: "reset", SessionID: req.SessionID})
		default:
			s.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
		}
	}
}

// streamAnswer relays answer fragments as token frames followed by a done
// frame. It reports whether the connection is still usable.
func (s *Server) streamAnswer(conn *websocket.Conn, r *http.Request, req chatRequest) bool {
	ctx := r.Context()
	sessionID, reply, err := s.startAnswer(ctx, req.SessionID, req.Content)
	if err != nil {
		s.sendError(conn, sessionID, "question failed: "+err.Error())
		return true
	}

	alive := true
	for fragment := range reply.Fragments() {
		if !alive {
			continue
		}
		if !s.send(conn, chatResponse{Type: "token", SessionID: sessionID, Content: fragment}) {
			alive = false
		}
	}

	if err := s.finishAnswer(ctx, sessionID, reply); err != nil {
		s.logger.Error("storing answer", zap.String("session_id", sessionID), zap.Error(err))
	}
	if !alive {
		return false
	}
	return s.send(conn, chatResponse{
		Type:      "done",
		SessionID: sessionID,
		Content:   reply.Text(),
		HTML:      s.renderMarkdown(reply.Text()),
		Sources:   toSearchResults(reply.Sources),
	})
}

func (s *Server) send(conn *websocket.Conn, resp chatResponse) bool {
	if err := conn.WriteJSON(resp); err != nil {
		s.logger.Warn("websocket write", zap.Error(err))
		return false
	}
	return true
}

func (s *Server) sendError(conn *websocket.Conn, sessionID, message string) {
	s.send(conn, chatResponse{Type: "error", SessionID: sessionID, Content: message})
}

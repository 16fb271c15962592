package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/session"
)

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type askResponse struct {
	Answer    string                 `json:"answer"`
	HTML      string                 `json:"html"`
	SessionID string                 `json:"session_id"`
	Sources   []searchResultResponse `json:"sources"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, errors.New("question is required"))
		return
	}

	ctx := r.Context()
	sessionID, reply, err := s.startAnswer(ctx, req.SessionID, req.Question)
	if err != nil {
		writeError(w, askStatus(err), err)
		return
	}
	for range reply.Fragments() {
	}
	if err := s.finishAnswer(ctx, sessionID, reply); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:    reply.Text(),
		HTML:      s.renderMarkdown(reply.Text()),
		SessionID: sessionID,
		Sources:   toSearchResults(reply.Sources),
	})
}

func askStatus(err error) int {
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// startAnswer records the question in the session, creating the session
// when sessionID is empty, and starts generating the answer.
func (s *Server) startAnswer(ctx context.Context, sessionID, question string) (string, *rag.Reply, error) {
	if sessionID == "" {
		sess, err := s.sessions.Create(ctx)
		if err != nil {
			return "", nil, err
		}
		sessionID = sess.ID
	}
	if _, err := s.sessions.Append(ctx, sessionID, session.RoleUser, question); err != nil {
		return sessionID, nil, err
	}

	reply, err := s.assistant.Ask(ctx, question)
	if err != nil {
		return sessionID, nil, err
	}
	return sessionID, reply, nil
}

// finishAnswer stores the answer once the reply stream is drained.
func (s *Server) finishAnswer(ctx context.Context, sessionID string, reply *rag.Reply) error {
	if err := reply.Err(); err != nil {
		s.logger.Warn("answer generation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	_, err := s.sessions.Append(ctx, sessionID, session.RoleAssistant, reply.Text())
	return err
}

func (s *Server) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		s.logger.Warn("rendering answer", zap.Error(err))
		return ""
	}
	return buf.String()
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Reset(r.Context(), id); err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionStatus(err error) int {
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/types"
	"github.com/conneroisu/livecanvas/internal/version"
)

const (
	maxCodeBytes      = 4 << 20
	maxOperationBytes = 1 << 20
)

// StartSessionRequest is the body of POST /api/sessions.
type StartSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Dialect   string `json:"dialect,omitempty"`
}

// CloseSessionResponse is the body returned by DELETE /api/sessions/{id}.
type CloseSessionResponse struct {
	Closed bool `json:"closed"`
}

// CodeResponse is the body of GET /api/sessions/{id}/code.
type CodeResponse struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

// HistoryResponse is the body of GET /api/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string               `json:"session_id"`
	Changes   []types.ChangeRecord `json:"changes"`
}

// ComponentsResponse is the body of GET /api/components.
type ComponentsResponse struct {
	Components []*registry.Entry    `json:"components"`
	Categories map[string][]string `json:"categories"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one failure. Fields lists the offending request
// fields of a validation failure.
type ErrorBody struct {
	Type    string   `json:"type"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"sessions":   s.sessions.Count(),
		"clients":    s.hub.ConnectedClients(""),
		"components": s.components.Count(),
	})
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ComponentsResponse{
		Components: s.components.GetAll(),
		Categories: s.components.Categories(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]session.Info{"sessions": s.sessions.List()})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := decodeJSON(w, r, maxCodeBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.sessions.StartSession(r.Context(), req.SessionID, req.Code, model.Dialect(req.Dialect))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleApplyChange(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOperationBytes))
	if err != nil {
		s.writeError(w, r, errors.ErrInvalidOperation("cannot read request body: "+err.Error()))
		return
	}

	op, err := types.DecodeOperation(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := op.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.sessions.ApplyChange(r.Context(), id, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.sessions.GetSessionInfo(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	closed, err := s.sessions.CloseSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CloseSessionResponse{Closed: closed})
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.sessions.Code(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CodeResponse{SessionID: id, Code: code})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	history, err := s.sessions.History(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []types.ChangeRecord{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Changes: history})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snapshot, err := s.sessions.Snapshot(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if r.URL.Query().Get("fragment") != "" {
		body, err := s.preview.RenderBody(snapshot.Model)
		if err != nil {
			s.writeError(w, r, errors.NewInternalError(errors.ErrCodeInternalError, "render preview", err))
			return
		}
		_, _ = io.WriteString(w, body)
		return
	}

	if err := s.preview.Render(r.Context(), w, id, snapshot.Model); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render preview", "session_id", id)
	}
}

// sessionID reads the {sessionID} route parameter, undoing path escaping.
func sessionID(r *http.Request) (string, error) {
	id, err := url.PathUnescape(chi.URLParam(r, "sessionID"))
	if err != nil || id == "" {
		return "", errors.NewValidationError(errors.ErrCodeValidationFailed, "malformed session id").
			WithContext("session_id", chi.URLParam(r, "sessionID"))
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "invalid JSON request: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and an ErrorResponse. Internal
// failures are logged and reported without their cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := ErrorBody{
		Type:    string(errors.ErrorTypeInternal),
		Code:    errors.ErrCodeInternalError,
		Message: "internal server error",
	}

	var ee *errors.EditorError
	if stderrors.As(err, &ee) {
		body.Type = string(ee.Type)
		body.Code = ee.Code
		if ee.Type != errors.ErrorTypeInternal {
			body.Message = ee.Message
		}
		if ee.Type == errors.ErrorTypeValidation && len(ee.Context) > 0 {
			for field := range ee.Context {
				body.Fields = append(body.Fields, field)
			}
			sort.Strings(body.Fields)
		}
	}

	if status >= http.StatusInternalServerError {
		s.errHandler.Handle(r.Context(), err)
	} else {
		s.logger.Debug(r.Context(), "Request rejected", "status", status, "error", err.Error())
	}

	writeJSON(w, status, ErrorResponse{Error: body})
}

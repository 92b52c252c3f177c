package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/regdesk/regdesk/internal/dispatch"
	"github.com/regdesk/regdesk/internal/photo"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/internal/webhook"
	"github.com/regdesk/regdesk/pkg/models"
)

// maxChatBody caps the /chat and /clear request bodies.
const maxChatBody = 64 * 1024

// maxUploadBody caps multipart upload bodies, with headroom over the photo
// size limit for the multipart framing.
const maxUploadBody = photo.MaxUploadBytes + 1<<20

type chatRequest struct {
	SessionID     string `json:"session_id"`
	UserMessage   string `json:"user_message"`
	RoutineNumber int    `json:"routine_number,omitempty"`
	LastAgent     string `json:"last_agent,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, maxChatBody, &req); err != nil {
		return
	}
	if req.UserMessage == "" {
		writeError(w, http.StatusBadRequest, "user_message is required")
		return
	}

	reply, err := s.cfg.Dispatcher.Handle(r.Context(), dispatch.TurnRequest{
		SessionID:     req.SessionID,
		Message:       req.UserMessage,
		HintRoutine:   req.RoutineNumber,
		HintLastAgent: models.AgentName(req.LastAgent),
	})
	if err != nil {
		switch {
		case errors.Is(err, sessions.ErrInvalidSessionID):
			writeError(w, http.StatusBadRequest, "invalid session id")
		case errors.Is(err, sessions.ErrSessionBusy):
			writeError(w, http.StatusConflict, "session busy, try again shortly")
		default:
			s.logger.Error("chat failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID, filename, contentType, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if s.cfg.AsyncPhoto {
		s.submitUpload(w, r, sessionID, filename, contentType, data)
		return
	}
	reply, err := s.cfg.Pipeline.Process(r.Context(), sessionID, filename, contentType, data)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"response":   reply,
	})
}

func (s *Server) handleUploadAsync(w http.ResponseWriter, r *http.Request) {
	sessionID, filename, contentType, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	s.submitUpload(w, r, sessionID, filename, contentType, data)
}

func (s *Server) submitUpload(w http.ResponseWriter, r *http.Request, sessionID, filename, contentType string, data []byte) {
	if err := s.cfg.Pipeline.Submit(r.Context(), sessionID, filename, contentType, data); err != nil {
		s.writeUploadError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"processing": true,
		"response":   "Your photo is being processed. I'll confirm once it's stored.",
	})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := sessions.ValidateID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	status, ok := s.cfg.Pipeline.Status(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "no upload for this session")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(w, r, maxChatBody, &req); err != nil {
		return
	}
	if err := sessions.ValidateID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := s.cfg.Sessions.Clear(r.Context(), req.SessionID); err != nil {
		s.logger.Error("clear failed", "session", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"model":    s.cfg.ModelName,
		"dev_mode": s.cfg.DevMode,
		"sessions": s.cfg.Sessions.Len(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"agents": []string{
			string(models.AgentGeneric),
			string(models.AgentNewRegistration),
			string(models.AgentReRegistration),
		},
	})
}

// handleAgentMode pins a session to an agent variant, for support staff
// steering a stuck conversation.
func (s *Server) handleAgentMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Mode      string `json:"mode"`
	}
	if err := decodeJSON(w, r, maxChatBody, &req); err != nil {
		return
	}
	if err := sessions.ValidateID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	mode := models.AgentName(req.Mode)
	switch mode {
	case models.AgentGeneric, models.AgentNewRegistration, models.AgentReRegistration:
	default:
		writeError(w, http.StatusBadRequest, "unknown mode")
		return
	}
	if err := s.cfg.Sessions.SetLastAgent(r.Context(), req.SessionID, mode); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID, "mode": req.Mode})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	results, err := s.cfg.Webhooks.Process(r.Context(), body, r.Header.Get("Webhook-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrBadSignature):
			writeError(w, http.StatusUnauthorized, "signature mismatch")
		case errors.Is(err, webhook.ErrTooManyEvents):
			writeError(w, http.StatusRequestEntityTooLarge, "too many events")
		default:
			writeError(w, http.StatusBadRequest, "invalid payload")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleRegSetup is the persistent link on club letters: it mints a fresh
// hosted payment flow for the billing request and redirects to it.
func (s *Server) handleRegSetup(w http.ResponseWriter, r *http.Request) {
	billingRequestID := r.PathValue("billing_request_id")
	if billingRequestID == "" {
		writeError(w, http.StatusBadRequest, "billing request id is required")
		return
	}
	url, err := s.cfg.Payments.CreatePaymentURL(r.Context(), billingRequestID)
	if err != nil {
		s.logger.Error("reg_setup flow failed", "billing_request", billingRequestID, "error", err)
		writeError(w, http.StatusBadGateway, "could not open a payment flow")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true
	for name, probe := range s.cfg.Probes {
		if err := probe.Health(ctx); err != nil {
			components[name] = "unreachable"
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}

// readUpload parses a multipart photo upload. The session id rides in a form
// field next to the file part.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (sessionID, filename, contentType string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	sessionID = r.FormValue("session_id")
	if err := sessions.ValidateID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file part is required")
		return
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, photo.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}
	return sessionID, header.Filename, header.Header.Get("Content-Type"), data, true
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, photo.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "photo exceeds the 10MB limit")
	case errors.Is(err, photo.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "only jpeg, png, webp and heic photos are accepted")
	case errors.Is(err, photo.ErrUploadInProgress):
		writeError(w, http.StatusConflict, "an upload is already being processed for this session")
	case errors.Is(err, sessions.ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, "invalid session id")
	case errors.Is(err, sessions.ErrSessionBusy):
		writeError(w, http.StatusConflict, "session busy, try again shortly")
	default:
		s.logger.Error("upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "photo processing failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

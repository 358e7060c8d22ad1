package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/koelab/koe-sentinel/internal/privacy"
	"github.com/koelab/koe-sentinel/internal/secrets"
	"github.com/koelab/koe-sentinel/internal/settings"
	"github.com/koelab/koe-sentinel/internal/websocket"
	"go.uber.org/zap"
)

const maxRequestBody = 32 << 20 // transcription payloads carry audio

type maskRequest struct {
	Text string `json:"text"`
}

type transcribeRequest struct {
	Audio string `json:"audio"` // base64
}

type reformatRequest struct {
	Text string `json:"text"`
}

// handleMask is the externally callable masking entry point. Every subsystem
// that is about to expose text calls this (or the pipeline behind it) first.
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var req maskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot := s.deps.Settings.Get()
	s.maskAndRespond(w, r, snapshot, req.Text)
}

// handleTranscribe runs the full dictation path: audio -> transcript ->
// reformat -> mask. No text is returned without passing the masking
// pipeline.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription is not configured")
		return
	}

	var req transcribeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio must be base64-encoded")
		return
	}

	snapshot := s.deps.Settings.Get()

	text, err := s.deps.Transcriber.Transcribe(r.Context(), snapshot, audio)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Transcription failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	if s.deps.Reformatter != nil {
		formatted, err := s.deps.Reformatter.Format(r.Context(), snapshot, text)
		if err != nil {
			// A reformat failure still yields usable dictation output.
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Reformat failed, using raw transcript", zap.Error(err))
		} else {
			text = formatted
		}
	}

	s.maskAndRespond(w, r, snapshot, text)
}

// handleReformat reformats caller-supplied text, then masks it.
func (s *Server) handleReformat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reformatter == nil {
		writeError(w, http.StatusServiceUnavailable, "reformatting is not configured")
		return
	}

	var req reformatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot := s.deps.Settings.Get()

	text, err := s.deps.Reformatter.Format(r.Context(), snapshot, req.Text)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Reformat failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "reformat failed")
		return
	}

	s.maskAndRespond(w, r, snapshot, text)
}

// maskAndRespond runs text through the masking pipeline and writes the
// outcome. A DLP block yields HTTP 422 with the fixed error message and no
// text; anything else returns the masked result.
func (s *Server) maskAndRespond(w http.ResponseWriter, r *http.Request, snapshot settings.Settings, text string) {
	result, err := s.deps.Masker.Mask(snapshot, text)
	if err != nil {
		if errors.Is(err, privacy.ErrDLPBlocked) {
			s.broadcastMasking(websocket.MaskingEvent{Blocked: true}, getRequestID(r.Context()))
			s.recordStats(snapshot, nil, "block")
			writeError(w, http.StatusUnprocessableEntity, privacy.ErrDLPBlocked.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "masking failed")
		return
	}

	action := privacy.ActionMask
	if result.Warned {
		action = privacy.ActionWarn
	}
	s.broadcastMasking(websocket.MaskingEvent{
		Findings: result.Findings,
		Warned:   result.Warned,
	}, getRequestID(r.Context()))
	s.recordStats(snapshot, result.Findings, action)

	writeJSON(w, http.StatusOK, result)
}

// broadcastMasking pushes a findings-only event to UI observers.
func (s *Server) broadcastMasking(event websocket.MaskingEvent, requestID string) {
	if s.deps.Hub == nil {
		return
	}
	s.deps.Hub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeMasking,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data:      event,
	})
}

// recordStats stores anonymous masking statistics when the user opted in.
// Failures are logged and otherwise ignored.
func (s *Server) recordStats(snapshot settings.Settings, findings []privacy.Finding, action string) {
	if s.deps.Stats == nil || !snapshot.EnableUsageStats {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Stats.RecordMasking(ctx, findings, action); err != nil {
		s.logger.Warn("Failed to record usage stats", zap.Error(err))
	}
}

// handleGetSettings returns a snapshot of the current settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

// handleUpdateSettings applies a partial update and returns the new
// settings. Validation failures leave the stored settings untouched.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	updated, err := s.deps.Settings.Update(patch)
	if err != nil {
		var validationErr *settings.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		s.logger.Error("Settings update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "settings update failed")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleKeysGet reports which API keys are configured, never their values.
func (s *Server) handleKeysGet(w http.ResponseWriter, r *http.Request) {
	presence, err := s.deps.Secrets.Presence()
	if err != nil {
		s.logger.Error("Failed to read secrets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read keys")
		return
	}
	writeJSON(w, http.StatusOK, presence)
}

// handleKeysSet merges non-empty keys into the secrets store.
func (s *Server) handleKeysSet(w http.ResponseWriter, r *http.Request) {
	var keys secrets.Keys
	if err := decodeBody(r, &keys); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.deps.Secrets.Set(keys); err != nil {
		s.logger.Error("Failed to store secrets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store keys")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleKeysClear removes one key (?which=groq|gemini) or all keys.
func (s *Server) handleKeysClear(w http.ResponseWriter, r *http.Request) {
	which := r.URL.Query().Get("which")
	if err := s.deps.Secrets.Clear(which); err != nil {
		s.logger.Error("Failed to clear secrets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear keys")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePTTStart marks the push-to-talk session active and notifies
// observers. Audio capture itself happens in the desktop client.
func (s *Server) handlePTTStart(w http.ResponseWriter, r *http.Request) {
	s.setRecording(true, "recording")
	w.WriteHeader(http.StatusNoContent)
}

// handlePTTStop marks the session as processing.
func (s *Server) handlePTTStop(w http.ResponseWriter, r *http.Request) {
	s.setRecording(false, "processing")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setRecording(active bool, state string) {
	s.mu.Lock()
	s.recording = active
	s.mu.Unlock()

	if s.deps.Hub != nil {
		s.deps.Hub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypePTTState,
			Timestamp: time.Now(),
			Data:      websocket.PTTStateEvent{State: state},
		})
	}
}

// decodeBody decodes a JSON request body into v with a size cap.
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

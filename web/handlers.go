package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/airlink/services"
)

// maxBody bounds request bodies; a full animated batch stays far below it.
const maxBody = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, services.ErrCodeInvalidInput, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *APIServer) HandleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.services.Codec.Formats())
}

func (s *APIServer) HandleEncode(w http.ResponseWriter, r *http.Request) {
	var req services.EncodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.services.Codec.Encode(req)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) HandleProtocols(w http.ResponseWriter, r *http.Request) {
	protocols, err := s.services.Protocols.ListProtocols()
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocols)
}

func (s *APIServer) HandleProtocolDetail(w http.ResponseWriter, r *http.Request) {
	protocol, err := s.services.Protocols.GetProtocol(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol)
}

func (s *APIServer) HandleQRSVG(w http.ResponseWriter, r *http.Request) {
	scale := 0
	if raw := r.URL.Query().Get("scale"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 64 {
			writeError(w, http.StatusBadRequest, services.ErrCodeInvalidInput, "scale must be between 1 and 64")
			return
		}
		scale = parsed
	}
	svg, err := s.services.Render.RenderSVG(r.URL.Query().Get("data"), scale)
	if err != nil {
		s.handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(svg)
}

func (s *APIServer) HandleQRPNG(w http.ResponseWriter, r *http.Request) {
	png, err := s.services.Render.RenderPNG(r.URL.Query().Get("data"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (s *APIServer) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.services.Sessions.OpenSession()
	if err != nil {
		s.handleError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+session.ID)
	writeJSON(w, http.StatusCreated, session)
}

func (s *APIServer) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.services.Sessions.ListSessions()
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *APIServer) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	session, err := s.services.Sessions.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *APIServer) HandleSubmitFrame(w http.ResponseWriter, r *http.Request) {
	var req services.FrameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.services.Sessions.SubmitFrame(chi.URLParam(r, "id"), req)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *APIServer) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Sessions.ResetSession(chi.URLParam(r, "id")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) HandleRelaySession(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Sessions.RelaySession(chi.URLParam(r, "id")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Sessions.CloseSession(chi.URLParam(r, "id")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleError handles service errors with proper HTTP status codes
func (s *APIServer) handleError(w http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if !errors.As(err, &serviceErr) {
		slog.Error("Service error", "error", err)
		writeError(w, http.StatusInternalServerError, services.ErrCodeInternal, "Internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch serviceErr.Code {
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case services.ErrCodeUnsupported:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		slog.Error("Service error", "error", err)
	} else {
		slog.Debug("Request rejected", "code", serviceErr.Code, "error", err)
	}
	writeError(w, status, serviceErr.Code, serviceErr.Message)
}

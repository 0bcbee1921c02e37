package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/support-agent/server/internal/agent/machine"
	errx "github.com/support-agent/server/internal/core/error"
	logx "github.com/support-agent/server/pkg/logger"
)

const maxUploadBytes = 5 << 20

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatMetadata struct {
	ConversationEnded bool `json:"conversation_ended"`
	EmailCollected    bool `json:"email_collected"`
}

type chatResponse struct {
	Response  string       `json:"response"`
	SessionID string       `json:"session_id"`
	Intent    string       `json:"intent"`
	Metadata  chatMetadata `json:"metadata"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Response,
		SessionID: result.SessionID,
		Intent:    string(result.Intent),
		Metadata: chatMetadata{
			ConversationEnded: result.Ended,
			EmailCollected:    result.EmailCollected,
		},
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "streaming no soportado"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emitted := false
	onChunk := func(chunk string) error {
		emitted = true
		return writeSSE(w, flusher, map[string]any{"chunk": chunk})
	}

	result, err := s.engine.ProcessTurnStream(r.Context(), req.SessionID, req.Message, onChunk)
	if err != nil {
		// Headers are already on the wire; the failure travels as an event.
		logx.Error().Err(err).Str("session_id", req.SessionID).Msg("streaming turn failed")
		detail := turnErrorDetail(err)
		_ = writeSSE(w, flusher, map[string]any{"error": detail, "done": true})
		return
	}

	done := map[string]any{
		"done":               true,
		"session_id":         result.SessionID,
		"intent":             string(result.Intent),
		"conversation_ended": result.Ended,
		"email_collected":    result.EmailCollected,
	}
	if !emitted {
		// Non-streamed node replies still surface as a single chunk.
		_ = writeSSE(w, flusher, map[string]any{"chunk": result.Response})
	}
	_ = writeSSE(w, flusher, done)
}

type uploadResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Source        string `json:"source"`
	ChunksCreated int    `json:"chunks_created"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "formulario multipart inválido"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "se requiere un archivo"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".md" && ext != ".txt" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"detail": fmt.Sprintf("tipo de archivo no soportado: %s (solo .md y .txt)", ext),
		})
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "error leyendo el archivo"})
		return
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "el archivo está vacío"})
		return
	}

	chunks, err := s.ingester.Ingest(r.Context(), s.collection, header.Filename, string(content))
	if err != nil {
		logx.Error().Err(err).Str("source", header.Filename).Msg("document ingestion failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "error procesando el documento"})
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:        "success",
		Message:       fmt.Sprintf("documento %q indexado", header.Filename),
		Source:        header.Filename,
		ChunksCreated: chunks,
	})
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	services := make(map[string]string, len(s.checks))

	g, ctx := errgroup.WithContext(ctx)
	for name, check := range s.checks {
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				services[name] = "unhealthy: " + err.Error()
			} else {
				services[name] = "healthy"
			}
			return nil
		})
	}
	_ = g.Wait()

	status := "healthy"
	for _, state := range services {
		if state != "healthy" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: status, Services: services})
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "cuerpo JSON inválido"})
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "el mensaje no puede estar vacío"})
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = newSessionID()
	}
	return req, true
}

func newSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func writeTurnError(w http.ResponseWriter, err error) {
	if errors.Is(err, machine.ErrSessionEnded) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"detail": "la conversación ya ha finalizado, inicia una nueva sesión",
		})
		return
	}

	var appErr *errx.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, map[string]string{"detail": appErr.Message})
		return
	}

	logx.Error().Err(err).Msg("turn processing failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "error procesando el mensaje"})
}

func turnErrorDetail(err error) string {
	if errors.Is(err, machine.ErrSessionEnded) {
		return "la conversación ya ha finalizado, inicia una nueva sesión"
	}
	var appErr *errx.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "error procesando el mensaje"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"qero/api/internal/auth"
	"qero/api/internal/dedupe"
	"qero/api/internal/identity"
)

const maxImportBatch = 5000

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
}

// NewHTTPServer builds the API router. metrics may be nil.
func NewHTTPServer(service *Service, corsOrigin string, metrics http.Handler) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, metrics: metrics}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.metrics != nil {
		s.metrics.ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "contacts" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 3 && parts[2] == "search" && r.Method == http.MethodGet:
		s.handleSearch(w, r, session)
	case len(parts) == 4 && parts[2] == "dedupe" && parts[3] == "preview" && r.Method == http.MethodPost:
		s.handlePreview(w, r, session)
	case len(parts) == 4 && parts[2] == "dedupe" && parts[3] == "preview" && r.Method == http.MethodGet:
		preview, err := s.service.LastPreview(r.Context(), session, r.URL.Query().Get("teamId"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	case len(parts) == 4 && parts[2] == "dedupe" && parts[3] == "apply" && r.Method == http.MethodPost:
		s.handleApply(w, r, session)
	case len(parts) == 4 && parts[2] == "import" && parts[3] == "check" && r.Method == http.MethodPost:
		s.handleImportCheck(w, r, session)
	case len(parts) == 3 && parts[2] == "import" && r.Method == http.MethodPost:
		s.handleImport(w, r, session)
	case len(parts) == 3 && parts[2] == "archive" && r.Method == http.MethodGet:
		s.handleListArchived(w, r, session)
	case len(parts) == 5 && parts[2] == "archive" && parts[4] == "restore" && r.Method == http.MethodPost:
		result, err := s.service.RestoreArchive(r.Context(), session, parts[3])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"archiveId":                    result.ArchiveID,
			"restoredContactId":            result.ContactID,
			"restoredCountsByRelationType": result.RelationCounts,
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := s.service.Readiness(ctx)
	names := s.service.CheckNames()
	sort.Strings(names)

	checks := make(map[string]any, len(names))
	for _, name := range names {
		if err, failed := failures[name]; failed {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status := "ready"
	statusCode := http.StatusOK
	if len(failures) > 0 {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type scopeBody struct {
	TeamID string `json:"teamId"`
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request, session Session) {
	var body scopeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	preview, err := s.service.PreviewDedupe(r.Context(), session, body.TeamID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleApply(w http.ResponseWriter, r *http.Request, session Session) {
	var body scopeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	summary, err := s.service.ApplyDedupe(r.Context(), session, body.TeamID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	// A partial run still answers 200; operators read status and errors.
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleImportCheck(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		TeamID     string               `json:"teamId"`
		Candidates []identity.Candidate `json:"candidates"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if len(body.Candidates) > maxImportBatch {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("at most %d candidates per request", maxImportBatch), nil)
		return
	}
	decisions, err := s.service.CheckImport(r.Context(), session, body.TeamID, body.Candidates)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": decisions})
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		TeamID  string                `json:"teamId"`
		Records []dedupe.ImportRecord `json:"records"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if len(body.Records) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "records are required", nil)
		return
	}
	if len(body.Records) > maxImportBatch {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("at most %d records per request", maxImportBatch), nil)
		return
	}
	result, err := s.service.Import(r.Context(), session, body.TeamID, body.Records)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListArchived(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	limit, err := queryInt(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a number", nil)
		return
	}
	offset, err := queryInt(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a number", nil)
		return
	}
	items, err := s.service.ListArchived(r.Context(), session, query.Get("teamId"), dedupe.Page{Limit: limit, Offset: offset})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	limit, err := queryInt(query.Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative number", nil)
		return
	}
	offset, err := queryInt(query.Get("offset"))
	if err != nil || offset < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative number", nil)
		return
	}
	resp, err := s.service.SearchContacts(session, text, limit, offset)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

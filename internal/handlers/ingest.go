package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"blobship/internal/logger"
)

// Offerer accepts a single record payload. It returns nil when the record
// was enqueued.
type Offerer interface {
	TryOffer(ctx context.Context, payload []byte) error
}

// IngestHandler accepts newline-delimited log records over HTTP
type IngestHandler struct {
	queue Offerer

	// Max body size (default 10MB)
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Queue       Offerer
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 10 * 1024 * 1024 // 10MB default
	}

	return &IngestHandler{
		queue:       cfg.Queue,
		maxBodySize: maxBodySize,
	}
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes why a specific line was rejected
type IngestError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !acceptedContentType(r.Header.Get("Content-Type")) {
		h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/x-ndjson, application/json or text/plain")
		return
	}

	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	lines := splitLines(body)
	if len(lines) == 0 {
		h.writeError(w, http.StatusBadRequest, "no records provided")
		return
	}

	response := h.offerLines(r.Context(), lines)

	log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
	log.Debug().
		Int("accepted", response.Accepted).
		Int("rejected", response.Rejected).
		Msg("ingest request processed")

	w.Header().Set("Content-Type", "application/json")
	if response.Accepted == 0 {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// offerLines pushes each line to the queue in order
func (h *IngestHandler) offerLines(ctx context.Context, lines []line) IngestResponse {
	response := IngestResponse{}

	for _, l := range lines {
		if err := h.queue.TryOffer(ctx, l.data); err != nil {
			response.Errors = append(response.Errors, IngestError{
				Line:  l.number,
				Error: err.Error(),
			})
			response.Rejected++
			continue
		}
		response.Accepted++
	}

	response.Success = response.Rejected == 0
	return response
}

type line struct {
	number int // 1-based line number in the body
	data   []byte
}

// splitLines returns the non-blank lines of body with any trailing \r removed
func splitLines(body []byte) []line {
	var out []line
	for i, raw := range bytes.Split(body, []byte{'\n'}) {
		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		out = append(out, line{number: i + 1, data: bytes.Clone(raw)})
	}
	return out
}

func acceptedContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "application/x-ndjson", "application/jsonl", "application/json", "text/plain":
		return true
	default:
		return false
	}
}

// writeError writes an error response
func (h *IngestHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

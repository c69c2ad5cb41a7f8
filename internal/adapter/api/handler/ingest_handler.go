package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/domain"
)

// LogIngester is the part of the ingest use case the handler depends on.
type LogIngester interface {
	Ingest(ctx context.Context, sub domain.Submission) (domain.LogRecord, error)
}

// IngestReporter receives one report per accepted submission.
type IngestReporter interface {
	ReportAccepted(tenantID string)
}

type acceptedResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	TenantID string `json:"tenant_id"`
	LogID    string `json:"log_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// IngestHandler handles HTTP requests for log ingestion.
type IngestHandler struct {
	useCase      LogIngester
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.IngestMetrics
	reporter     IngestReporter
}

// NewIngestHandler creates a new IngestHandler. m and reporter may be nil.
func NewIngestHandler(uc LogIngester, logger *slog.Logger, maxEventSize int64, m *metrics.IngestMetrics, reporter IngestReporter) *IngestHandler {
	return &IngestHandler{
		useCase:      uc,
		logger:       logger.With("component", "ingest_handler"),
		maxEventSize: maxEventSize,
		metrics:      m,
		reporter:     reporter,
	}
}

// ServeHTTP processes one JSON or plain-text submission.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	body, err := h.readBody(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || errors.Is(err, errDecompressedTooLarge) {
			h.count("error_size")
			respondWithJSON(w, h.logger, http.StatusRequestEntityTooLarge, errorResponse{Detail: "Payload too large"})
			return
		}
		h.count("error_validation")
		respondWithJSON(w, h.logger, http.StatusBadRequest, errorResponse{Detail: "Unreadable request body"})
		return
	}

	rec, err := h.useCase.Ingest(r.Context(), domain.Submission{
		ContentType:  r.Header.Get("Content-Type"),
		TenantHeader: r.Header.Get("X-Tenant-ID"),
		Body:         body,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnsupportedMedia):
		h.count("error_media_type")
		respondWithJSON(w, h.logger, http.StatusUnsupportedMediaType, errorResponse{Detail: "Unsupported Content-Type"})
		return
	case errors.Is(err, domain.ErrValidation):
		h.count("error_validation")
		respondWithJSON(w, h.logger, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	default:
		h.logger.Error("failed to ingest submission", "error", err)
		respondWithJSON(w, h.logger, http.StatusInternalServerError, errorResponse{Detail: "Internal Server Error"})
		return
	}

	h.count("accepted")
	if h.metrics != nil {
		h.metrics.BytesTotal.Add(float64(len(body)))
	}
	if h.reporter != nil {
		h.reporter.ReportAccepted(rec.TenantID)
	}

	respondWithJSON(w, h.logger, http.StatusAccepted, acceptedResponse{
		Status:   "accepted",
		Message:  "Log queued for processing",
		TenantID: rec.TenantID,
		LogID:    rec.LogID,
	})
}

var errDecompressedTooLarge = errors.New("decompressed body too large")

// readBody reads the request body, inflating it when it is gzip encoded.
// The size limit applies to the inflated bytes as well.
func (h *IngestHandler) readBody(r *http.Request) ([]byte, error) {
	if !strings.EqualFold(strings.TrimSpace(r.Header.Get("Content-Encoding")), "gzip") {
		return io.ReadAll(r.Body)
	}

	zr, err := gzip.NewReader(r.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(io.LimitReader(zr, h.maxEventSize+1))
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	if int64(len(body)) > h.maxEventSize {
		return nil, errDecompressedTooLarge
	}
	return body, nil
}

func (h *IngestHandler) count(status string) {
	if h.metrics != nil {
		h.metrics.SubmissionsTotal.WithLabelValues(status).Inc()
	}
}

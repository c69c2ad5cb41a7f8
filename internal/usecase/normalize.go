package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	// Placeholder log IDs used when a submission does not carry one. Every
	// such record of a tenant lands on the same storage key.
	PlaceholderJSONLogID = "generated-id"
	PlaceholderTextLogID = "generated-log-id"

	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

// Normalizer turns raw submissions into canonical log records.
type Normalizer struct {
	newID func(src domain.Source) string
}

// NewNormalizer creates a Normalizer. When assignUUIDs is false, missing log
// IDs are replaced by the fixed placeholders; otherwise a fresh UUID is used.
func NewNormalizer(assignUUIDs bool) *Normalizer {
	n := &Normalizer{newID: placeholderID}
	if assignUUIDs {
		n.newID = func(domain.Source) string { return uuid.NewString() }
	}
	return n
}

func placeholderID(src domain.Source) string {
	if src == domain.SourceTextUpload {
		return PlaceholderTextLogID
	}
	return PlaceholderJSONLogID
}

// Normalize validates a submission and converts it into a LogRecord.
func (n *Normalizer) Normalize(sub domain.Submission) (domain.LogRecord, error) {
	switch mediaType(sub.ContentType) {
	case mediaTypeJSON:
		return n.normalizeJSON(sub.Body)
	case mediaTypeText:
		return n.normalizeText(sub.TenantHeader, sub.Body)
	default:
		return domain.LogRecord{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedMedia, sub.ContentType)
	}
}

var errNULInText = fmt.Errorf("%w: text must not contain NUL characters", domain.ErrValidation)

func (n *Normalizer) normalizeJSON(body []byte) (domain.LogRecord, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil || payload == nil {
		return domain.LogRecord{}, fmt.Errorf("%w: body must be a JSON object", domain.ErrValidation)
	}

	tenantID, ok, err := stringField(payload, "tenant_id")
	if err != nil {
		return domain.LogRecord{}, err
	}
	if !ok || tenantID == "" {
		return domain.LogRecord{}, fmt.Errorf("%w: missing tenant_id", domain.ErrValidation)
	}

	text, ok, err := stringField(payload, "text")
	if err != nil {
		return domain.LogRecord{}, err
	}
	if !ok {
		return domain.LogRecord{}, fmt.Errorf("%w: missing text", domain.ErrValidation)
	}
	if strings.ContainsRune(text, 0) {
		return domain.LogRecord{}, errNULInText
	}

	logID, _, err := stringField(payload, "log_id")
	if err != nil {
		return domain.LogRecord{}, err
	}
	if logID == "" {
		logID = n.newID(domain.SourceJSONUpload)
	}

	return domain.LogRecord{
		TenantID: tenantID,
		LogID:    logID,
		Text:     text,
		Source:   domain.SourceJSONUpload,
	}, nil
}

func (n *Normalizer) normalizeText(tenantHeader string, body []byte) (domain.LogRecord, error) {
	tenantID := strings.TrimSpace(tenantHeader)
	if tenantID == "" {
		return domain.LogRecord{}, fmt.Errorf("%w: X-Tenant-ID header required for text", domain.ErrValidation)
	}
	if !utf8.Valid(body) {
		return domain.LogRecord{}, fmt.Errorf("%w: body is not valid UTF-8", domain.ErrValidation)
	}
	if bytes.IndexByte(body, 0) >= 0 {
		return domain.LogRecord{}, errNULInText
	}

	return domain.LogRecord{
		TenantID: tenantID,
		LogID:    n.newID(domain.SourceTextUpload),
		Text:     string(body),
		Source:   domain.SourceTextUpload,
	}, nil
}

// stringField reads key as a JSON string. A null value counts as absent.
func stringField(payload map[string]json.RawMessage, key string) (string, bool, error) {
	raw, ok := payload[key]
	if !ok || string(raw) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return s, true, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

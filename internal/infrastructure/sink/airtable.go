package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

const airtableBaseURL = "https://api.airtable.com/v0"

// AirtableSink writes curation records into an Airtable table. Idempotency
// key is the curation record ID stored in the "Record ID" field: an existing
// row is patched, otherwise a new one is created.
type AirtableSink struct {
	apiKey     string
	baseID     string
	table      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Sink = (*AirtableSink)(nil)

// NewAirtableSink builds the sink from configuration.
func NewAirtableSink(cfg config.AirtableConfig, logger *slog.Logger) *AirtableSink {
	return &AirtableSink{
		apiKey:     cfg.APIKey,
		baseID:     cfg.BaseID,
		table:      cfg.Table,
		baseURL:    airtableBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Name identifies the sink in distribution state and job results.
func (s *AirtableSink) Name() string { return "airtable" }

// CreateOrUpdate upserts the record's row and returns the Airtable row ID.
func (s *AirtableSink) CreateOrUpdate(ctx context.Context, rec domain.CurationRecord) (string, error) {
	existingID, err := s.findByRecordID(ctx, rec.ID)
	if err != nil {
		return "", err
	}

	fields := s.fields(rec)
	if existingID != "" {
		if err := s.patch(ctx, existingID, fields); err != nil {
			return "", err
		}
		return existingID, nil
	}
	return s.create(ctx, fields)
}

func (s *AirtableSink) fields(rec domain.CurationRecord) map[string]any {
	fields := map[string]any{
		"Record ID":    rec.ID,
		"Title":        rec.Title,
		"URL":          rec.URL,
		"Source":       rec.Source,
		"Digest Date":  rec.DigestDate,
		"Summary":      rec.Enrichment.LongSummary,
		"Theme":        rec.UserTheme,
		"Content Type": rec.UserContentType,
		"Angle":        rec.UserAngle,
		"Status":       "To Review",
	}
	if rec.UserTheme == "" {
		fields["Theme"] = rec.Enrichment.Theme
	}
	if len(rec.Enrichment.Companies) > 0 {
		fields["Companies"] = strings.Join(rec.Enrichment.Companies, ", ")
	}
	return fields
}

// findByRecordID searches the table with a filter formula on the record ID.
func (s *AirtableSink) findByRecordID(ctx context.Context, recordID string) (string, error) {
	formula := fmt.Sprintf("{Record ID} = '%s'", strings.ReplaceAll(recordID, "'", "\\'"))
	endpoint := fmt.Sprintf("%s/%s/%s?maxRecords=1&filterByFormula=%s",
		s.baseURL, s.baseID, url.PathEscape(s.table), url.QueryEscape(formula))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	var parsed struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	if err := s.do(req, &parsed); err != nil {
		return "", fmt.Errorf("search airtable: %w", err)
	}
	if len(parsed.Records) == 0 {
		return "", nil
	}
	return parsed.Records[0].ID, nil
}

func (s *AirtableSink) create(ctx context.Context, fields map[string]any) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, s.baseID, url.PathEscape(s.table))
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("marshal airtable row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var parsed struct {
		ID string `json:"id"`
	}
	if err := s.do(req, &parsed); err != nil {
		return "", fmt.Errorf("create airtable row: %w", err)
	}
	return parsed.ID, nil
}

func (s *AirtableSink) patch(ctx context.Context, rowID string, fields map[string]any) error {
	endpoint := fmt.Sprintf("%s/%s/%s/%s", s.baseURL, s.baseID, url.PathEscape(s.table), rowID)
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshal airtable row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.do(req, nil); err != nil {
		return fmt.Errorf("patch airtable row: %w", err)
	}
	return nil
}

func (s *AirtableSink) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Op: "airtable request", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.AuthError{Reason: "airtable rejected credentials"}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &domain.TransientError{Op: "airtable request", Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("airtable status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode airtable response: %w", err)
	}
	return nil
}

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// ArchiveSink renders curation records as markdown documents and pushes them
// to a document archive service. Documents are keyed by a deterministic path
// derived from the record, so repeated pushes overwrite the same document.
type ArchiveSink struct {
	endpoint   string
	apiKey     string
	folder     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Sink = (*ArchiveSink)(nil)

// NewArchiveSink builds the sink from configuration.
func NewArchiveSink(cfg config.ArchiveConfig, logger *slog.Logger) *ArchiveSink {
	return &ArchiveSink{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		folder:     cfg.Folder,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Name identifies the sink in distribution state and job results.
func (s *ArchiveSink) Name() string { return "archive" }

// CreateOrUpdate uploads the rendered markdown document. The document path
// doubles as the external ID.
func (s *ArchiveSink) CreateOrUpdate(ctx context.Context, rec domain.CurationRecord) (string, error) {
	path := fmt.Sprintf("%s/%s-%s.md", s.folder, rec.DigestDate, slugify(rec.Title))

	payload := map[string]any{
		"path":      path,
		"content":   renderMarkdown(rec),
		"overwrite": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal archive payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &domain.TransientError{Op: "archive upload", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &domain.AuthError{Reason: "archive rejected credentials"}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &domain.TransientError{Op: "archive upload", Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("archive upload status %d", resp.StatusCode)
	}

	return path, nil
}

// renderMarkdown produces a document with YAML frontmatter followed by the
// long summary, metrics and quotes.
func renderMarkdown(rec domain.CurationRecord) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %q\n", rec.Title)
	fmt.Fprintf(&sb, "url: %s\n", rec.URL)
	fmt.Fprintf(&sb, "source: %s\n", rec.Source)
	fmt.Fprintf(&sb, "date: %s\n", rec.DigestDate)
	if rec.UserTheme != "" {
		fmt.Fprintf(&sb, "theme: %q\n", rec.UserTheme)
	} else if rec.Enrichment.Theme != "" {
		fmt.Fprintf(&sb, "theme: %q\n", rec.Enrichment.Theme)
	}
	if rec.UserContentType != "" {
		fmt.Fprintf(&sb, "content_type: %q\n", rec.UserContentType)
	}
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", rec.Title)
	if rec.Enrichment.LongSummary != "" {
		sb.WriteString(rec.Enrichment.LongSummary)
		sb.WriteString("\n\n")
	} else if rec.RawExcerpt != "" {
		sb.WriteString(rec.RawExcerpt)
		sb.WriteString("\n\n")
	}

	if len(rec.Enrichment.Metrics) > 0 {
		sb.WriteString("## Key numbers\n\n")
		for _, m := range rec.Enrichment.Metrics {
			fmt.Fprintf(&sb, "- **%s:** %s (%s)\n", m.Label, m.Value, m.Context)
		}
		sb.WriteString("\n")
	}

	if len(rec.Enrichment.Quotes) > 0 {
		sb.WriteString("## Quotes\n\n")
		for _, q := range rec.Enrichment.Quotes {
			fmt.Fprintf(&sb, "> %s\n>\n> — %s, %s\n\n", q.Quote, q.Speaker, q.Context)
		}
	}

	if rec.UserAngle != "" {
		fmt.Fprintf(&sb, "## Angle\n\n%s\n", rec.UserAngle)
	}

	return sb.String()
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

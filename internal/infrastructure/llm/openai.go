package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// Client talks to an OpenAI-compatible chat completions API for candidate
// scoring and enrichment synthesis. All calls share one token bucket so
// concurrent pipeline stages and background tasks cannot burst-throttle.
type Client struct {
	endpoint       string
	scoringModel   string
	synthesisModel string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *slog.Logger
}

var _ ports.Scorer = (*Client)(nil)
var _ ports.Enricher = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.OpenAIConfig, logger *slog.Logger) *Client {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		endpoint:       cfg.Endpoint,
		scoringModel:   cfg.ScoringModel,
		synthesisModel: cfg.SynthesisModel,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:         logger,
	}
}

const scoringSystemPrompt = "You are an expert content evaluator for business AI newsletters. " +
	"Always respond with valid JSON matching the requested format."

const scoringRubric = `Rate each article 0-100 based on:
1. Business relevance for tech executives (30 pts)
2. Data strategy and vendor independence themes (25 pts)
3. Actionable insights vs pure research (20 pts)
4. Enterprise decision-making impact (15 pts)
5. Recency and relevance (10 pts)

PRIORITIZE vendor lock-in problems and solutions, data infrastructure
strategies, enterprise AI implementation realities, platform-agnostic
approaches, business model disruptions.
AVOID pure academic research, consumer AI products, vendor marketing
disguised as news.`

// ScoreBatch scores one bounded batch of candidates against the weighted
// rubric in a single call.
func (c *Client) ScoreBatch(ctx context.Context, batch []domain.CandidateItem) ([]domain.ScoredCandidate, error) {
	var sb strings.Builder
	for i, cand := range batch {
		fmt.Fprintf(&sb, "[%d] TITLE: %s\nSOURCE: %s\nCONTENT: %s\nURL: %s\n\n",
			i, cand.Title, cand.Source, truncate(cand.RawExcerpt, 300), cand.URL)
	}

	prompt := fmt.Sprintf(`%s

ARTICLES:
%s
RESPOND WITH JSON:
{"scores": [{"index": 0, "relevance_score": 0, "impact_score": 0, "themes": ["theme"]}, ...]}

Score every article exactly once.`, scoringRubric, sb.String())

	content, err := c.chat(ctx, c.scoringModel, scoringSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scores []struct {
			Index          int      `json:"index"`
			RelevanceScore float64  `json:"relevance_score"`
			ImpactScore    float64  `json:"impact_score"`
			Themes         []string `json:"themes"`
		} `json:"scores"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return nil, &domain.TransientError{Op: "parse scoring response", Err: err}
	}

	scored := make([]domain.ScoredCandidate, 0, len(parsed.Scores))
	for _, s := range parsed.Scores {
		if s.Index < 0 || s.Index >= len(batch) {
			c.logger.Warn("scoring response referenced unknown index", "index", s.Index)
			continue
		}
		scored = append(scored, domain.ScoredCandidate{
			CandidateItem:  batch[s.Index],
			RelevanceScore: clamp(s.RelevanceScore),
			ImpactScore:    clamp(s.ImpactScore),
			Themes:         s.Themes,
		})
	}
	return scored, nil
}

// Enrich synthesizes the structured enrichment for one selected candidate.
// Missing fields default to zero values; a response that is not JSON at all
// reports domain.ErrPartialEnrichment so the caller degrades the item.
func (c *Client) Enrich(ctx context.Context, cand domain.ScoredCandidate) (domain.Enrichment, error) {
	prompt := fmt.Sprintf(`Create a detailed briefing for a tech executive newsletter from this article.

TITLE: %s
SOURCE: %s
CONTENT: %s
URL: %s

RESPOND WITH JSON:
{
  "short_summary": "summary under 500 characters",
  "long_summary": "comprehensive 4-6 sentence summary with all key points and implications",
  "metrics": [{"label": "Funding", "value": "$100M", "context": "Series B"}],
  "quotes": [{"quote": "...", "speaker": "...", "context": "..."}],
  "theme": "one primary theme tag",
  "why_it_matters": "one line on why this matters for tech executives",
  "companies": ["Company 1", "Company 2"]
}

Include at most 3 metrics and 2 quotes. Include all specific numbers,
funding amounts, and direct quotes with attribution.`,
		cand.Title, cand.Source, cand.RawExcerpt, cand.URL)

	content, err := c.chat(ctx, c.synthesisModel, scoringSystemPrompt, prompt)
	if err != nil {
		return domain.Enrichment{}, err
	}

	var parsed struct {
		ShortSummary string          `json:"short_summary"`
		LongSummary  string          `json:"long_summary"`
		Metrics      []domain.Metric `json:"metrics"`
		Quotes       []domain.Quote  `json:"quotes"`
		Theme        string          `json:"theme"`
		WhyItMatters string          `json:"why_it_matters"`
		Companies    []string        `json:"companies"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return domain.Enrichment{}, fmt.Errorf("%w: %v", domain.ErrPartialEnrichment, err)
	}

	enrichment := domain.Enrichment{
		ShortSummary: truncate(parsed.ShortSummary, domain.MaxShortSummaryLen),
		LongSummary:  parsed.LongSummary,
		Metrics:      parsed.Metrics,
		Quotes:       parsed.Quotes,
		Theme:        parsed.Theme,
		WhyItMatters: parsed.WhyItMatters,
		Companies:    parsed.Companies,
	}
	if len(enrichment.Metrics) > 3 {
		enrichment.Metrics = enrichment.Metrics[:3]
	}
	if len(enrichment.Quotes) > 2 {
		enrichment.Quotes = enrichment.Quotes[:2]
	}
	return enrichment, nil
}

// Overview synthesizes the digest-level executive summary and key insights.
func (c *Client) Overview(ctx context.Context, selected []domain.ScoredCandidate) (string, []string, error) {
	var sb strings.Builder
	for i, cand := range selected {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, cand.Title, cand.Source)
	}

	prompt := fmt.Sprintf(`These articles were selected for today's executive AI digest:

%s
RESPOND WITH JSON:
{
  "overview": "3-4 paragraph executive summary covering major developments and strategic implications",
  "insights": ["actionable takeaway with supporting data", "..."]
}`, sb.String())

	content, err := c.chat(ctx, c.synthesisModel, scoringSystemPrompt, prompt)
	if err != nil {
		return "", nil, err
	}

	var parsed struct {
		Overview string   `json:"overview"`
		Insights []string `json:"insights"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return "", nil, fmt.Errorf("parse overview response: %w", err)
	}
	return parsed.Overview, parsed.Insights, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

func (c *Client) chat(ctx context.Context, model, system, user string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || model == "" {
		return "", &domain.ValidationError{Field: "openai", Reason: "client misconfigured"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.1,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.TransientError{Op: "chat completion", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(payload)), len(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", &domain.TransientError{Op: "chat completion", Err: fmt.Errorf("empty choices")}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func classifyStatus(status int, body string, requestSize int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.AuthError{Reason: fmt.Sprintf("chat completion rejected: %s", body)}
	case status == http.StatusRequestEntityTooLarge,
		status == http.StatusBadRequest && strings.Contains(body, "maximum context length"):
		return &domain.CapacityError{BatchSize: requestSize}
	case status == http.StatusTooManyRequests || status >= 500:
		return &domain.TransientError{Op: "chat completion", Err: fmt.Errorf("status %d: %s", status, body)}
	default:
		return fmt.Errorf("chat completion status %d: %s", status, body)
	}
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

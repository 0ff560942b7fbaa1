package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

const apiBaseURL = "https://slack.com/api"

// Client wraps the Slack Web API calls the digest workflow needs:
// chat.postMessage for publishing and views.open for the curation modal.
type Client struct {
	botToken        string
	channel         string
	errorWebhookURL string
	baseURL         string
	httpClient      *http.Client
	logger          *slog.Logger
}

// NewClient builds a Slack client from configuration.
func NewClient(cfg config.SlackConfig, logger *slog.Logger) *Client {
	return &Client{
		botToken:        cfg.BotToken,
		channel:         cfg.Channel,
		errorWebhookURL: cfg.ErrorWebhookURL,
		baseURL:         apiBaseURL,
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		logger:          logger,
	}
}

// call posts a JSON payload to a Web API method. Slack reports application
// errors with HTTP 200 and ok=false, so both layers are checked.
func (c *Client) call(ctx context.Context, method string, payload any) error {
	if c.botToken == "" {
		return &domain.ValidationError{Field: "slack.botToken", Reason: "not configured"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &domain.TransientError{Op: method, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s status %d", method, resp.StatusCode)
	}

	var parsed struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%s rejected: %s", method, parsed.Error)
	}
	return nil
}

// PostMessage posts a plain text message to the configured channel. Modal
// submissions carry no response URL, so their terminal updates land here.
func (c *Client) PostMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"channel": c.channel,
		"text":    text,
	}
	if err := c.call(ctx, "chat.postMessage", payload); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// Respond posts a message to an interaction response URL, replacing the
// original message when asked to.
func (c *Client) Respond(ctx context.Context, responseURL, text string, replaceOriginal bool) error {
	payload := map[string]any{
		"text":             text,
		"replace_original": replaceOriginal,
		"response_type":    "ephemeral",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal response payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Op: "response_url", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response_url status %d", resp.StatusCode)
	}
	return nil
}

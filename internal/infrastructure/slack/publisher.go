package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// ActionPushToPipeline identifies the per-article button that starts a
// distribution interaction.
const ActionPushToPipeline = "push_to_pipeline"

var _ ports.DigestPublisher = (*Client)(nil)

// PublishDigest posts the digest to the configured channel as one header
// message followed by one message per record. Each article message carries
// an action button whose value is the curation record ID.
func (c *Client) PublishDigest(ctx context.Context, digest domain.Digest, records []domain.CurationRecord) error {
	header := map[string]any{
		"channel": c.channel,
		"text":    fmt.Sprintf("AI Digest %s", digest.Date),
		"blocks":  headerBlocks(digest),
	}
	if err := c.call(ctx, "chat.postMessage", header); err != nil {
		return fmt.Errorf("publish digest header: %w", err)
	}

	for i, rec := range records {
		msg := map[string]any{
			"channel": c.channel,
			"text":    rec.Title,
			"blocks":  recordBlocks(i+1, rec),
		}
		if err := c.call(ctx, "chat.postMessage", msg); err != nil {
			return fmt.Errorf("publish record %d: %w", i+1, err)
		}
	}

	c.logger.Info("digest published to channel", "channel", c.channel, "records", len(records))
	return nil
}

// NotifyError reports a pipeline stage failure to the operations webhook.
// Notification failures are logged and swallowed; alerting must never mask
// the original error.
func (c *Client) NotifyError(ctx context.Context, stage string, stageErr error) {
	if c.errorWebhookURL == "" {
		return
	}

	payload := map[string]any{
		"text": fmt.Sprintf(":rotating_light: digest pipeline failed at stage %q: %v", stage, stageErr),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("marshal error notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.errorWebhookURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("build error notification", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("send error notification", "error", err)
		return
	}
	_ = resp.Body.Close()
}

func headerBlocks(digest domain.Digest) []map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": fmt.Sprintf("🤖 AI Daily Digest · %s", digest.Date)},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": digest.Overview},
		},
	}

	if len(digest.Insights) > 0 {
		var sb strings.Builder
		sb.WriteString("*Key insights*\n")
		for _, insight := range digest.Insights {
			fmt.Fprintf(&sb, "• %s\n", insight)
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": sb.String()},
		})
	}

	blocks = append(blocks, map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("Processed %d candidates", digest.TotalProcessed)},
		},
	})
	return blocks
}

func recordBlocks(position int, rec domain.CurationRecord) []map[string]any {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%d. <%s|%s>*\n", position, rec.URL, rec.Title)
	if rec.Enrichment.ShortSummary != "" {
		sb.WriteString(rec.Enrichment.ShortSummary)
		sb.WriteString("\n")
	}
	if rec.Enrichment.WhyItMatters != "" {
		fmt.Fprintf(&sb, "_%s_\n", rec.Enrichment.WhyItMatters)
	}
	for _, m := range rec.Enrichment.Metrics {
		fmt.Fprintf(&sb, "• *%s:* %s (%s)\n", m.Label, m.Value, m.Context)
	}

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": sb.String()},
		},
		{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("%s · relevance %.0f · impact %.0f",
					rec.Source, rec.RelevanceScore, rec.ImpactScore)},
			},
		},
		{
			"type": "actions",
			"elements": []map[string]any{
				{
					"type":      "button",
					"action_id": ActionPushToPipeline,
					"text":      map[string]any{"type": "plain_text", "text": "Push to Pipeline"},
					"style":     "primary",
					"value":     rec.ID,
				},
			},
		},
	}
	return blocks
}

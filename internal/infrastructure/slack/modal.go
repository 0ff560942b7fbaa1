package slack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

// Block and action identifiers for the curation modal. The gateway reads
// submitted values back out of view state by these IDs.
const (
	ModalCallbackID = "curation_submit"

	BlockTheme       = "theme_block"
	BlockContentType = "content_type_block"
	BlockAngle       = "angle_block"

	ActionTheme       = "theme_select"
	ActionContentType = "content_type_select"
	ActionAngle       = "angle_input"
)

var themeOptions = []string{
	"Data Strategy",
	"Vendor Independence",
	"Enterprise AI",
	"Industry Moves",
	"Other",
}

var contentTypeOptions = []string{
	"LinkedIn Post",
	"Newsletter Section",
	"Blog Draft",
	"Talking Points",
}

// ModalMetadata travels through the modal's private_metadata field. The
// nonce is minted once when the modal opens; Slack echoes the metadata back
// on every submission retry, which keeps the idempotency key stable.
type ModalMetadata struct {
	RecordID string `json:"record_id"`
	Nonce    string `json:"nonce"`
}

// DecodeModalMetadata parses private_metadata from a view submission.
func DecodeModalMetadata(raw string) (ModalMetadata, error) {
	var meta ModalMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return ModalMetadata{}, fmt.Errorf("decode modal metadata: %w", err)
	}
	if meta.RecordID == "" || meta.Nonce == "" {
		return ModalMetadata{}, &domain.ValidationError{Field: "private_metadata", Reason: "missing record or nonce"}
	}
	return meta, nil
}

// OpenCurationModal opens the editorial input modal for one record.
func (c *Client) OpenCurationModal(ctx context.Context, triggerID string, rec domain.CurationRecord) error {
	meta, err := json.Marshal(ModalMetadata{RecordID: rec.ID, Nonce: uuid.NewString()})
	if err != nil {
		return fmt.Errorf("marshal modal metadata: %w", err)
	}

	view := map[string]any{
		"type":             "modal",
		"callback_id":      ModalCallbackID,
		"private_metadata": string(meta),
		"title":            map[string]any{"type": "plain_text", "text": "Push to Pipeline"},
		"submit":           map[string]any{"type": "plain_text", "text": "Push"},
		"close":            map[string]any{"type": "plain_text", "text": "Cancel"},
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s*", rec.Title)},
			},
			selectBlock(BlockTheme, ActionTheme, "Theme", themeOptions),
			selectBlock(BlockContentType, ActionContentType, "Content type", contentTypeOptions),
			{
				"type":     "input",
				"block_id": BlockAngle,
				"optional": true,
				"label":    map[string]any{"type": "plain_text", "text": "Angle"},
				"element": map[string]any{
					"type":      "plain_text_input",
					"action_id": ActionAngle,
					"multiline": true,
					"placeholder": map[string]any{
						"type": "plain_text", "text": "Optional angle or hook for the piece",
					},
				},
			},
		},
	}

	payload := map[string]any{
		"trigger_id": triggerID,
		"view":       view,
	}
	if err := c.call(ctx, "views.open", payload); err != nil {
		return fmt.Errorf("open curation modal: %w", err)
	}
	return nil
}

func selectBlock(blockID, actionID, label string, options []string) map[string]any {
	opts := make([]map[string]any, len(options))
	for i, opt := range options {
		opts[i] = map[string]any{
			"text":  map[string]any{"type": "plain_text", "text": opt},
			"value": opt,
		}
	}
	return map[string]any{
		"type":     "input",
		"block_id": blockID,
		"label":    map[string]any{"type": "plain_text", "text": label},
		"element": map[string]any{
			"type":      "static_select",
			"action_id": actionID,
			"options":   opts,
		},
	}
}

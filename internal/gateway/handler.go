package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/slack"
)

const (
	headerTimestamp = "X-Slack-Request-Timestamp"
	headerSignature = "X-Slack-Signature"
)

// interactionPayload covers the two interaction types the gateway handles:
// block_actions (button press) and view_submission (modal submit).
type interactionPayload struct {
	Type      string `json:"type"`
	TriggerID string `json:"trigger_id"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	View struct {
		CallbackID      string `json:"callback_id"`
		PrivateMetadata string `json:"private_metadata"`
		State           struct {
			Values map[string]map[string]stateValue `json:"values"`
		} `json:"state"`
	} `json:"view"`
	ResponseURLs []struct {
		ResponseURL string `json:"response_url"`
	} `json:"response_urls"`
}

type stateValue struct {
	Value          string `json:"value"`
	SelectedOption struct {
		Value string `json:"value"`
	} `json:"selected_option"`
}

// handleInteraction verifies, parses and dispatches one interaction
// callback. Verification happens before any other processing; a request
// that fails it produces zero side effects.
func (s *Server) handleInteraction(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := s.verifier.Verify(c.GetHeader(headerTimestamp), c.GetHeader(headerSignature), body); err != nil {
		s.logger.Warn("rejected interaction", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form"})
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(form.Get("payload")), &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	switch payload.Type {
	case "block_actions":
		s.handleBlockAction(c, payload)
	case "view_submission":
		s.handleSubmission(c, payload)
	default:
		c.Status(http.StatusOK)
	}
}

// handleBlockAction opens the curation modal for a pressed digest button.
// The modal open runs in the background; the ack goes out immediately so
// the platform deadline is never at risk.
func (s *Server) handleBlockAction(c *gin.Context, payload interactionPayload) {
	var recordID string
	for _, action := range payload.Actions {
		if action.ActionID == slack.ActionPushToPipeline {
			recordID = action.Value
			break
		}
	}
	if recordID == "" {
		c.Status(http.StatusOK)
		return
	}

	triggerID := payload.TriggerID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		rec, err := s.repository.GetRecord(ctx, recordID)
		if err != nil {
			s.logger.Error("record lookup for modal failed", "record", recordID, "error", err)
			return
		}
		if err := s.notifier.OpenCurationModal(ctx, triggerID, rec); err != nil {
			s.logger.Error("open modal failed", "record", recordID, "error", err)
		}
	}()

	c.Status(http.StatusOK)
}

// handleSubmission claims the idempotency key, acknowledges, and hands the
// work to the background distribution task. A duplicate submission is
// acknowledged without starting a second job.
func (s *Server) handleSubmission(c *gin.Context, payload interactionPayload) {
	if payload.View.CallbackID != slack.ModalCallbackID {
		c.Status(http.StatusOK)
		return
	}

	meta, err := slack.DecodeModalMetadata(payload.View.PrivateMetadata)
	if err != nil {
		s.logger.Warn("rejected submission", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
		return
	}

	// An empty sink set would complete every job vacuously successful.
	if len(s.sinks) == 0 {
		s.logger.Error("no sinks configured for distribution", "record", meta.RecordID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no sinks configured"})
		return
	}

	job := domain.DistributionJob{
		RecordID:  meta.RecordID,
		Nonce:     meta.Nonce,
		Sinks:     s.sinks,
		User:      payload.User.Username,
		Status:    domain.JobPending,
		CreatedAt: time.Now(),
	}

	// The claim must land inside the ack deadline; everything slower than
	// that runs in the background task.
	claimCtx, cancel := context.WithTimeout(c.Request.Context(), s.ackDeadline)
	defer cancel()

	claimed, err := s.jobs.Claim(claimCtx, job)
	if err != nil {
		s.logger.Error("claim failed", "record", job.RecordID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		return
	}
	if !claimed {
		s.logger.Info("duplicate submission ignored", "record", job.RecordID, "nonce", job.Nonce)
		c.JSON(http.StatusOK, gin.H{"response_action": "clear"})
		return
	}

	input := extractUserInput(payload)
	var responseURL string
	if len(payload.ResponseURLs) > 0 {
		responseURL = payload.ResponseURLs[0].ResponseURL
	}

	go s.runDistribution(job, input, responseURL)

	c.JSON(http.StatusOK, gin.H{"response_action": "clear"})
}

type userInput struct {
	Theme       string
	ContentType string
	Angle       string
}

func extractUserInput(payload interactionPayload) userInput {
	values := payload.View.State.Values
	return userInput{
		Theme:       values[slack.BlockTheme][slack.ActionTheme].SelectedOption.Value,
		ContentType: values[slack.BlockContentType][slack.ActionContentType].SelectedOption.Value,
		Angle:       values[slack.BlockAngle][slack.ActionAngle].Value,
	}
}

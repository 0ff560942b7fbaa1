package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/slack"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/router"
)

const testSecret = "test-signing-secret"

type fakeRepository struct {
	mu      sync.Mutex
	records map[string]domain.CurationRecord
	inputs  map[string][3]string
}

var _ ports.DigestRepository = (*fakeRepository)(nil)

func newFakeRepository(records ...domain.CurationRecord) *fakeRepository {
	repo := &fakeRepository{
		records: map[string]domain.CurationRecord{},
		inputs:  map[string][3]string{},
	}
	for _, rec := range records {
		repo.records[rec.ID] = rec
	}
	return repo
}

func (f *fakeRepository) UpsertDigest(_ context.Context, _ domain.Digest, records []domain.CurationRecord) ([]domain.CurationRecord, error) {
	return records, nil
}

func (f *fakeRepository) GetRecord(_ context.Context, id string) (domain.CurationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.CurationRecord{}, ports.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepository) ApplyUserInput(_ context.Context, id, theme, contentType, angle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return ports.ErrNotFound
	}
	f.inputs[id] = [3]string{theme, contentType, angle}
	return nil
}

func (f *fakeRepository) SetSinkState(context.Context, string, string, domain.SinkState) error {
	return nil
}

type fakeJobStore struct {
	mu        sync.Mutex
	claimed   map[string]bool
	completed chan domain.DistributionJob
}

var _ ports.JobStore = (*fakeJobStore)(nil)

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		claimed:   map[string]bool{},
		completed: make(chan domain.DistributionJob, 16),
	}
}

func (f *fakeJobStore) Claim(_ context.Context, job domain.DistributionJob) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := job.RecordID + "|" + job.Nonce
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeJobStore) Complete(_ context.Context, job domain.DistributionJob) error {
	f.completed <- job
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	modals    []string
	responses []string
	messages  []string
}

func (f *fakeNotifier) OpenCurationModal(_ context.Context, triggerID string, _ domain.CurationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modals = append(f.modals, triggerID)
	return nil
}

func (f *fakeNotifier) Respond(_ context.Context, _, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, text)
	return nil
}

func (f *fakeNotifier) PostMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) modalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modals)
}

// terminalUpdates merges both terminal-update paths.
func (f *fakeNotifier) terminalUpdates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(append([]string(nil), f.responses...), f.messages...)
}

type countingSink struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSink) Name() string { return "airtable" }

func (c *countingSink) CreateOrUpdate(_ context.Context, rec domain.CurationRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "row-" + rec.ID, nil
}

func (c *countingSink) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type gatewayFixture struct {
	server   *Server
	repo     *fakeRepository
	jobs     *fakeJobStore
	notifier *fakeNotifier
	sink     *countingSink
}

func newFixture(records ...domain.CurationRecord) *gatewayFixture {
	logger := slog.New(slog.DiscardHandler)
	repo := newFakeRepository(records...)
	jobs := newFakeJobStore()
	notifier := &fakeNotifier{}
	sink := &countingSink{}

	server := NewServer(Deps{
		Verifier:     slack.NewVerifier(testSecret),
		Notifier:     notifier,
		Repository:   repo,
		Jobs:         jobs,
		Router:       router.New([]ports.Sink{sink}, repo, logger),
		Sinks:        []string{"airtable"},
		SoftDeadline: 5 * time.Second,
		Logger:       logger,
	})
	return &gatewayFixture{server: server, repo: repo, jobs: jobs, notifier: notifier, sink: sink}
}

func sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(t *testing.T, payload any) *http.Request {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	body := url.Values{"payload": {string(raw)}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sign(ts, []byte(body)))
	return req
}

func submissionPayload(recordID, nonce string) map[string]any {
	meta, _ := json.Marshal(slack.ModalMetadata{RecordID: recordID, Nonce: nonce})
	return map[string]any{
		"type": "view_submission",
		"user": map[string]any{"id": "U1", "username": "maya"},
		"view": map[string]any{
			"callback_id":      slack.ModalCallbackID,
			"private_metadata": string(meta),
			"state": map[string]any{
				"values": map[string]any{
					slack.BlockTheme: map[string]any{
						slack.ActionTheme: map[string]any{
							"selected_option": map[string]any{"value": "Data Strategy"},
						},
					},
					slack.BlockContentType: map[string]any{
						slack.ActionContentType: map[string]any{
							"selected_option": map[string]any{"value": "LinkedIn Post"},
						},
					},
					slack.BlockAngle: map[string]any{
						slack.ActionAngle: map[string]any{"value": "vendor lock-in angle"},
					},
				},
			},
		},
	}
}

func waitForJob(t *testing.T, jobs *fakeJobStore) domain.DistributionJob {
	t.Helper()
	select {
	case job := <-jobs.completed:
		return job
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for job completion")
		return domain.DistributionJob{}
	}
}

func TestInteractionRejectsBadSignature(t *testing.T) {
	t.Parallel()

	fx := newFixture(domain.CurationRecord{ID: "rec-1"})

	raw, _ := json.Marshal(submissionPayload("rec-1", "n-1"))
	body := url.Values{"payload": {string(raw)}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fx.jobs.claimed)
	assert.Zero(t, fx.sink.callCount())
}

func TestInteractionRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	fx := newFixture()

	raw, _ := json.Marshal(submissionPayload("rec-1", "n-1"))
	body := url.Values{"payload": {string(raw)}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	req.Header.Set("X-Slack-Request-Timestamp", stale)
	req.Header.Set("X-Slack-Signature", sign(stale, []byte(body)))

	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBlockActionOpensModal(t *testing.T) {
	t.Parallel()

	fx := newFixture(domain.CurationRecord{ID: "rec-1", Title: "Article"})

	payload := map[string]any{
		"type":       "block_actions",
		"trigger_id": "trig-1",
		"user":       map[string]any{"id": "U1", "username": "maya"},
		"actions": []map[string]any{
			{"action_id": slack.ActionPushToPipeline, "value": "rec-1"},
		},
	}

	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, signedRequest(t, payload))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Eventually(t, func() bool {
		return fx.notifier.modalCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmissionRunsDistribution(t *testing.T) {
	t.Parallel()

	fx := newFixture(domain.CurationRecord{ID: "rec-1", Title: "Article", DigestDate: "2026-08-31"})

	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, signedRequest(t, submissionPayload("rec-1", "n-1")))
	require.Equal(t, http.StatusOK, w.Code)

	job := waitForJob(t, fx.jobs)
	assert.Equal(t, domain.JobSuccess, job.Status)
	assert.Equal(t, "rec-1", job.RecordID)
	assert.Equal(t, 1, fx.sink.callCount())

	fx.repo.mu.Lock()
	input := fx.repo.inputs["rec-1"]
	fx.repo.mu.Unlock()
	assert.Equal(t, [3]string{"Data Strategy", "LinkedIn Post", "vendor lock-in angle"}, input)

	// Modal submissions carry no response URL; the terminal update must
	// still reach the user through the channel.
	assert.Eventually(t, func() bool {
		updates := fx.notifier.terminalUpdates()
		return len(updates) == 1 && strings.Contains(updates[0], "Pushed to")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmissionTerminalUpdateOnFailure(t *testing.T) {
	t.Parallel()

	// Record is missing, so the background task fails before any sink write.
	fx := newFixture()

	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, signedRequest(t, submissionPayload("rec-gone", "n-1")))
	require.Equal(t, http.StatusOK, w.Code)

	job := waitForJob(t, fx.jobs)
	assert.Equal(t, domain.JobFailure, job.Status)

	assert.Eventually(t, func() bool {
		return len(fx.notifier.terminalUpdates()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmissionDuplicateNonceRunsOnce(t *testing.T) {
	t.Parallel()

	fx := newFixture(domain.CurationRecord{ID: "rec-1"})

	first := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(first, signedRequest(t, submissionPayload("rec-1", "n-dup")))
	require.Equal(t, http.StatusOK, first.Code)
	waitForJob(t, fx.jobs)

	second := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(second, signedRequest(t, submissionPayload("rec-1", "n-dup")))
	assert.Equal(t, http.StatusOK, second.Code)

	select {
	case job := <-fx.jobs.completed:
		t.Fatalf("duplicate nonce started a second job: %+v", job)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 1, fx.sink.callCount())
}

func TestConcurrentDistinctSubmissions(t *testing.T) {
	t.Parallel()

	records := make([]domain.CurationRecord, 10)
	for i := range records {
		records[i] = domain.CurationRecord{ID: fmt.Sprintf("rec-%d", i)}
	}
	fx := newFixture(records...)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			payload := submissionPayload(fmt.Sprintf("rec-%d", i), fmt.Sprintf("n-%d", i))
			fx.server.Handler().ServeHTTP(w, signedRequest(t, payload))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		job := waitForJob(t, fx.jobs)
		assert.Equal(t, domain.JobSuccess, job.Status)
		seen[job.RecordID] = true
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 10, fx.sink.callCount())
}

func TestSubmissionRejectedWithoutSinks(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	repo := newFakeRepository(domain.CurationRecord{ID: "rec-1"})
	jobs := newFakeJobStore()

	server := NewServer(Deps{
		Verifier:   slack.NewVerifier(testSecret),
		Notifier:   &fakeNotifier{},
		Repository: repo,
		Jobs:       jobs,
		Router:     router.New(nil, repo, logger),
		Sinks:      nil,
		Logger:     logger,
	})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, signedRequest(t, submissionPayload("rec-1", "n-1")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, jobs.claimed)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

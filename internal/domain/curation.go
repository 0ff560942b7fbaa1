package domain

import "time"

// Metric is a single quantitative data point extracted during synthesis.
type Metric struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Context string `json:"context"`
}

// Quote is an attributed quote extracted during synthesis.
type Quote struct {
	Quote   string `json:"quote"`
	Speaker string `json:"speaker"`
	Context string `json:"context"`
}

// Enrichment is the structured synthesis produced in Stage-2 for a selected
// candidate. Any field may be empty; Degraded marks records whose synthesis
// failed and should be reprocessed later.
type Enrichment struct {
	ShortSummary string   `json:"shortSummary"`
	LongSummary  string   `json:"longSummary"`
	Metrics      []Metric `json:"metrics"`
	Quotes       []Quote  `json:"quotes"`
	Theme        string   `json:"theme"`
	WhyItMatters string   `json:"whyItMatters"`
	Companies    []string `json:"companies"`
	Degraded     bool     `json:"degraded"`
}

// MaxShortSummaryLen is the hard cap applied to Enrichment.ShortSummary.
const MaxShortSummaryLen = 500

// SinkStatus tracks the distribution state of a record at one sink.
type SinkStatus string

const (
	SinkPending SinkStatus = "pending"
	SinkStored  SinkStatus = "stored"
	SinkFailed  SinkStatus = "failed"
)

// SinkState records the outcome of distributing a record to one sink.
type SinkState struct {
	Status     SinkStatus
	ExternalID string
}

// CurationRecord is a final enriched article selected into a digest. The ID
// is stable from assembly onward and is the opaque reference echoed back by
// the interaction webhook. Only the distribution state and the user-supplied
// classification fields mutate after creation.
type CurationRecord struct {
	ID             string
	Title          string
	URL            string
	Source         string
	DigestDate     string // YYYY-MM-DD
	RelevanceScore float64
	ImpactScore    float64
	RawExcerpt     string
	Enrichment     Enrichment
	Distribution   map[string]SinkState

	// Optional classification supplied through the interaction modal,
	// merged in before distribution.
	UserTheme       string
	UserContentType string
	UserAngle       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

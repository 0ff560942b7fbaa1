package domain

import "time"

// Digest is one calendar date's bundle of curation records plus the
// narrative overview. Exactly one digest exists per date; re-assembly
// replaces its content.
type Digest struct {
	Date           string // YYYY-MM-DD, unique key
	Overview       string
	Insights       []string
	RecordIDs      []string
	TotalProcessed int
	UpdatedAt      time.Time
}

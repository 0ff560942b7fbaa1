package domain

import "time"

// JobStatus enumerates terminal and in-flight distribution job states.
type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobSuccess        JobStatus = "success"
	JobPartialFailure JobStatus = "partial_failure"
	JobFailure        JobStatus = "failure"
	JobTimedOut       JobStatus = "timed_out"
)

// SinkResult is the per-sink outcome aggregated into a DistributionJob.
type SinkResult struct {
	Sink       string
	ExternalID string
	Attempts   int
	Err        string
}

// OK reports whether the sink write succeeded.
func (r SinkResult) OK() bool { return r.Err == "" }

// DistributionJob is the tracked unit of work for pushing one curation
// record to one or more sinks. The (RecordID, Nonce) pair is the idempotency
// key guarding against duplicate interactions; jobs are retained for audit.
type DistributionJob struct {
	RecordID    string
	Nonce       string
	Sinks       []string
	User        string
	Status      JobStatus
	Results     []SinkResult
	CreatedAt   time.Time
	CompletedAt time.Time
}

// FailedSinks lists the names of sinks whose write failed.
func (j DistributionJob) FailedSinks() []string {
	var failed []string
	for _, r := range j.Results {
		if !r.OK() {
			failed = append(failed, r.Sink)
		}
	}
	return failed
}

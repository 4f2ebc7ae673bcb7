// Package model holds the data types shared by the scheduler, the
// grading job runner, the progression state machine, and the
// provisioning orchestrator.
package model

import "time"

// Sentinel postback URLs that select the mock grading path instead of
// a real container run.
const (
	PostbackEmpty = "EMPTY"
	PostbackTest  = "POSTBACK"
)

// CommitTarget identifies a unit of grading work.
type CommitTarget struct {
	CommitSHA   string
	CommitURL   string // unique key within the dispatcher
	RepoID      string
	DelivID     string
	PostbackURL string
	Timestamp   time.Time
}

// IsMock reports whether this target should be graded by the mock
// runner instead of launching a real container.
func (t CommitTarget) IsMock() bool {
	return t.PostbackURL == PostbackEmpty || t.PostbackURL == PostbackTest
}

// Key returns the composite identity used by the queues to enforce
// "at most one queue, at most once total" (spec §3 invariant 1).
func (t CommitTarget) Key() string {
	return t.CommitURL + "|" + t.DelivID
}

// ContainerInput is a CommitTarget plus deliverable-specific parameters.
// This is what the Job Queue stores.
type ContainerInput struct {
	CommitTarget
	Image      string            // container image for the deliverable
	Timeout    time.Duration     // per-deliverable execution budget
	EnvExtra   map[string]string // deliverable-specific parameters
	SubmitTime time.Time         // for wait-time metrics
}

// Key delegates to the embedded CommitTarget.
func (c ContainerInput) Key() string {
	return c.CommitTarget.Key()
}

// Report is the structured grading output produced inside the
// container.
type Report struct {
	ScoreOverall *float64 // nil means absent
	Custom       map[string]string
	ErrorMessage string // set on container error/timeout; Report is still well-formed
	TimedOut     bool
}

// Output wraps the container's report plus the raw input that produced
// it, mirroring the wire shape AutoTest expects.
type Output struct {
	Input  ContainerInput
	Report Report
}

// AutoTestResult is the record a GradingJob builds and the dispatcher's
// completion hook consumes.
type AutoTestResult struct {
	CommitSHA string
	CommitURL string
	DelivID   string
	RepoID    string
	Input     ContainerInput
	Output    Output
}

// Valid reports whether the result carries the fields the completion
// hook requires (spec §4.B completion path step 1).
func (r *AutoTestResult) Valid() bool {
	if r == nil {
		return false
	}
	return r.CommitSHA != "" && r.CommitURL != "" && r.Input.CommitURL != ""
}

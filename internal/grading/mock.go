package grading

import (
	"context"
	"log"
	"time"

	"github.com/classytest/dispatcher/internal/container"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/sink"
)

// MockJob is selected when postbackURL is EMPTY/POSTBACK (spec §4.C).
// It skips the container runtime entirely and returns a synthetic
// record — the only test seam inside the core.
type MockJob struct {
	Input     model.ContainerInput
	Score     float64
	gradeSink sink.GradeSink
}

// NewMockJob builds a MockJob for input with a fixed synthetic score.
func NewMockJob(input model.ContainerInput, score float64, gradeSink sink.GradeSink) *MockJob {
	return &MockJob{Input: input, Score: score, gradeSink: gradeSink}
}

// Prepare is a no-op: nothing real to stage for a mock run.
func (j *MockJob) Prepare(ctx context.Context) error { return nil }

// Execute returns a synthetic, well-formed AutoTestResult without
// touching a container runtime. The runtime parameter is accepted only
// to satisfy the common Runner interface; it is never used. Like the
// real Job, it emits a partial grade for its synthetic score (spec
// §4.C) so the mock path exercises the same grade-sink contract.
func (j *MockJob) Execute(ctx context.Context, _ container.Runtime) model.AutoTestResult {
	time.Sleep(simulatedLatency)
	score := j.Score
	report := model.Report{ScoreOverall: &score}
	j.emitPartialGrade(ctx, report)
	return model.AutoTestResult{
		CommitSHA: j.Input.CommitSHA,
		CommitURL: j.Input.CommitURL,
		DelivID:   j.Input.DelivID,
		RepoID:    j.Input.RepoID,
		Input:     j.Input,
		Output: model.Output{
			Input:  j.Input,
			Report: report,
		},
	}
}

// emitPartialGrade mirrors Job.emitPartialGrade: same sink contract,
// same swallow-and-log failure policy.
func (j *MockJob) emitPartialGrade(ctx context.Context, report model.Report) {
	if j.gradeSink == nil || report.ScoreOverall == nil {
		return
	}
	transport := model.GradeTransport{
		DelivID:   j.Input.DelivID,
		RepoID:    j.Input.RepoID,
		Score:     *report.ScoreOverall,
		URLName:   j.Input.CommitSHA,
		URL:       j.Input.CommitURL,
		Timestamp: time.Now(),
	}
	if _, err := j.gradeSink.SubmitGrade(ctx, transport); err != nil {
		log.Printf("grading: grade sink rejected %s: %v", j.Input.CommitURL, err)
	}
}

// simulatedLatency models the brief delay a real container run would
// incur, so tests exercising the dispatcher's concurrency invariants
// see the running slot occupied for a moment instead of completing
// synchronously within the same tick.
const simulatedLatency = 10 * time.Millisecond

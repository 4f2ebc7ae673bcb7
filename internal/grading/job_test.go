package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classytest/dispatcher/internal/container"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/sink"
)

type fakeCheckout struct {
	err error
}

func (f fakeCheckout) Checkout(ctx context.Context, target model.CommitTarget, dir string) error {
	return f.err
}

type fakeRuntime struct {
	report container.Report
	err    error
}

func (f fakeRuntime) Run(ctx context.Context, image, workspacePath string, timeout time.Duration) (container.Report, error) {
	return f.report, f.err
}

type fakeGradeSink struct {
	grades []model.GradeTransport
}

func (f *fakeGradeSink) SubmitGrade(ctx context.Context, grade model.GradeTransport) (*sink.Rejection, error) {
	f.grades = append(f.grades, grade)
	return nil, nil
}

func testInput(t *testing.T) model.ContainerInput {
	t.Helper()
	return model.ContainerInput{
		CommitTarget: model.CommitTarget{
			CommitSHA:   "abc123",
			CommitURL:   "https://git.example.com/org/repo/commit/abc123",
			RepoID:      "repo1",
			DelivID:     "d1",
			PostbackURL: "https://collector.example.com/postback",
		},
		Image:   "grader:latest",
		Timeout: time.Second,
	}
}

func TestJobExecuteExtractsScoreAndEmitsGrade(t *testing.T) {
	sink := &fakeGradeSink{}
	input := testInput(t)
	job := NewJob(input, fakeCheckout{}, sink, t.TempDir())
	runtime := fakeRuntime{report: container.Report{
		ExitCode: 0,
		Stdout:   "running tests...\n{\"scoreOverall\": 87.5}\n",
	}}

	result := job.Execute(context.Background(), runtime)

	if result.Output.Report.ScoreOverall == nil {
		t.Fatalf("expected a score to be extracted")
	}
	if *result.Output.Report.ScoreOverall != 87.5 {
		t.Fatalf("expected score 87.5, got %v", *result.Output.Report.ScoreOverall)
	}
	if len(sink.grades) != 1 {
		t.Fatalf("expected exactly one grade submitted, got %d", len(sink.grades))
	}
	if sink.grades[0].Score != 87.5 || sink.grades[0].RepoID != "repo1" || sink.grades[0].DelivID != "d1" {
		t.Fatalf("unexpected grade transport: %+v", sink.grades[0])
	}
}

func TestJobExecuteNonZeroExitSkipsGrade(t *testing.T) {
	sink := &fakeGradeSink{}
	input := testInput(t)
	job := NewJob(input, fakeCheckout{}, sink, t.TempDir())
	runtime := fakeRuntime{report: container.Report{
		ExitCode: 1,
		Stderr:   "tests failed to build",
	}}

	result := job.Execute(context.Background(), runtime)

	if result.Output.Report.ScoreOverall != nil {
		t.Fatalf("expected no score on a non-zero exit")
	}
	if result.Output.Report.ErrorMessage == "" {
		t.Fatalf("expected an error message on a non-zero exit")
	}
	if len(sink.grades) != 0 {
		t.Fatalf("expected no grade submitted on a non-zero exit")
	}
}

func TestJobExecuteCheckoutFailureIsWellFormed(t *testing.T) {
	sink := &fakeGradeSink{}
	input := testInput(t)
	job := NewJob(input, fakeCheckout{err: errors.New("clone failed")}, sink, t.TempDir())

	result := job.Execute(context.Background(), fakeRuntime{})

	if !result.Valid() {
		t.Fatalf("expected a well-formed result even on checkout failure")
	}
	if result.Output.Report.ErrorMessage == "" {
		t.Fatalf("expected an error message on checkout failure")
	}
	if len(sink.grades) != 0 {
		t.Fatalf("expected no grade submitted on checkout failure")
	}
}

func TestScoreFromReportIgnoresNonReportLines(t *testing.T) {
	stdout := "building...\nrunning suite A\nrunning suite B\n{\"scoreOverall\": 42}\n"
	score := scoreFromReport(stdout)
	if score == nil || *score != 42 {
		t.Fatalf("expected score 42, got %v", score)
	}
}

func TestScoreFromReportNoJSONReturnsNil(t *testing.T) {
	if score := scoreFromReport("plain text with no report line\n"); score != nil {
		t.Fatalf("expected nil score, got %v", *score)
	}
}

func TestMockJobEmitsPartialGrade(t *testing.T) {
	sink := &fakeGradeSink{}
	input := testInput(t)
	input.PostbackURL = model.PostbackEmpty
	job := NewMockJob(input, 91, sink)

	result := job.Execute(context.Background(), fakeRuntime{})

	if result.Output.Report.ScoreOverall == nil || *result.Output.Report.ScoreOverall != 91 {
		t.Fatalf("expected the mock's fixed score in the result")
	}
	if len(sink.grades) != 1 || sink.grades[0].Score != 91 {
		t.Fatalf("expected the mock path to emit one grade, got %+v", sink.grades)
	}
}

func TestNewRunnerSelectsMockForEmptyPostback(t *testing.T) {
	input := testInput(t)
	input.PostbackURL = model.PostbackEmpty

	runner := NewRunner(input, fakeCheckout{}, &fakeGradeSink{}, t.TempDir())
	if _, ok := runner.(*MockJob); !ok {
		t.Fatalf("expected a MockJob for an empty postback URL, got %T", runner)
	}
}

func TestNewRunnerSelectsRealJobForRealPostback(t *testing.T) {
	input := testInput(t)

	runner := NewRunner(input, fakeCheckout{}, &fakeGradeSink{}, t.TempDir())
	if _, ok := runner.(*Job); !ok {
		t.Fatalf("expected a real Job for a non-mock postback URL, got %T", runner)
	}
}

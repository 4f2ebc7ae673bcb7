// Package grading implements the Grading Job Runner (spec §4.C): workspace
// preparation, container execution with a per-deliverable timeout, and
// report collection. Grounded in the teacher's control_plane/jobs.go
// Dispatcher and reconciler.go's timeout-via-context pattern.
package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/classytest/dispatcher/internal/container"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/sink"
)

// HistoryCheckout fetches a commit's source tree into dir. The real
// implementation (a thin process wrapper around local history
// checkout, per spec §1) is an external collaborator; tests inject a
// fake.
type HistoryCheckout interface {
	Checkout(ctx context.Context, target model.CommitTarget, dir string) error
}

// Job is a one-shot handle wrapping a ContainerInput. prepare() is
// idempotent; run() launches the container and always returns a
// well-formed AutoTestResult, even on container error or timeout.
type Job struct {
	Input model.ContainerInput

	checkout  HistoryCheckout
	gradeSink sink.GradeSink
	workDir   string

	prepareOnce sync.Once
	prepareErr  error
	prepared    bool
}

// NewJob builds a Job for input. baseWorkDir is the parent directory
// under which each job gets its own subdirectory.
func NewJob(input model.ContainerInput, checkout HistoryCheckout, gradeSink sink.GradeSink, baseWorkDir string) *Job {
	return &Job{
		Input:     input,
		checkout:  checkout,
		gradeSink: gradeSink,
		workDir:   filepath.Join(baseWorkDir, sanitize(input.CommitTarget.Key())),
	}
}

func sanitize(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Prepare creates the per-job working area and checks out the target
// commit's source tree. A second call is a no-op (spec §4.C).
func (j *Job) Prepare(ctx context.Context) error {
	j.prepareOnce.Do(func() {
		if err := os.MkdirAll(j.workDir, 0o755); err != nil {
			j.prepareErr = fmt.Errorf("create workspace: %w", err)
			return
		}
		if j.checkout != nil {
			if err := j.checkout.Checkout(ctx, j.Input.CommitTarget, j.workDir); err != nil {
				j.prepareErr = fmt.Errorf("checkout commit: %w", err)
				return
			}
		}
		j.prepared = true
	})
	return j.prepareErr
}

// Execute starts a container with the deliverable's image, bind-mounts
// the prepared tree, enforces the per-deliverable timeout, and
// collects the structured report. The returned AutoTestResult is
// always well-formed, even when the container errors or times out.
func (j *Job) Execute(ctx context.Context, runtime container.Runtime) model.AutoTestResult {
	result := model.AutoTestResult{
		CommitSHA: j.Input.CommitSHA,
		CommitURL: j.Input.CommitURL,
		DelivID:   j.Input.DelivID,
		RepoID:    j.Input.RepoID,
		Input:     j.Input,
	}

	if err := j.Prepare(ctx); err != nil {
		result.Output.Report = model.Report{ErrorMessage: err.Error()}
		return result
	}

	timeout := j.Input.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	report, err := runtime.Run(ctx, j.Input.Image, j.workDir, timeout)
	if err != nil {
		result.Output.Report = model.Report{ErrorMessage: err.Error()}
		return result
	}

	modelReport := model.Report{
		TimedOut: report.TimedOut,
	}
	if report.TimedOut {
		modelReport.ErrorMessage = "grading container timed out"
	} else if report.ExitCode != 0 {
		modelReport.ErrorMessage = fmt.Sprintf("container exited with status %d: %s", report.ExitCode, report.Stderr)
	} else {
		score := scoreFromReport(report.Stdout)
		modelReport.ScoreOverall = score
	}
	result.Output.Report = modelReport

	j.emitPartialGrade(ctx, modelReport)
	return result
}

// emitPartialGrade posts the just-computed score to the grade sink
// (delivId, repoId, score, urlName, URL=commitURL, timestamp), per
// spec §4.C. RepoURL is left empty: the job's input carries no
// repository URL. Sink failures are logged and swallowed to protect
// queue health (spec §4.B step 3 applies the same policy to the
// dispatcher's extension point; the runner applies it here too).
func (j *Job) emitPartialGrade(ctx context.Context, report model.Report) {
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

// reportLine is the concrete stdout convention this core adopts so the
// dispatcher is runnable end-to-end: a deliverable's container prints
// one line of JSON shaped like this to stdout. Full report parsing
// (per-test breakdown, custom fields) is deliverable-specific and out
// of scope for the core (spec §1, "grading container lifecycle below
// the run-a-job boundary") — only scoreOverall is pulled out here.
type reportLine struct {
	ScoreOverall *float64 `json:"scoreOverall"`
}

// scoreFromReport extracts scoreOverall from a container's stdout. It
// scans from the last line backwards since a deliverable may also
// print build/test chatter before its final report line.
func scoreFromReport(stdout string) *float64 {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var parsed reportLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if parsed.ScoreOverall != nil {
			return parsed.ScoreOverall
		}
	}
	return nil
}

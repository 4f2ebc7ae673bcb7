package grading

import (
	"context"

	"github.com/classytest/dispatcher/internal/container"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/sink"
)

// Runner is the common shape the Dispatcher launches: prepare, then
// execute against a container runtime (ignored by the mock path).
type Runner interface {
	Prepare(ctx context.Context) error
	Execute(ctx context.Context, runtime container.Runtime) model.AutoTestResult
}

// NewRunner selects MockJob when the target's postbackURL is the
// EMPTY/POSTBACK sentinel, and a real Job otherwise (spec §4.C).
func NewRunner(input model.ContainerInput, checkout HistoryCheckout, gradeSink sink.GradeSink, baseWorkDir string) Runner {
	if input.IsMock() {
		return NewMockJob(input, 100, gradeSink)
	}
	return NewJob(input, checkout, gradeSink, baseWorkDir)
}

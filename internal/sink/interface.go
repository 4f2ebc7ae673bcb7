// Package sink defines the external result/grade postback collaborators
// (spec §6) plus two reference implementations: an HTTP POST client
// (grounded in the teacher's jobs.go Dispatcher) and a websocket
// broadcaster for live observation (grounded in control_plane/ws_hub.go).
package sink

import (
	"context"

	"github.com/classytest/dispatcher/internal/model"
)

// Rejection is returned by a sink when it declines to store a record.
type Rejection struct {
	Message string
}

// ResultSink accepts a completed AutoTestResult. A non-nil *Rejection
// means the record was not stored; the dispatcher logs this and moves
// on (spec §4.B completion path step 2).
type ResultSink interface {
	SubmitResult(ctx context.Context, result model.AutoTestResult) (*Rejection, error)
}

// GradeSink accepts a partial grade transport, emitted after a
// GradingJob finishes running (spec §4.C).
type GradeSink interface {
	SubmitGrade(ctx context.Context, grade model.GradeTransport) (*Rejection, error)
}

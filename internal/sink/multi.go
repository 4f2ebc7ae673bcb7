package sink

import (
	"context"

	"github.com/classytest/dispatcher/internal/model"
)

// MultiResultSink fans a result out to every wrapped sink. The first
// rejection wins; every sink is still given the result regardless of
// an earlier one's outcome, mirroring the completion path's own
// log-and-continue policy toward a single sink's failure.
type MultiResultSink struct {
	sinks []ResultSink
}

// NewMultiResultSink wraps sinks for fan-out delivery.
func NewMultiResultSink(sinks ...ResultSink) *MultiResultSink {
	return &MultiResultSink{sinks: sinks}
}

func (m *MultiResultSink) SubmitResult(ctx context.Context, result model.AutoTestResult) (*Rejection, error) {
	var firstRejection *Rejection
	var firstErr error
	for _, s := range m.sinks {
		rejection, err := s.SubmitResult(ctx, result)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if rejection != nil && firstRejection == nil {
			firstRejection = rejection
		}
	}
	return firstRejection, firstErr
}

package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/classytest/dispatcher/internal/model"
)

type recordingSink struct {
	calls     int
	rejection *Rejection
	err       error
}

func (r *recordingSink) SubmitResult(ctx context.Context, result model.AutoTestResult) (*Rejection, error) {
	r.calls++
	return r.rejection, r.err
}

func TestMultiResultSinkFansOutToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := NewMultiResultSink(a, b)

	rejection, err := multi.SubmitResult(context.Background(), model.AutoTestResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection != nil {
		t.Fatalf("expected no rejection, got %+v", rejection)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected both sinks to be called once, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestMultiResultSinkStillCallsEverySinkOnFailure(t *testing.T) {
	a := &recordingSink{err: errors.New("network down")}
	b := &recordingSink{}
	multi := NewMultiResultSink(a, b)

	_, err := multi.SubmitResult(context.Background(), model.AutoTestResult{})
	if err == nil {
		t.Fatalf("expected the first sink's error to propagate")
	}
	if b.calls != 1 {
		t.Fatalf("expected the second sink to still be called despite the first's error")
	}
}

func TestMultiResultSinkReturnsFirstRejection(t *testing.T) {
	a := &recordingSink{rejection: &Rejection{Message: "duplicate"}}
	b := &recordingSink{rejection: &Rejection{Message: "also duplicate"}}
	multi := NewMultiResultSink(a, b)

	rejection, err := multi.SubmitResult(context.Background(), model.AutoTestResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection == nil || rejection.Message != "duplicate" {
		t.Fatalf("expected the first sink's rejection, got %+v", rejection)
	}
}

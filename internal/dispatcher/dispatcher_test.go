package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/classytest/dispatcher/internal/idempotency"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/sink"
)

// fakeResultSink records every forwarded result and signals a channel
// so tests can wait on dispatcher goroutines deterministically rather
// than sleeping.
type fakeResultSink struct {
	mu       sync.Mutex
	received []model.AutoTestResult
	ch       chan model.AutoTestResult
}

func newFakeResultSink() *fakeResultSink {
	return &fakeResultSink{ch: make(chan model.AutoTestResult, 16)}
}

func (f *fakeResultSink) SubmitResult(ctx context.Context, result model.AutoTestResult) (*sink.Rejection, error) {
	f.mu.Lock()
	f.received = append(f.received, result)
	f.mu.Unlock()
	f.ch <- result
	return nil, nil
}

type fakeGradeSink struct{}

func (fakeGradeSink) SubmitGrade(ctx context.Context, g model.GradeTransport) (*sink.Rejection, error) {
	return nil, nil
}

func newTestDispatcher(resultSink sink.ResultSink) *Dispatcher {
	return New(DefaultConfig(), resultSink, fakeGradeSink{}, nil, nil, idempotency.NewMemoryStore())
}

// mockInput builds a ContainerInput whose postback URL selects the
// MockJob path, so tests never touch a real container runtime or
// checkout.
func mockInput(commitURL, delivID string) model.ContainerInput {
	return model.ContainerInput{
		CommitTarget: model.CommitTarget{
			CommitSHA:   "sha-" + commitURL,
			CommitURL:   commitURL,
			DelivID:     delivID,
			PostbackURL: model.PostbackEmpty,
			Timestamp:   time.Now(),
		},
		SubmitTime: time.Now(),
	}
}

func waitForResult(t *testing.T, ch chan model.AutoTestResult) model.AutoTestResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher to complete a job")
		return model.AutoTestResult{}
	}
}

func TestAddToStandardQueueRunsOnTick(t *testing.T) {
	rs := newFakeResultSink()
	d := newTestDispatcher(rs)

	d.AddToStandardQueue(mockInput("c1", "d0"))
	d.Tick(context.Background())

	result := waitForResult(t, rs.ch)
	if result.CommitURL != "c1" {
		t.Fatalf("expected result for c1, got %s", result.CommitURL)
	}

	// The completion path clears the running slot on all three tiers.
	deadline := time.Now().Add(time.Second)
	for d.standard.NumRunning() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if d.standard.NumRunning() != 0 {
		t.Fatalf("expected standard running slot cleared after completion")
	}
}

func TestPromotionCascadesExpressToStandard(t *testing.T) {
	rs := newFakeResultSink()
	d := newTestDispatcher(rs)

	// Express capacity is 1: queue two jobs directly on the express
	// tier (simulating prior PromoteIfNeeded calls) so the first fills
	// the only slot and the second must cascade to standard.
	d.express.Push(mockInput("e1", "d0"))
	d.express.Push(mockInput("e2", "d0"))

	d.Tick(context.Background())

	first := waitForResult(t, rs.ch)
	second := waitForResult(t, rs.ch)
	got := map[string]bool{first.CommitURL: true, second.CommitURL: true}
	if !got["e1"] || !got["e2"] {
		t.Fatalf("expected both e1 and e2 to complete, got %v", got)
	}
}

func TestHandleExecutionCompleteDropsInvalidResult(t *testing.T) {
	rs := newFakeResultSink()
	d := newTestDispatcher(rs)

	d.express.Push(mockInput("bad", "d0"))
	d.express.ScheduleNext()

	// Missing CommitSHA and Input makes Valid() false; CommitURL/DelivID
	// still name the running slot the completion path must free.
	d.handleExecutionComplete(context.Background(), model.AutoTestResult{CommitURL: "bad", DelivID: "d0"})

	select {
	case r := <-rs.ch:
		t.Fatalf("expected no result forwarded for an invalid result, got %v", r)
	case <-time.After(50 * time.Millisecond):
	}

	if d.express.IsCommitExecuting("bad", "d0") {
		t.Fatalf("expected running slot cleared even when the result was invalid")
	}
}

func TestPromoteIfNeededMovesQueuedJobToExpress(t *testing.T) {
	rs := newFakeResultSink()
	d := newTestDispatcher(rs)

	d.standard.Push(mockInput("s1", "d0"))
	d.standard.Push(mockInput("s2", "d0")) // position 1

	target := model.CommitTarget{CommitURL: "s2", DelivID: "d0"}
	d.PromoteIfNeeded(context.Background(), target)

	if d.standard.IndexOf("s2") != -1 {
		t.Fatalf("expected s2 removed from standard after promotion")
	}
	if !d.express.IsCommitExecuting("s2", "d0") {
		t.Fatalf("expected s2 scheduled onto express immediately, since a slot was free")
	}

	waitForResult(t, rs.ch)
}

func TestPromoteIfNeededNoOpWhenAlreadyRunning(t *testing.T) {
	rs := newFakeResultSink()
	d := newTestDispatcher(rs)

	d.standard.Push(mockInput("r1", "d0"))
	d.standard.ScheduleNext()

	target := model.CommitTarget{CommitURL: "r1", DelivID: "d0"}
	d.PromoteIfNeeded(context.Background(), target)

	if !d.standard.IsCommitExecuting("r1", "d0") {
		t.Fatalf("expected r1 to remain running on standard, untouched by PromoteIfNeeded")
	}
	if d.express.IsCommitExecuting("r1", "d0") {
		t.Fatalf("a running job must never be moved by PromoteIfNeeded")
	}
}

func TestDispatcherRunStopsOnContextCancel(t *testing.T) {
	rs := newFakeResultSink()
	d := newTestDispatcher(rs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

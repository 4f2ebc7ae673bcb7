// Package dispatcher implements the three-tier priority scheduler with
// cross-tier promotion (spec §4.B): it owns the express/standard/
// regression Job Queues, ticks, schedules into free slots, and
// promotes backlog across tiers. Grounded in the teacher's
// control_plane/scheduler/scheduler.go worker loop and completion
// bookkeeping, adapted from a single heap-ordered queue with aging to
// three FIFO tiers with explicit promotion rules (spec §4.B).
package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/classytest/dispatcher/internal/container"
	"github.com/classytest/dispatcher/internal/grading"
	"github.com/classytest/dispatcher/internal/idempotency"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/observability"
	"github.com/classytest/dispatcher/internal/queue"
	"github.com/classytest/dispatcher/internal/sink"
)

// Config sets the per-tier capacities. Defaults match spec §4.B:
// express=1, standard=2, regression=1.
type Config struct {
	SlotsExpress    int
	SlotsStandard   int
	SlotsRegression int
	WorkDir         string
}

// DefaultConfig returns the spec's documented tier capacities.
func DefaultConfig() Config {
	return Config{SlotsExpress: 1, SlotsStandard: 2, SlotsRegression: 1, WorkDir: "/tmp/dispatcher-jobs"}
}

// Dispatcher owns the three priority tiers exclusively. The completion
// path runs in the goroutine launch() starts around each job; neither
// the job nor its queue entry stores a back-pointer to the dispatcher,
// avoiding the cyclic
// dispatcher-owns-queue-owns-job-calls-back-into-dispatcher shape the
// teacher's source notes explicitly call out (spec §9 DESIGN NOTES).
type Dispatcher struct {
	express    *queue.Queue
	standard   *queue.Queue
	regression *queue.Queue

	resultSink sink.ResultSink
	gradeSink  sink.GradeSink
	checkout   grading.HistoryCheckout
	runtime    container.Runtime
	dedup      *idempotency.Store
	workDir    string

	// ProcessExecution is the subclass-supplied extension point (e.g.
	// feedback posting). Its errors are swallowed to protect queue
	// health (spec §4.B completion path step 3).
	ProcessExecution func(ctx context.Context, result model.AutoTestResult) error

	mu sync.Mutex // serializes all queue mutation and tick() invocations
}

// New builds a Dispatcher with three fixed-capacity tiers.
func New(cfg Config, resultSink sink.ResultSink, gradeSink sink.GradeSink, checkout grading.HistoryCheckout, runtime container.Runtime, dedup *idempotency.Store) *Dispatcher {
	return &Dispatcher{
		express:    queue.New("express", cfg.SlotsExpress),
		standard:   queue.New("standard", cfg.SlotsStandard),
		regression: queue.New("regression", cfg.SlotsRegression),
		resultSink: resultSink,
		gradeSink:  gradeSink,
		checkout:   checkout,
		runtime:    runtime,
		dedup:      dedup,
		workDir:    cfg.WorkDir,
	}
}

// AddToStandardQueue admits a job to the standard tier (spec §4.B
// public contract).
func (d *Dispatcher) AddToStandardQueue(input model.ContainerInput) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.standard.Push(input)
	observability.QueueDepth.WithLabelValues(d.standard.GetName()).Set(float64(d.standard.Length()))
}

// Tick advances the scheduler once. Idempotent under "nothing to do".
// Every path is wrapped so a panic becomes a logged error instead of
// killing the dispatcher (spec §7 Fatal).
func (d *Dispatcher) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		observability.TickDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			log.Printf("dispatcher: tick panicked: %v", r)
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.scheduleLocked(ctx, d.express)
	d.promoteLocked(ctx, d.express, d.standard)
	d.promoteLocked(ctx, d.express, d.regression)
	d.scheduleLocked(ctx, d.standard)
	d.promoteLocked(ctx, d.standard, d.regression)
	d.scheduleLocked(ctx, d.regression)
}

// scheduleLocked schedules the head of q's waiting list into a free
// running slot and detaches a grading job runner invocation for the
// result. Caller must hold d.mu.
func (d *Dispatcher) scheduleLocked(ctx context.Context, q *queue.Queue) {
	if !q.HasCapacity() || q.Length() == 0 {
		return
	}
	input, err := q.ScheduleNext()
	if err != nil {
		return
	}
	observability.SchedulingDecisions.WithLabelValues("DISPATCH", q.GetName()).Inc()
	observability.QueueDepth.WithLabelValues(q.GetName()).Set(float64(q.Length()))
	observability.QueueRunning.WithLabelValues(q.GetName()).Set(float64(q.NumRunning()))
	if !input.SubmitTime.IsZero() {
		observability.JobWaitSeconds.Observe(time.Since(input.SubmitTime).Seconds())
	}
	d.launch(input)
}

// promoteLocked moves backlog from f into t when t has spare capacity,
// then immediately tries to schedule t (spec §4.B promote()).
// Promotion reverses direction from normal tier priority because the
// *slots*, not the jobs, are the scarce resource: express stealing
// backlog from slower tiers keeps slots warm.
func (d *Dispatcher) promoteLocked(ctx context.Context, f, t *queue.Queue) {
	if f.Length() == 0 || !t.HasCapacity() {
		return
	}
	input, err := f.Pop()
	if err != nil {
		return
	}
	t.PushFirst(input)
	observability.SchedulingDecisions.WithLabelValues("PROMOTE", t.GetName()).Inc()
	d.scheduleLocked(ctx, t)
}

// PromoteIfNeeded considers moving an already-queued job to express on
// a user-initiated feedback request (spec §4.B Promotion on demand).
func (d *Dispatcher) PromoteIfNeeded(ctx context.Context, target model.CommitTarget) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunningLocked(target.CommitURL, target.DelivID) {
		return // running: no-op
	}

	if moved := d.considerPromoteLocked(ctx, d.standard, target); moved {
		return
	}
	d.considerPromoteLocked(ctx, d.regression, target)
	// Otherwise: not present, or already on express — no-op.
}

func (d *Dispatcher) considerPromoteLocked(ctx context.Context, from *queue.Queue, target model.CommitTarget) bool {
	p := from.IndexOf(target.CommitURL)
	if p == -1 {
		return false
	}
	if d.express.Length() >= p {
		// Staying put finishes sooner than re-queuing at the tail of express.
		return true
	}
	input, ok := from.Remove(target.CommitURL)
	if !ok {
		return true
	}
	d.express.Push(input)
	observability.SchedulingDecisions.WithLabelValues("PROMOTE_ON_DEMAND", "express").Inc()
	d.scheduleLocked(ctx, d.express)
	return true
}

func (d *Dispatcher) isRunningLocked(commitURL, delivID string) bool {
	return d.express.IsCommitExecuting(commitURL, delivID) ||
		d.standard.IsCommitExecuting(commitURL, delivID) ||
		d.regression.IsCommitExecuting(commitURL, delivID)
}

package dispatcher

import (
	"context"
	"log"
	"time"

	"github.com/classytest/dispatcher/internal/grading"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/observability"
)

// DefaultTickInterval is how often Run drives Tick when the caller
// doesn't override it (spec §4.B periodic tick).
const DefaultTickInterval = 100 * time.Millisecond

// Run drives Tick on a fixed interval until ctx is cancelled. Intended
// to be launched in its own goroutine by cmd/dispatcherd.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// launch detaches a grading job runner invocation. It is fire-and-
// forget: the caller (scheduleLocked) does not wait on it, and a panic
// inside is recovered so one bad job can never take down the
// dispatcher (spec §4.B, §7).
func (d *Dispatcher) launch(input model.ContainerInput) {
	runner := grading.NewRunner(input, d.checkout, d.gradeSink, d.workDir)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("dispatcher: grading job panicked for %s: %v", input.CommitURL, r)
				d.handleExecutionComplete(context.Background(), model.AutoTestResult{
					CommitSHA: input.CommitSHA,
					CommitURL: input.CommitURL,
					DelivID:   input.DelivID,
					RepoID:    input.RepoID,
					Input:     input,
					Output: model.Output{
						Input:  input,
						Report: model.Report{ErrorMessage: "grading job panicked"},
					},
				})
			}
		}()

		runCtx := context.Background()
		start := time.Now()
		if err := runner.Prepare(runCtx); err != nil {
			log.Printf("dispatcher: prepare failed for %s: %v", input.CommitURL, err)
		}
		result := runner.Execute(runCtx, d.runtime)

		observability.JobRuntimeSeconds.Observe(time.Since(start).Seconds())
		if result.Output.Report.TimedOut {
			observability.JobTimeouts.WithLabelValues(input.DelivID).Inc()
		}

		d.handleExecutionComplete(runCtx, result)
	}()
}

// handleExecutionComplete is the five-step completion path (spec
// §4.B): validate, forward to the result sink (idempotency-guarded),
// invoke the extension point, clear the running slot on all three
// tiers, and tick again.
func (d *Dispatcher) handleExecutionComplete(ctx context.Context, result model.AutoTestResult) {
	if !result.Valid() {
		log.Printf("dispatcher: dropping malformed result for %s/%s", result.CommitURL, result.DelivID)
		d.clearAndTick(ctx, result)
		return
	}

	key := result.CommitURL + "|" + result.DelivID
	if d.dedup == nil || !d.dedup.SeenAndMark(ctx, key) {
		if d.resultSink != nil {
			if rej, err := d.resultSink.SubmitResult(ctx, result); err != nil {
				log.Printf("dispatcher: result sink error for %s: %v", result.CommitURL, err)
			} else if rej != nil {
				log.Printf("dispatcher: result sink rejected %s: %s", result.CommitURL, rej.Message)
			}
		}
	} else {
		log.Printf("dispatcher: duplicate completion for %s/%s, skipping result sink", result.CommitURL, result.DelivID)
	}

	if d.ProcessExecution != nil {
		if err := d.ProcessExecution(ctx, result); err != nil {
			log.Printf("dispatcher: processExecution error for %s: %v", result.CommitURL, err)
		}
	}

	d.clearAndTick(ctx, result)
}

func (d *Dispatcher) clearAndTick(ctx context.Context, result model.AutoTestResult) {
	d.mu.Lock()
	d.express.ClearExecution(result.CommitURL, result.DelivID)
	d.standard.ClearExecution(result.CommitURL, result.DelivID)
	d.regression.ClearExecution(result.CommitURL, result.DelivID)
	observability.QueueRunning.WithLabelValues(d.express.GetName()).Set(float64(d.express.NumRunning()))
	observability.QueueRunning.WithLabelValues(d.standard.GetName()).Set(float64(d.standard.NumRunning()))
	observability.QueueRunning.WithLabelValues(d.regression.GetName()).Set(float64(d.regression.NumRunning()))
	d.mu.Unlock()

	d.Tick(ctx)
}

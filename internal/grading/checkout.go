package grading

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/classytest/dispatcher/internal/model"
)

// GitCheckout is the reference HistoryCheckout: a shallow clone of
// CommitURL's repository followed by a checkout of CommitSHA, grounded
// in the exec.CommandContext("git", ...) pattern used for git
// subprocess orchestration elsewhere in the example pack.
type GitCheckout struct{}

// Checkout clones target's repository into dir and checks out its
// commit SHA.
func (GitCheckout) Checkout(ctx context.Context, target model.CommitTarget, dir string) error {
	clone := exec.CommandContext(ctx, "git", "clone", "--no-checkout", target.CommitURL, dir)
	if out, err := clone.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s: %w: %s", target.CommitURL, err, out)
	}

	checkout := exec.CommandContext(ctx, "git", "-C", dir, "checkout", target.CommitSHA)
	if out, err := checkout.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout %s: %w: %s", target.CommitSHA, err, out)
	}
	return nil
}

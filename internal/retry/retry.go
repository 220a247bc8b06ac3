// Package retry implements the wait-until-ready loop used while acquiring the
// initial connection to the source store.
package retry

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/smukkama/device-etl/internal/clock"
)

// logEvery controls how often an ongoing wait is reported at info level
const logEvery = 50

// Policy configures how an operation is retried
type Policy struct {
	// Interval is the fixed pause between attempts
	Interval time.Duration

	// MaxAttempts bounds the number of attempts. Zero retries forever.
	MaxAttempts int
}

// DefaultPolicy polls every 100ms without giving up
func DefaultPolicy() Policy {
	return Policy{
		Interval:    100 * time.Millisecond,
		MaxAttempts: 0,
	}
}

// Retrier runs an operation until it succeeds, the policy gives up, or the
// context is cancelled
type Retrier struct {
	policy Policy
	clock  clock.Clock
	logger log.Logger
}

// New creates a Retrier. The clock is used for the pause between attempts.
func New(policy Policy, clk clock.Clock, logger log.Logger) *Retrier {
	return &Retrier{
		policy: policy,
		clock:  clk,
		logger: log.With(logger, "module", "retry"),
	}
}

// Do calls op until it returns nil
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				level.Info(r.logger).Log("msg", "operation succeeded after retrying", "attempts", attempt)
			}
			return nil
		}

		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			return errors.Wrapf(err, "giving up after %d attempts", attempt)
		}

		if attempt == 1 || attempt%logEvery == 0 {
			level.Info(r.logger).Log("msg", "operation failed, waiting before retry", "attempt", attempt, "err", err)
		} else {
			level.Debug(r.logger).Log("msg", "operation failed", "attempt", attempt, "err", err)
		}

		if serr := r.clock.Sleep(ctx, r.policy.Interval); serr != nil {
			return errors.Wrapf(serr, "retry aborted after %d attempts (last error: %v)", attempt, err)
		}
	}
}

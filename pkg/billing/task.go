package billing

import (
	"context"

	"github.com/dmitrymomot/billing/pkg/queue"
)

// SweepTaskName names the periodic queue task that runs Sweep.
const SweepTaskName = "billing.sweep"

// SweepHandler runs Sweep for the tasks the queue scheduler creates under
// SweepTaskName. Only a failure to load due subscriptions fails the task.
func (e *Engine) SweepHandler() queue.Handler {
	return queue.NewPeriodicTaskHandler(SweepTaskName, func(ctx context.Context) error {
		_, err := e.Sweep(ctx)
		return err
	})
}

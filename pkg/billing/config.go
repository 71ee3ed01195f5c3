package billing

import (
	"time"

	"github.com/dmitrymomot/billing/pkg/subscription"
)

// Config holds billing engine settings.
type Config struct {
	SweepInterval time.Duration   `env:"BILLING_SWEEP_INTERVAL" envDefault:"15m"`
	ChargeTimeout time.Duration   `env:"BILLING_CHARGE_TIMEOUT" envDefault:"30s"`
	RetrySchedule []time.Duration `env:"BILLING_RETRY_SCHEDULE" envDefault:"24h,72h,120h" envSeparator:","`
	RetryWindow   time.Duration   `env:"BILLING_RETRY_WINDOW" envDefault:"168h"`
	Concurrency   int             `env:"BILLING_CONCURRENCY" envDefault:"8"`
	BatchSize     int             `env:"BILLING_BATCH_SIZE" envDefault:"500"`
	LockWait      time.Duration   `env:"BILLING_LOCK_WAIT" envDefault:"5s"`
}

// RetryPolicy converts the retry settings for subscription.Lifecycle.
func (c Config) RetryPolicy() subscription.RetryPolicy {
	if len(c.RetrySchedule) == 0 {
		return subscription.DefaultRetryPolicy()
	}
	return subscription.RetryPolicy{
		Schedule: append([]time.Duration(nil), c.RetrySchedule...),
		Window:   c.RetryWindow,
	}
}

package subscription

import "time"

// RetryPolicy decides when failed cycle charges are retried and when the
// subscription gives up and expires.
type RetryPolicy struct {
	// Schedule holds retry offsets measured from the cycle's due date.
	// Its length is the maximum number of retries.
	Schedule []time.Duration
	// Window caps the time spent past due, measured from the first failure.
	// Zero disables the cap.
	Window time.Duration
}

// DefaultRetryPolicy retries 1, 3 and 5 days after the due date and expires
// the subscription after 7 days past due.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Schedule: []time.Duration{24 * time.Hour, 72 * time.Hour, 120 * time.Hour},
		Window:   7 * 24 * time.Hour,
	}
}

func (p RetryPolicy) MaxRetries() int {
	return len(p.Schedule)
}

// exhausted reports whether failure number failures (1-based) ends the subscription.
func (p RetryPolicy) exhausted(failures int, pastDueSince *time.Time, now time.Time) bool {
	if failures > len(p.Schedule) {
		return true
	}
	return p.Window > 0 && pastDueSince != nil && now.Sub(*pastDueSince) >= p.Window
}

// nextAttempt returns when retry number failures (1-based) should run.
// If the scheduled moment already passed, the gap to the previous step is
// measured from now instead so a late sweep does not retry back-to-back.
func (p RetryPolicy) nextAttempt(dueDate time.Time, failures int, now time.Time) time.Time {
	offset := p.Schedule[failures-1]
	next := dueDate.Add(offset)
	if next.After(now) {
		return next
	}
	gap := offset
	if failures > 1 {
		gap = offset - p.Schedule[failures-2]
	}
	if gap <= 0 {
		gap = time.Hour
	}
	return now.Add(gap)
}

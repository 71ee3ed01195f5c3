package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// SubscriptionID records a subscription identifier under "subscription_id".
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

func PlanCode(code string) slog.Attr {
	return slog.String("plan_code", code)
}

// AttemptID records a billing attempt identifier under "attempt_id".
func AttemptID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("attempt_id", id)
}

func IdempotencyKey(key string) slog.Attr {
	return slog.String("idempotency_key", key)
}

// EventID records an internal webhook event identifier under "event_id".
func EventID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("event_id", id)
}

// NotificationID is the processor's id for a webhook notification.
func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

func CorrelationID(id string) slog.Attr {
	return slog.String("correlation_id", id)
}

func Status(s string) slog.Attr {
	return slog.String("status", s)
}

// Transition records a state change as "from -> to".
func Transition(from, to string) slog.Attr {
	return slog.Group("transition", slog.String("from", from), slog.String("to", to))
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Package notify delivers operator alerts such as terminally failed webhook
// events or expired subscriptions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Alert is a short operator-facing message.
type Alert struct {
	Subject string
	Body    string
	Fields  map[string]string
}

func (a Alert) Validate() error {
	if strings.TrimSpace(a.Subject) == "" {
		return ErrInvalidAlert
	}
	return nil
}

// Text renders the alert as plain text with fields sorted by key.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Subject)
	b.WriteString("\n\n")
	if a.Body != "" {
		b.WriteString(a.Body)
		b.WriteString("\n\n")
	}
	for _, k := range slices.Sorted(maps.Keys(a.Fields)) {
		fmt.Fprintf(&b, "%s: %s\n", k, a.Fields[k])
	}
	return b.String()
}

// Alerter sends alerts.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, a Alert) error

func (f AlerterFunc) Alert(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// LogAlerter writes alerts to a logger at error level.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(l *slog.Logger) *LogAlerter {
	if l == nil {
		l = slog.Default()
	}
	return &LogAlerter{logger: l}
}

func (l *LogAlerter) Alert(ctx context.Context, a Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	attrs := make([]any, 0, len(a.Fields)+1)
	attrs = append(attrs, slog.String("subject", a.Subject))
	for _, k := range slices.Sorted(maps.Keys(a.Fields)) {
		attrs = append(attrs, slog.String(k, a.Fields[k]))
	}
	l.logger.ErrorContext(ctx, "alert: "+a.Body, attrs...)
	return nil
}

// Multi fans an alert out to every alerter and joins their errors.
func Multi(alerters ...Alerter) Alerter {
	return AlerterFunc(func(ctx context.Context, a Alert) error {
		var errs []error
		for _, al := range alerters {
			if al == nil {
				continue
			}
			if err := al.Alert(ctx, a); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// New builds the alerter described by cfg: always logged, and also emailed
// through Postmark when it is configured.
func New(cfg Config, l *slog.Logger) (Alerter, error) {
	logAlerter := NewLogAlerter(l)
	if !cfg.PostmarkEnabled() {
		return logAlerter, nil
	}
	pm, err := NewPostmarkAlerter(cfg)
	if err != nil {
		return nil, err
	}
	return Multi(logAlerter, pm), nil
}

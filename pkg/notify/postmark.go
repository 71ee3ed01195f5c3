package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/mrz1836/postmark"
)

// PostmarkAlerter emails alerts through Postmark.
type PostmarkAlerter struct {
	client *postmark.Client
	from   string
	to     string
	tag    string
}

func NewPostmarkAlerter(cfg Config) (*PostmarkAlerter, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("%w: From must be a valid email address", ErrInvalidConfig)
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidConfig)
	}
	for _, to := range cfg.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return nil, fmt.Errorf("%w: invalid recipient %q", ErrInvalidConfig, to)
		}
	}

	return &PostmarkAlerter{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.From,
		to:     strings.Join(cfg.To, ","),
		tag:    cfg.Tag,
	}, nil
}

func (p *PostmarkAlerter) Alert(ctx context.Context, a Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       p.to,
		Subject:  "[billing] " + a.Subject,
		Tag:      p.tag,
		TextBody: a.Text(),
	})
	if err != nil {
		return errors.Join(ErrFailedToSendAlert, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendAlert,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

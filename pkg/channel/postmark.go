package channel

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/jwalitptl/notification-service/internal/model"
)

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
	Tag          string
}

type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Postmark sends email through the Postmark transactional API.
type Postmark struct {
	client postmarkSender
	cfg    PostmarkConfig
}

func NewPostmark(cfg PostmarkConfig) (*Postmark, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("postmark from address is required")
	}
	return &Postmark{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg:    cfg,
	}, nil
}

func (p *Postmark) Kind() model.NotificationType {
	return model.NotificationTypeEmail
}

func (p *Postmark) Send(ctx context.Context, to, subject, body string) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.cfg.From,
		ReplyTo:  p.cfg.ReplyTo,
		To:       to,
		Subject:  subject,
		Tag:      p.cfg.Tag,
		TextBody: body,
	})
	if err != nil {
		return fmt.Errorf("postmark send failed: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

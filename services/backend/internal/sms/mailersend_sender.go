package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendSender struct {
	client  *mailersend.Mailersend
	from    string
	enabled bool
}

func NewMailerSend(apiKey, from string) *MailerSendSender {
	s := &MailerSendSender{
		enabled: apiKey != "" && from != "",
		from:    from,
	}

	if s.enabled {
		s.client = mailersend.NewMailersend(apiKey)
	}

	return s
}

func (s *MailerSendSender) SendCode(ctx context.Context, phone, code string) error {
	if !s.enabled {
		return fmt.Errorf("MailerSend SMS not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := s.client.Sms.NewMessage()
	msg.SetFrom(s.from)
	msg.SetTo([]string{phone})
	msg.SetText(codeText(code))

	if _, err := s.client.Sms.Send(ctx, msg); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

package sms

import (
	"context"

	"github.com/diagnosis/ukrbe-market/pkg/logger"
)

// DevSender logs codes instead of texting them.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (d *DevSender) SendCode(ctx context.Context, phone, code string) error {
	logger.InfoContext(ctx, "[DEV SMS] login code",
		"to", phone,
		"code", code,
		"text", codeText(code),
	)
	return nil
}

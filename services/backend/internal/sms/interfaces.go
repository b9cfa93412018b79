package sms

import "context"

type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

func codeText(code string) string {
	return "UkrBE: ваш код входу " + code + ". Він дійсний 5 хвилин."
}

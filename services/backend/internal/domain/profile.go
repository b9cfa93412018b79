package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/diagnosis/ukrbe-market/internal/otp"
)

const (
	CodeLength  = 6
	MaxNameLen  = 80
	DefaultName = otp.DefaultName
)

type Profile struct {
	ID               string    `json:"id"`
	Phone            string    `json:"phone"`
	Name             string    `json:"name"`
	City             string    `json:"city"`
	TelegramUsername string    `json:"telegram_username"`
	AvatarURL        string    `json:"avatar_url"`
	PhoneVerified    bool      `json:"phone_verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type OTPRequest struct {
	Phone string `json:"phone"`
}

func (r *OTPRequest) Normalize() {
	r.Phone = otp.NormalizePhone(r.Phone)
}

func (r *OTPRequest) Validate() error {
	if !otp.ValidPhone(r.Phone) {
		return fmt.Errorf("invalid phone number")
	}
	return nil
}

type OTPVerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (r *OTPVerifyRequest) Normalize() {
	r.Phone = otp.NormalizePhone(r.Phone)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *OTPVerifyRequest) Validate() error {
	if !otp.ValidPhone(r.Phone) {
		return fmt.Errorf("invalid phone number")
	}
	if len(r.Code) != CodeLength {
		return fmt.Errorf("code must have %d digits", CodeLength)
	}
	for _, c := range r.Code {
		if c < '0' || c > '9' {
			return fmt.Errorf("code must have %d digits", CodeLength)
		}
	}
	return nil
}

type SessionResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Profile     *Profile  `json:"profile"`
}

// UpdateProfileRequest changes only the fields that are set.
type UpdateProfileRequest struct {
	Name             *string `json:"name,omitempty"`
	City             *string `json:"city,omitempty"`
	TelegramUsername *string `json:"telegram_username,omitempty"`
	AvatarURL        *string `json:"avatar_url,omitempty"`
}

func (r *UpdateProfileRequest) Normalize() {
	trim := func(s *string) {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	trim(r.Name)
	trim(r.City)
	trim(r.AvatarURL)
	if r.TelegramUsername != nil {
		*r.TelegramUsername = strings.TrimPrefix(strings.TrimSpace(*r.TelegramUsername), "@")
	}
}

func (r *UpdateProfileRequest) Validate() error {
	if r.Name != nil {
		if *r.Name == "" {
			return fmt.Errorf("name cannot be empty")
		}
		if utf8.RuneCountInString(*r.Name) > MaxNameLen {
			return fmt.Errorf("name must be at most %d characters", MaxNameLen)
		}
	}
	if r.AvatarURL != nil && *r.AvatarURL != "" {
		u, err := url.Parse(*r.AvatarURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "data") {
			return fmt.Errorf("invalid avatar url")
		}
	}
	return nil
}

package remote

import (
	"context"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/otp"
)

type wireProfile struct {
	ID               string `json:"id"`
	Phone            string `json:"phone"`
	Name             string `json:"name"`
	City             string `json:"city"`
	TelegramUsername string `json:"telegram_username"`
	AvatarURL        string `json:"avatar_url"`
	PhoneVerified    bool   `json:"phone_verified"`
}

func (w wireProfile) toProfile() otp.Profile {
	return otp.Profile{
		ID:               w.ID,
		Name:             w.Name,
		Phone:            w.Phone,
		City:             w.City,
		TelegramUsername: w.TelegramUsername,
		AvatarURL:        w.AvatarURL,
		PhoneVerified:    w.PhoneVerified,
	}
}

type sessionResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	UserID      string       `json:"user_id"`
	Profile     *wireProfile `json:"profile"`
}

type profilePatch struct {
	Name             *string `json:"name,omitempty"`
	City             *string `json:"city,omitempty"`
	TelegramUsername *string `json:"telegram_username,omitempty"`
	AvatarURL        *string `json:"avatar_url,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *Client) SendOTP(ctx context.Context, phone string) error {
	return c.do(ctx, "POST", "/auth/otp", map[string]string{"phone": phone}, nil, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (otp.Session, otp.Profile, error) {
	var resp sessionResponse
	body := map[string]string{"phone": phone, "code": code}
	if err := c.do(ctx, "POST", "/auth/otp/verify", body, &resp, nil); err != nil {
		return otp.Session{}, otp.Profile{}, err
	}

	session := otp.Session{
		UserID:    resp.UserID,
		Phone:     phone,
		Token:     resp.AccessToken,
		ExpiresAt: resp.ExpiresAt,
	}
	var profile otp.Profile
	if resp.Profile != nil {
		profile = resp.Profile.toProfile()
	}
	return session, profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, token string, p otp.Profile) (otp.Profile, error) {
	patch := profilePatch{
		Name:             optional(p.Name),
		City:             optional(p.City),
		TelegramUsername: optional(p.TelegramUsername),
		AvatarURL:        optional(p.AvatarURL),
	}
	var out wireProfile
	headers := map[string]string{"Authorization": "Bearer " + token}
	if err := c.do(ctx, "PATCH", "/profiles/me", patch, &out, headers); err != nil {
		return otp.Profile{}, err
	}
	return out.toProfile(), nil
}

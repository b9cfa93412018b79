package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/auth"
	"github.com/diagnosis/ukrbe-market/pkg/config"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/repository"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/sms"
)

type AuthService interface {
	RequestCode(ctx context.Context, req *domain.OTPRequest) error
	VerifyCode(ctx context.Context, req *domain.OTPVerifyRequest) (*domain.SessionResponse, error)
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.Profile, error)
}

type authService struct {
	profiles repository.ProfileRepository
	codes    repository.CodeRepository
	quota    repository.SMSQuotaRepository
	sender   sms.Sender
	config   *config.Config

	generateCode func() (string, error)
}

// NewAuthService wires phone login. quota may be nil when Redis is not
// available.
func NewAuthService(
	profiles repository.ProfileRepository,
	codes repository.CodeRepository,
	quota repository.SMSQuotaRepository,
	sender sms.Sender,
	config *config.Config,
) AuthService {
	return &authService{
		profiles:     profiles,
		codes:        codes,
		quota:        quota,
		sender:       sender,
		config:       config,
		generateCode: generateCode,
	}
}

func (s *authService) RequestCode(ctx context.Context, req *domain.OTPRequest) error {
	// Normalize and validate
	req.Normalize()
	if err := req.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}

	reserved := false
	if s.quota != nil {
		allowed, err := s.quota.Allow(ctx, req.Phone, s.config.Auth.SMSPerPhoneHour, time.Hour)
		if err != nil {
			logger.ErrorContext(ctx, "SMS quota check failed", "error", err)
		} else if !allowed {
			return apperr.RateLimited("Too many codes requested for this number. Please try again later.", time.Now().Add(time.Hour))
		} else {
			reserved = true
		}
	}

	if err := s.sendCode(ctx, req.Phone); err != nil {
		if reserved {
			if relErr := s.quota.Release(ctx, req.Phone); relErr != nil {
				logger.WarnContext(ctx, "Failed to release SMS quota", "error", relErr)
			}
		}
		return err
	}
	return nil
}

// sendCode stores a fresh code for phone and texts it.
func (s *authService) sendCode(ctx context.Context, phone string) error {
	code, err := s.generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	codeHash, err := argon2id.CreateHash(code, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	expiresAt := time.Now().Add(s.config.Auth.OTPTTL)
	if err := s.codes.Create(ctx, phone, codeHash, expiresAt); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	// Clients record a request only after this returns nil.
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		logger.ErrorContext(ctx, "Failed to send login code", "error", err)
		return apperr.Service("Could not send the SMS. Please try again.", err)
	}

	logger.InfoContext(ctx, "Login code sent", "expires_at", expiresAt)
	return nil
}

func (s *authService) VerifyCode(ctx context.Context, req *domain.OTPVerifyRequest) (*domain.SessionResponse, error) {
	// Normalize and validate
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	valid, err := s.codes.Check(ctx, req.Phone, req.Code, s.config.Auth.OTPMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}
	if !valid {
		return nil, apperr.Unauthorized("Invalid or expired code")
	}

	profile, err := s.profiles.UpsertVerified(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	token, expiresAt, err := auth.NewSessionToken(profile.ID, profile.Phone, s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.InfoContext(ctx, "Phone verified", "user_id", profile.ID)
	return &domain.SessionResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		UserID:      profile.ID,
		Profile:     profile,
	}, nil
}

func (s *authService) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil {
		return nil, apperr.NotFound("Profile not found")
	}
	return p, nil
}

func (s *authService) UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.Profile, error) {
	// Normalize and validate
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	p, err := s.profiles.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if p == nil {
		return nil, apperr.NotFound("Profile not found")
	}
	return p, nil
}

// generateCode returns a uniformly random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

package handlers

import (
	"net/http"

	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
)

// RequestOTP texts a login code to the phone in the body
func (h *Handlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.OTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	if err := h.authService.RequestCode(r.Context(), &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Code sent",
	})
}

// VerifyOTP exchanges a valid code for a session
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.OTPVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	session, err := h.authService.VerifyCode(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", response.CodeUnauthorized)
		return
	}

	profile, err := h.authService.GetProfile(r.Context(), claims.Sub)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handlers) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", response.CodeUnauthorized)
		return
	}

	var req domain.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	profile, err := h.authService.UpdateProfile(r.Context(), claims.Sub, &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

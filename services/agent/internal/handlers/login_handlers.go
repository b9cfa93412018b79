package handlers

import (
	"net/http"

	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/internal/otp"
)

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type sendCodeResponse struct {
	State          otp.State `json:"state"`
	PhoneRemaining int       `json:"phoneRemaining"`
	DailyRemaining int       `json:"dailyRemaining"`
}

func (h *Handlers) LoginState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gate.State())
}

func (h *Handlers) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	decision, err := h.gate.SendCode(r.Context(), req.Phone)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.writeSent(w, decision)
}

func (h *Handlers) ResendCode(w http.ResponseWriter, r *http.Request) {
	decision, err := h.gate.Resend(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.writeSent(w, decision)
}

func (h *Handlers) writeSent(w http.ResponseWriter, decision otp.Decision) {
	// Remaining counts were taken before this send was recorded.
	writeJSON(w, http.StatusOK, sendCodeResponse{
		State:          h.gate.State(),
		PhoneRemaining: max(decision.PhoneRemaining-1, 0),
		DailyRemaining: max(decision.DailyRemaining-1, 0),
	})
}

func (h *Handlers) ChangeNumber(w http.ResponseWriter, r *http.Request) {
	h.gate.ChangeNumber()
	writeJSON(w, http.StatusOK, h.gate.State())
}

func (h *Handlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	state, err := h.gate.Verify(r.Context(), req.Code)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) SubmitName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	profile, err := h.gate.SubmitName(r.Context(), req.Name)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.SignOut(r.Context()); err != nil {
		response.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok, err := h.gate.Profile(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "Sign in first", response.CodeUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req otp.Profile
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	profile, err := h.gate.UpdateProfile(r.Context(), req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"anivault/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type updateUsernameRequest struct {
	Username string `json:"username"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	session, err := h.service.Signup(r.Context(), body.Email, body.Password)
	if err != nil {
		writeServiceError(w, r, err, "failed to signup")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identifier := firstNonEmpty(body.Identifier, body.Email, body.Username)
	if identifier == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	session, err := h.service.Login(r.Context(), identifier, body.Password)
	if err != nil {
		writeServiceError(w, r, err, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		writeServiceError(w, r, err, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var body verifyEmailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.SendVerification(r.Context(), body.Email); err != nil {
		writeServiceError(w, r, err, "failed to send verification code")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "verification code sent"})
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var body verifyCodeRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.VerifyEmail(r.Context(), body.Email, strings.TrimSpace(body.Code)); err != nil {
		writeServiceError(w, r, err, "failed to verify email")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "email verified"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user.View())
}

func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body updateUsernameRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.UpdateUsername(r.Context(), claims.Subject, body.Username)
	if err != nil {
		writeServiceError(w, r, err, "failed to update username")
		return
	}

	writeJSON(w, http.StatusOK, user.View())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, ErrExpired):
		writeError(w, http.StatusUnauthorized, "refresh token expired")
	case errors.Is(err, ErrNotVerified):
		writeError(w, http.StatusForbidden, "email not verified")
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCodeExpired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		observability.CaptureError(r, err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/models"
	"github.com/dmitrijs2005/zappro/internal/server/services"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	User         userResponse `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	RateLimit       string `json:"rate_limit"`
	RateLimitWindow string `json:"rate_limit_window"`
}

type handlers struct {
	users  *services.UserService
	logger logging.Logger
	health healthResponse
}

func (h *handlers) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password, req.Role)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, newUserResponse(u))
	case errors.Is(err, common.ErrorAlreadyExists):
		writeError(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.internalError(w, r, err)
	}
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    pair.TokenType,
			User:         newUserResponse(u),
		})
	case errors.Is(err, common.ErrorUnauthorized):
		h.logger.Info(r.Context(), "login failed", "client", ClientFromContext(r.Context()))
		unauthorized(w, "Incorrect email or password")
	default:
		h.internalError(w, r, err)
	}
}

// refresh takes the refresh token from the JSON body or, failing that, the
// bearer header.
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token := req.RefreshToken
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "Refresh token required")
		return
	}

	pair, err := h.users.Refresh(r.Context(), token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, refreshResponse{AccessToken: pair.AccessToken, TokenType: pair.TokenType})
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		unauthorized(w, common.ErrInvalidToken.Error())
	default:
		h.internalError(w, r, err)
	}
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newUserResponse(UserFromContext(r.Context())))
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u := UserFromContext(r.Context())
	err := h.users.ChangePassword(r.Context(), u.ID, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusBadRequest, "Incorrect password")
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		unauthorized(w, common.ErrInvalidToken.Error())
	default:
		h.internalError(w, r, err)
	}
}

func (h *handlers) adminPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "user": UserFromContext(r.Context()).Email})
}

func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error(r.Context(), "request failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func newHealthResponse(version string, rateLimit int, window time.Duration) healthResponse {
	return healthResponse{
		Status:          "ok",
		Version:         version,
		RateLimit:       strconv.Itoa(rateLimit),
		RateLimitWindow: strconv.FormatInt(int64(window/time.Second), 10),
	}
}

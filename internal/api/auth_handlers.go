package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aaravsagar/agriatoo-core/internal/auth"
)

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

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  auth.Role `json:"role"`
}

type authResponse struct {
	User   userResponse    `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = string(auth.RoleBuyer)
	}

	user, pair, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password, auth.Role(req.Role))
	switch {
	case err == nil:
		h.setAuthCookies(w, pair)
		respondJSON(w, http.StatusCreated, authResponse{
			User:   userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role},
			Tokens: pair,
		})
	case errors.Is(err, auth.ErrUserExists):
		respondJSONError(w, "email already registered", http.StatusConflict)
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrInvalidRole):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		respondJSONError(w, "registration failed", http.StatusInternalServerError)
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		h.setAuthCookies(w, pair)
		respondJSON(w, http.StatusOK, authResponse{
			User:   userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role},
			Tokens: pair,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondJSONError(w, "invalid email or password", http.StatusUnauthorized)
	default:
		respondJSONError(w, "login failed", http.StatusInternalServerError)
	}
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		// Browser clients carry the refresh token in a cookie instead.
		if cookie, cookieErr := r.Cookie("refresh_token"); cookieErr == nil {
			req.RefreshToken = cookie.Value
		}
	}
	if req.RefreshToken == "" {
		respondJSONError(w, "refresh token required", http.StatusBadRequest)
		return
	}

	pair, err := h.users.Refresh(r.Context(), req.RefreshToken)
	switch {
	case err == nil:
		h.setAuthCookies(w, pair)
		respondJSON(w, http.StatusOK, map[string]*auth.TokenPair{"tokens": pair})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrUserNotFound):
		respondJSONError(w, "invalid refresh token", http.StatusUnauthorized)
	default:
		respondJSONError(w, "token refresh failed", http.StatusInternalServerError)
	}
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, "access_token")
	clearCookie(w, "refresh_token")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    pair.RefreshToken,
		Path:     "/auth",
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}

package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type userResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	AvatarURL   *string `json:"avatar_url"`
	CursorColor string  `json:"cursor_color"`
}

func newTokenResponse(u User) tokenResponse {
	access, refresh := issueTokenPair(u.id)
	return tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}
}

func newUserResponse(u User) userResponse {
	return userResponse{
		ID:          u.id.String(),
		Email:       u.email,
		Name:        u.name,
		AvatarURL:   u.avatarURL,
		CursorColor: u.cursorColor,
	}
}

func registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if req.Name == "" {
		req.Name = req.Email
	}
	user, err := createLocalUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, http.StatusConflict, "could not create user")
		return
	}
	writeJSON(w, http.StatusCreated, newTokenResponse(user))
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	user, err := verifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(user))
}

func refreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	uid, err := verifyToken(req.RefreshToken, tokenTypeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	user, err := fetchUserByID(r.Context(), uid)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(user))
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// logoutHandler exists for symmetry; tokens are stateless and the client
// clears its own copies.
func logoutHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

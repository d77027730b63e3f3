package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// currentUser resolves the Authorization bearer token to a user row.
func currentUser(r *http.Request) (User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return User{}, errTokenInvalid
	}
	uid, err := verifyToken(strings.TrimSpace(token), tokenTypeAccess)
	if err != nil {
		return User{}, err
	}
	return fetchUserByID(r.Context(), uid)
}

// requireUser writes a 401 and reports false when the request carries no
// valid access token.
func requireUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return User{}, false
	}
	return user, true
}

// boardForAccess loads the board and enforces the access rules shared by
// the board, comment, and sharing handlers: owners always have access,
// members have access, and public boards are readable by anyone signed in.
// It writes the error response itself and reports ok=false on failure.
func boardForAccess(w http.ResponseWriter, r *http.Request, boardID uuid.UUID, user User, requireOwner bool) (Board, bool) {
	board, err := fetchBoard(r.Context(), boardID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Board not found")
		return Board{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return Board{}, false
	}

	isOwner := board.OwnerID == user.id
	if requireOwner && !isOwner {
		writeError(w, http.StatusForbidden, "Only the owner can perform this action")
		return Board{}, false
	}
	if !isOwner {
		role, err := boardRole(r.Context(), board.ID, user.id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database error")
			return Board{}, false
		}
		if role == "" && !board.IsPublic {
			writeError(w, http.StatusForbidden, "You don't have access to this board")
			return Board{}, false
		}
	}
	return board, true
}

func pathUUID(vars map[string]string, key string) (uuid.UUID, error) {
	return uuid.FromString(vars[key])
}

// memberOrOwner reports whether the user may act on the board at all.
func memberOrOwner(ctx context.Context, board Board, user User) (bool, error) {
	if board.OwnerID == user.id {
		return true, nil
	}
	role, err := boardRole(ctx, board.ID, user.id)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

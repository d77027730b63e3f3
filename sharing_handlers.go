package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
)

type inviteCreateRequest struct {
	Role          string `json:"role"`
	ExpiresInDays *int   `json:"expires_in_days"`
	MaxUses       *int   `json:"max_uses"`
}

type inviteResponse struct {
	Invite
	InviteURL string `json:"invite_url"`
}

type memberUpdateRequest struct {
	Role string `json:"role"`
}

func validRole(role string) bool {
	return role == "editor" || role == "viewer"
}

func newInviteResponse(inv Invite) inviteResponse {
	return inviteResponse{
		Invite:    inv,
		InviteURL: cfg.FrontendURL + "/invite/" + inv.ID.String(),
	}
}

func createInviteHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	boardID, err := pathUUID(mux.Vars(r), "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	board, ok := boardForAccess(w, r, boardID, user, true)
	if !ok {
		return
	}

	req := inviteCreateRequest{Role: "editor"}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if !validRole(req.Role) {
		writeError(w, http.StatusBadRequest, "Role must be 'editor' or 'viewer'")
		return
	}
	days := 7
	if req.ExpiresInDays != nil {
		days = *req.ExpiresInDays
	}
	var expiresAt *time.Time
	if days > 0 {
		t := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &t
	}

	inv := Invite{
		ID:        uuid.Must(uuid.NewV4()),
		BoardID:   board.ID,
		Role:      req.Role,
		CreatedBy: user.id,
		ExpiresAt: expiresAt,
		MaxUses:   req.MaxUses,
	}
	if err := storeInvite(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	inv, err = fetchInvite(r.Context(), inv.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusCreated, newInviteResponse(inv))
}

func acceptInviteHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	inviteID, err := pathUUID(mux.Vars(r), "invite_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Invite not found")
		return
	}
	inv, err := fetchInvite(r.Context(), inviteID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Invite not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	if inv.ExpiresAt != nil && inv.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "This invite has expired")
		return
	}
	if inv.MaxUses != nil && inv.UseCount >= *inv.MaxUses {
		writeError(w, http.StatusBadRequest, "This invite has reached its maximum uses")
		return
	}
	if _, err := fetchBoard(r.Context(), inv.BoardID); errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Board no longer exists")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	joined, err := redeemInvite(r.Context(), inv, user.id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	msg := "Successfully joined the board"
	if !joined {
		msg = "You are already a member of this board"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  msg,
		"board_id": inv.BoardID.String(),
	})
}

func listMembersHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	boardID, err := pathUUID(mux.Vars(r), "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	board, err := fetchBoard(r.Context(), boardID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	// Member listing is not open to the public-board audience.
	ok, err = memberOrOwner(r.Context(), board, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "You don't have access to this board")
		return
	}

	members, err := listBoardMembers(r.Context(), board.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func updateMemberHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	boardID, err := pathUUID(vars, "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	memberID, err := pathUUID(vars, "user_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	board, ok := boardForAccess(w, r, boardID, user, true)
	if !ok {
		return
	}

	var req memberUpdateRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil || !validRole(req.Role) {
		writeError(w, http.StatusBadRequest, "Role must be 'editor' or 'viewer'")
		return
	}
	if board.OwnerID == memberID {
		writeError(w, http.StatusBadRequest, "Cannot change the owner's role")
		return
	}

	err = updateMemberRole(r.Context(), board.ID, memberID, req.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	members, err := listBoardMembers(r.Context(), board.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	for _, m := range members {
		if m.UserID == memberID {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Member not found")
}

func removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	boardID, err := pathUUID(vars, "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	memberID, err := pathUUID(vars, "user_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	board, ok := boardForAccess(w, r, boardID, user, true)
	if !ok {
		return
	}
	if board.OwnerID == memberID {
		writeError(w, http.StatusBadRequest, "Cannot remove the owner")
		return
	}

	err = removeBoardMember(r.Context(), board.ID, memberID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

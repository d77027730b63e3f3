package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type boardCreateRequest struct {
	Name string `json:"name"`
}

type boardUpdateRequest struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"is_public"`
}

type boardDetailResponse struct {
	Board
	Members []BoardMember `json:"members"`
}

func listBoardsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	boards, err := listBoards(r.Context(), user.id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func createBoardHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	req := boardCreateRequest{Name: "Untitled"}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Name == "" {
		req.Name = "Untitled"
	}
	board, err := createBoard(r.Context(), user.id, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

func getBoardHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	boardID, err := pathUUID(mux.Vars(r), "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	board, ok := boardForAccess(w, r, boardID, user, false)
	if !ok {
		return
	}
	members, err := listBoardMembers(r.Context(), board.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, boardDetailResponse{Board: board, Members: members})
}

func updateBoardHandler(w http.ResponseWriter, r *http.Request) {
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
	var req boardUpdateRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Name != nil {
		board.Name = *req.Name
	}
	if req.IsPublic != nil {
		board.IsPublic = *req.IsPublic
	}
	if err := updateBoard(r.Context(), board); err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	board, err = fetchBoard(r.Context(), board.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func deleteBoardHandler(w http.ResponseWriter, r *http.Request) {
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
	if err := softDeleteBoard(r.Context(), board.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// duplicateBoardHandler copies the board metadata. Duplicates start private
// and with an empty document; copying sync history is a separate concern.
func duplicateBoardHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	boardID, err := pathUUID(mux.Vars(r), "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	original, ok := boardForAccess(w, r, boardID, user, false)
	if !ok {
		return
	}
	board, err := createBoard(r.Context(), user.id, original.Name+" (Copy)")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
)

type commentCreateRequest struct {
	Content   string   `json:"content"`
	ParentID  *string  `json:"parent_id"`
	PositionX *float64 `json:"position_x"`
	PositionY *float64 `json:"position_y"`
}

type commentUpdateRequest struct {
	Content  *string `json:"content"`
	Resolved *bool   `json:"resolved"`
}

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// extractMentions pulls @name tokens out of comment text.
func extractMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

func listCommentsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	boardID, err := pathUUID(mux.Vars(r), "board_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}
	if _, ok := boardForAccess(w, r, boardID, user, false); !ok {
		return
	}
	comments, err := listComments(r.Context(), boardID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func createCommentHandler(w http.ResponseWriter, r *http.Request) {
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
	var req commentCreateRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	var parentID *uuid.UUID
	if req.ParentID != nil {
		pid, err := uuid.FromString(*req.ParentID)
		if err != nil {
			writeError(w, http.StatusNotFound, "Parent comment not found")
			return
		}
		parent, err := fetchComment(r.Context(), pid)
		if err != nil || parent.BoardID != board.ID {
			writeError(w, http.StatusNotFound, "Parent comment not found")
			return
		}
		parentID = &pid
	}

	comment := Comment{
		ID:       uuid.Must(uuid.NewV4()),
		BoardID:  board.ID,
		ParentID: parentID,
		Author:   CommentAuthor{ID: user.id},
		Content:  req.Content,
	}
	// Canvas coordinates only apply to root comments.
	if parentID == nil {
		comment.PositionX = req.PositionX
		comment.PositionY = req.PositionY
	}

	mentions := make([]uuid.UUID, 0)
	for _, name := range extractMentions(req.Content) {
		id, err := findMentionedUser(r.Context(), board.ID, name)
		if err == nil {
			mentions = append(mentions, id)
		}
	}

	if err := storeComment(r.Context(), comment, mentions); err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	comment, err = fetchComment(r.Context(), comment.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func updateCommentHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	commentID, err := pathUUID(mux.Vars(r), "comment_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	comment, err := fetchComment(r.Context(), commentID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if _, ok := boardForAccess(w, r, comment.BoardID, user, false); !ok {
		return
	}

	var req commentUpdateRequest
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	// Only the author can edit the text.
	if req.Content != nil {
		if comment.Author.ID != user.id {
			writeError(w, http.StatusForbidden, "Only the author can edit this comment")
			return
		}
		comment.Content = *req.Content
	}

	// Anyone with board access can resolve or reopen.
	if req.Resolved != nil {
		if *req.Resolved && !comment.Resolved {
			now := time.Now().UTC()
			comment.Resolved = true
			comment.ResolvedBy = &user.id
			comment.ResolvedAt = &now
		} else if !*req.Resolved && comment.Resolved {
			comment.Resolved = false
			comment.ResolvedBy = nil
			comment.ResolvedAt = nil
		}
	}

	if err := saveComment(r.Context(), comment); err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	comment, err = fetchComment(r.Context(), comment.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	commentID, err := pathUUID(mux.Vars(r), "comment_id")
	if err != nil {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	comment, err := fetchComment(r.Context(), commentID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	board, ok := boardForAccess(w, r, comment.BoardID, user, false)
	if !ok {
		return
	}

	if comment.Author.ID != user.id && board.OwnerID != user.id {
		writeError(w, http.StatusForbidden, "You can't delete this comment")
		return
	}
	if err := deleteComment(r.Context(), comment.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	id          uuid.UUID
	email       string
	name        string
	avatarURL   *string
	provider    string // "google", "github", or "local"
	providerID  string
	cursorColor string
	hashed      *string // local accounts only
	createdAt   time.Time
}

type Board struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	OwnerID      uuid.UUID `json:"owner_id"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type BoardMember struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url"`
	Role      string    `json:"role"`
	InvitedAt time.Time `json:"invited_at"`
}

type CommentAuthor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
}

type Comment struct {
	ID         uuid.UUID     `json:"id"`
	BoardID    uuid.UUID     `json:"board_id"`
	ParentID   *uuid.UUID    `json:"parent_id"`
	Author     CommentAuthor `json:"author"`
	Content    string        `json:"content"`
	PositionX  *float64      `json:"position_x"`
	PositionY  *float64      `json:"position_y"`
	Resolved   bool          `json:"resolved"`
	ResolvedBy *uuid.UUID    `json:"resolved_by"`
	ResolvedAt *time.Time    `json:"resolved_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Replies    []Comment     `json:"replies"`
	Mentions   []uuid.UUID   `json:"mentions"`
}

type Invite struct {
	ID        uuid.UUID  `json:"id"`
	BoardID   uuid.UUID  `json:"board_id"`
	Role      string     `json:"role"`
	CreatedBy uuid.UUID  `json:"-"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
	UseCount  int        `json:"use_count"`
	CreatedAt time.Time  `json:"created_at"`
}

// Cursor colors assigned to new users.
var cursorColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
	"#BB8FCE", "#85C1E9", "#F8B500", "#00CED1",
}

func pickCursorColor() string {
	return cursorColors[rand.Intn(len(cursorColors))]
}

// ------------ pool ------------

var db *pgxpool.Pool

func initDB(dsn string) error {
	dbconf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return err
	}
	dbconf.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	db, err = pgxpool.NewWithConfig(context.Background(), dbconf)

	return err
}

// ------------ users ------------

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

func storeUser(ctx context.Context, u User) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, email, name, avatar_url, provider, provider_id, cursor_color, hashed)
		   VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.id, u.email, u.name, u.avatarURL, u.provider, u.providerID, u.cursorColor, u.hashed)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func createLocalUser(ctx context.Context, email, name, password string) (User, error) {
	var user User
	hashed, err := hashPassword(password)
	if err != nil {
		return user, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return user, err
	}
	user = User{
		id:          uid,
		email:       email,
		name:        name,
		provider:    "local",
		providerID:  email,
		cursorColor: pickCursorColor(),
		hashed:      &hashed,
	}
	err = storeUser(ctx, user)

	return user, err
}

func createOAuthUser(ctx context.Context, email, name string, avatarURL *string, provider, providerID string) (User, error) {
	var user User
	uid, err := uuid.NewV4()
	if err != nil {
		return user, err
	}
	user = User{
		id:          uid,
		email:       email,
		name:        name,
		avatarURL:   avatarURL,
		provider:    provider,
		providerID:  providerID,
		cursorColor: pickCursorColor(),
	}
	err = storeUser(ctx, user)

	return user, err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.id, &u.email, &u.name, &u.avatarURL,
		&u.provider, &u.providerID, &u.cursorColor, &u.hashed, &u.createdAt)
	return u, err
}

const userCols = `id, email, name, avatar_url, provider, provider_id, cursor_color, hashed, created_at`

func fetchUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(db.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func fetchUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(db.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

func fetchUserByProvider(ctx context.Context, provider, providerID string) (User, error) {
	return scanUser(db.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE provider=$1 AND provider_id=$2`,
		provider, providerID))
}

func verifyCredentials(ctx context.Context, email, password string) (User, error) {
	user, err := fetchUserByEmail(ctx, email)
	if err != nil {
		return user, err
	}
	if user.hashed == nil {
		return user, errors.New("not a password account")
	}
	err = bcrypt.CompareHashAndPassword([]byte(*user.hashed), []byte(password))

	return user, err
}

// ------------ boards ------------

const boardCols = `id, name, owner_id, thumbnail_url, is_public, created_at, updated_at`

func scanBoard(row pgx.Row) (Board, error) {
	var b Board
	err := row.Scan(&b.ID, &b.Name, &b.OwnerID, &b.ThumbnailURL,
		&b.IsPublic, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// createBoard inserts the board and its owner membership in one transaction.
func createBoard(ctx context.Context, ownerID uuid.UUID, name string) (Board, error) {
	var board Board
	uid, err := uuid.NewV4()
	if err != nil {
		return board, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return board, err
	}
	defer tx.Rollback(ctx)

	board, err = scanBoard(tx.QueryRow(ctx,
		`INSERT INTO boards (id, name, owner_id)
		   VALUES ($1,$2,$3)
		   RETURNING `+boardCols, uid, name, ownerID))
	if err != nil {
		return board, err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO board_members (board_id, user_id, role) VALUES ($1,$2,'owner')`,
		board.ID, ownerID)
	if err != nil {
		return board, err
	}

	return board, tx.Commit(ctx)
}

func listBoards(ctx context.Context, userID uuid.UUID) ([]Board, error) {
	rows, err := db.Query(ctx,
		`SELECT DISTINCT `+boardCols+` FROM boards b
		   LEFT JOIN board_members m ON b.id = m.board_id
		  WHERE b.deleted_at IS NULL AND (b.owner_id=$1 OR m.user_id=$1)
		  ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boards := make([]Board, 0)
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// fetchBoard returns the board if it exists and is not soft-deleted.
func fetchBoard(ctx context.Context, id uuid.UUID) (Board, error) {
	return scanBoard(db.QueryRow(ctx,
		`SELECT `+boardCols+` FROM boards WHERE id=$1 AND deleted_at IS NULL`, id))
}

func updateBoard(ctx context.Context, b Board) error {
	_, err := db.Exec(ctx,
		`UPDATE boards SET name=$2, is_public=$3, updated_at=now() WHERE id=$1`,
		b.ID, b.Name, b.IsPublic)
	return err
}

func softDeleteBoard(ctx context.Context, id uuid.UUID) error {
	_, err := db.Exec(ctx,
		`UPDATE boards SET deleted_at=now() WHERE id=$1`, id)
	return err
}

// boardRole reports the user's membership role, "" for non-members.
func boardRole(ctx context.Context, boardID, userID uuid.UUID) (string, error) {
	var role string
	err := db.QueryRow(ctx,
		`SELECT role FROM board_members WHERE board_id=$1 AND user_id=$2`,
		boardID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func listBoardMembers(ctx context.Context, boardID uuid.UUID) ([]BoardMember, error) {
	rows, err := db.Query(ctx,
		`SELECT m.user_id, u.name, u.email, u.avatar_url, m.role, m.invited_at
		   FROM board_members m JOIN users u ON u.id = m.user_id
		  WHERE m.board_id=$1`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]BoardMember, 0)
	for rows.Next() {
		var m BoardMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.AvatarURL, &m.Role, &m.InvitedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func updateMemberRole(ctx context.Context, boardID, userID uuid.UUID, role string) error {
	tag, err := db.Exec(ctx,
		`UPDATE board_members SET role=$3 WHERE board_id=$1 AND user_id=$2`,
		boardID, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func removeBoardMember(ctx context.Context, boardID, userID uuid.UUID) error {
	tag, err := db.Exec(ctx,
		`DELETE FROM board_members WHERE board_id=$1 AND user_id=$2`,
		boardID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ------------ comments ------------

// storeComment inserts the comment and its mention rows in one transaction.
func storeComment(ctx context.Context, c Comment, mentions []uuid.UUID) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO comments (id, board_id, parent_id, author_id, content, position_x, position_y)
		   VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.BoardID, c.ParentID, c.Author.ID, c.Content, c.PositionX, c.PositionY)
	if err != nil {
		return err
	}
	for _, userID := range mentions {
		_, err = tx.Exec(ctx,
			`INSERT INTO comment_mentions (comment_id, user_id)
			   VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			c.ID, userID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

const commentCols = `c.id, c.board_id, c.parent_id, c.author_id, u.name, u.avatar_url,
	c.content, c.position_x, c.position_y, c.resolved, c.resolved_by, c.resolved_at,
	c.created_at, c.updated_at`

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.BoardID, &c.ParentID, &c.Author.ID, &c.Author.Name, &c.Author.AvatarURL,
		&c.Content, &c.PositionX, &c.PositionY, &c.Resolved, &c.ResolvedBy, &c.ResolvedAt,
		&c.CreatedAt, &c.UpdatedAt)
	c.Replies = make([]Comment, 0)
	c.Mentions = make([]uuid.UUID, 0)
	return c, err
}

func fetchComment(ctx context.Context, id uuid.UUID) (Comment, error) {
	c, err := scanComment(db.QueryRow(ctx,
		`SELECT `+commentCols+` FROM comments c JOIN users u ON u.id = c.author_id
		  WHERE c.id=$1`, id))
	if err != nil {
		return c, err
	}
	if err := attachMentions(ctx, &c); err != nil {
		return c, err
	}
	if c.ParentID == nil {
		err = attachReplies(ctx, &c)
	}
	return c, err
}

func attachMentions(ctx context.Context, c *Comment) error {
	rows, err := db.Query(ctx,
		`SELECT user_id FROM comment_mentions WHERE comment_id=$1`, c.ID)
	if err != nil {
		return err
	}
	c.Mentions, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if c.Mentions == nil {
		c.Mentions = make([]uuid.UUID, 0)
	}
	return err
}

func attachReplies(ctx context.Context, c *Comment) error {
	rows, err := db.Query(ctx,
		`SELECT `+commentCols+` FROM comments c JOIN users u ON u.id = c.author_id
		  WHERE c.parent_id=$1 ORDER BY c.created_at ASC`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		reply, err := scanComment(rows)
		if err != nil {
			return err
		}
		if err := attachMentions(ctx, &reply); err != nil {
			return err
		}
		c.Replies = append(c.Replies, reply)
	}
	return rows.Err()
}

// listComments returns root comments newest first, replies nested oldest
// first under their parent.
func listComments(ctx context.Context, boardID uuid.UUID) ([]Comment, error) {
	rows, err := db.Query(ctx,
		`SELECT `+commentCols+` FROM comments c JOIN users u ON u.id = c.author_id
		  WHERE c.board_id=$1 AND c.parent_id IS NULL
		  ORDER BY c.created_at DESC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range comments {
		if err := attachMentions(ctx, &comments[i]); err != nil {
			return nil, err
		}
		if err := attachReplies(ctx, &comments[i]); err != nil {
			return nil, err
		}
	}
	return comments, nil
}

func saveComment(ctx context.Context, c Comment) error {
	_, err := db.Exec(ctx,
		`UPDATE comments SET content=$2, resolved=$3, resolved_by=$4, resolved_at=$5, updated_at=now()
		  WHERE id=$1`,
		c.ID, c.Content, c.Resolved, c.ResolvedBy, c.ResolvedAt)
	return err
}

func deleteComment(ctx context.Context, id uuid.UUID) error {
	_, err := db.Exec(ctx, `DELETE FROM comments WHERE id=$1`, id)
	return err
}

// findMentionedUser resolves an @name against the board's members.
func findMentionedUser(ctx context.Context, boardID uuid.UUID, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.QueryRow(ctx,
		`SELECT u.id FROM users u JOIN board_members m ON m.user_id = u.id
		  WHERE m.board_id=$1 AND u.name ILIKE '%' || $2 || '%'
		  LIMIT 1`, boardID, name).Scan(&id)
	return id, err
}

// ------------ invites ------------

const inviteCols = `id, board_id, role, created_by, expires_at, max_uses, use_count, created_at`

func scanInvite(row pgx.Row) (Invite, error) {
	var inv Invite
	err := row.Scan(&inv.ID, &inv.BoardID, &inv.Role, &inv.CreatedBy,
		&inv.ExpiresAt, &inv.MaxUses, &inv.UseCount, &inv.CreatedAt)
	return inv, err
}

func storeInvite(ctx context.Context, inv Invite) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO board_invites (id, board_id, role, created_by, expires_at, max_uses)
		   VALUES ($1,$2,$3,$4,$5,$6)`,
		inv.ID, inv.BoardID, inv.Role, inv.CreatedBy, inv.ExpiresAt, inv.MaxUses)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func fetchInvite(ctx context.Context, id uuid.UUID) (Invite, error) {
	return scanInvite(db.QueryRow(ctx,
		`SELECT `+inviteCols+` FROM board_invites WHERE id=$1`, id))
}

// redeemInvite adds the user to the board and bumps the use count in one
// transaction. Joining twice is not an error: the membership insert is a
// conflict no-op and the count is only bumped for a fresh join.
func redeemInvite(ctx context.Context, inv Invite, userID uuid.UUID) (joined bool, err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO board_members (board_id, user_id, role)
		   VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
		inv.BoardID, userID, inv.Role)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}
	_, err = tx.Exec(ctx,
		`UPDATE board_invites SET use_count = use_count + 1 WHERE id=$1`, inv.ID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

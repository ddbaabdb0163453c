package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines the conversation store. A conversation has no
// identity of its own: it is the set of messages whose unordered
// sender/receiver pair matches.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID int, body models.Body) (models.Message, error)
	GetConversation(ctx context.Context, userA, userB int) ([]models.Message, error)
	LastMessageBetween(ctx context.Context, userA, userB int) (models.Message, error)
	CountUnread(ctx context.Context, fromID, toID int) (int, error)
	MarkAllRead(ctx context.Context, fromID, toID int) (int64, error)
	Sidebar(ctx context.Context, viewerID int) ([]models.SidebarRow, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a direct message; id and creation time are assigned
// by the database.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID int, body models.Body) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, kind, text, image_url)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, sender_id, receiver_id, kind, text, image_url, is_read, created_at`,
		senderID, receiverID, body.Kind, body.Text, body.ImageURL).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Kind, &msg.Text, &msg.ImageURL, &msg.IsRead, &msg.CreatedAt)
	return msg, err
}

// GetConversation returns every message between the pair, oldest first.
// The pair is unordered: (a, b) and (b, a) return the same set.
func (r *MessageRepo) GetConversation(ctx context.Context, userA, userB int) ([]models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, kind, text, image_url, is_read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}

// LastMessageBetween returns the most recent message between the pair.
func (r *MessageRepo) LastMessageBetween(ctx context.Context, userA, userB int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, sender_id, receiver_id, kind, text, image_url, is_read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at DESC, id DESC
        LIMIT 1`, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// CountUnread counts unread messages sent by fromID to toID.
func (r *MessageRepo) CountUnread(ctx context.Context, fromID, toID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE sender_id=$1 AND receiver_id=$2 AND is_read = FALSE`, fromID, toID)
	return count, err
}

// MarkAllRead flips every unread fromID→toID message to read and reports
// how many rows changed. Calling it again is a no-op.
func (r *MessageRepo) MarkAllRead(ctx context.Context, fromID, toID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE sender_id=$1 AND receiver_id=$2 AND is_read = FALSE`, fromID, toID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Sidebar computes one row per other known user in a single aggregation
// pass: last message timestamp across both directions and the count of
// their unread messages to the viewer. Users with no messages get an epoch
// zero timestamp so they sort last.
func (r *MessageRepo) Sidebar(ctx context.Context, viewerID int) ([]models.SidebarRow, error) {
	query := `SELECT u.id, u.username, u.avatar_url, u.created_at,
            COALESCE(MAX(m.created_at), to_timestamp(0)) AS last_message_at,
            COUNT(*) FILTER (WHERE m.sender_id = u.id AND m.receiver_id = $1 AND m.is_read = FALSE) AS unread_count
        FROM users u
        LEFT JOIN messages m
            ON (m.sender_id = u.id AND m.receiver_id = $1)
            OR (m.sender_id = $1 AND m.receiver_id = u.id)
        WHERE u.id <> $1
        GROUP BY u.id, u.username, u.avatar_url, u.created_at`
	rows, err := r.db.QueryxContext(ctx, query, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.SidebarRow
	for rows.Next() {
		var row models.SidebarRow
		if err := rows.Scan(&row.User.ID, &row.User.Username, &row.User.AvatarURL, &row.User.CreatedAt,
			&row.LastMessageAt, &row.UnreadCount); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result, nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// ErrMessageNotFound is returned for unknown message ids.
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository persists messages and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	LastForConversation(ctx context.Context, conversationID string) (models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerEmail string) error
}

type pgMessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo builds a Postgres-backed MessageRepository.
func NewMessageRepo(db *sqlx.DB) MessageRepository {
	return &pgMessageRepo{db: db}
}

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderEmail    string         `db:"sender_email"`
	SenderType     string         `db:"sender_type"`
	SenderID       sql.NullString `db:"sender_id"`
	Content        string         `db:"content"`
	ContentType    string         `db:"content_type"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	ReadBy         pq.StringArray `db:"read_by"`
}

func (row messageRow) toModel() models.Message {
	msg := models.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderEmail:    row.SenderEmail,
		SenderType:     models.ParticipantType(row.SenderType),
		SenderID:       row.SenderID.String,
		Content:        row.Content,
		ContentType:    models.ContentType(row.ContentType),
		ReadBy:         []string(row.ReadBy),
	}
	if row.CreatedAt.Valid {
		msg.CreatedAt = row.CreatedAt.Time
	}
	return msg
}

const messageColumns = `
    m.id, m.conversation_id, m.sender_email, m.sender_type, m.sender_id,
    m.content, m.content_type, m.created_at,
    COALESCE(array_agg(r.reader_email) FILTER (WHERE r.reader_email IS NOT NULL), '{}') AS read_by`

func (r *pgMessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.NewString()
	if msg.ContentType == "" {
		msg.ContentType = models.ContentText
	}
	// The sender has trivially seen their own message.
	msg.ReadBy = []string{msg.SenderEmail}

	row := r.db.QueryRowxContext(ctx, `
        INSERT INTO messages (id, conversation_id, sender_email, sender_type, sender_id, content, content_type)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
        RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderEmail, string(msg.SenderType), msg.SenderID, msg.Content, string(msg.ContentType))
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
        INSERT INTO message_reads (message_id, reader_email) VALUES ($1, $2)
        ON CONFLICT DO NOTHING`, msg.ID, msg.SenderEmail); err != nil {
		return models.Message{}, fmt.Errorf("record sender read: %w", err)
	}

	return msg, nil
}

func (r *pgMessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `
        SELECT`+messageColumns+`
        FROM messages m
        LEFT JOIN message_reads r ON r.message_id = m.id
        WHERE m.conversation_id = $1
        GROUP BY m.id
        ORDER BY m.created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

func (r *pgMessageRepo) LastForConversation(ctx context.Context, conversationID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `
        SELECT`+messageColumns+`
        FROM messages m
        LEFT JOIN message_reads r ON r.message_id = m.id
        WHERE m.conversation_id = $1
        GROUP BY m.id
        ORDER BY m.created_at DESC
        LIMIT 1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("last message: %w", err)
	}
	return row.toModel(), nil
}

// MarkConversationRead records a read receipt for every message in the
// conversation that readerEmail has not read yet. Idempotent.
func (r *pgMessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerEmail string) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO message_reads (message_id, reader_email)
        SELECT m.id, $2 FROM messages m WHERE m.conversation_id = $1
        ON CONFLICT DO NOTHING`, conversationID, readerEmail)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// ErrConversationNotFound is returned for unknown conversation ids.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository loads conversation summaries and membership.
type ConversationRepository interface {
	ListForUser(ctx context.Context, email string) ([]models.Conversation, error)
	Get(ctx context.Context, id string) (models.Conversation, error)
	IsParticipant(ctx context.Context, id, email string) (bool, error)
}

type pgConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo builds a Postgres-backed ConversationRepository.
func NewConversationRepo(db *sqlx.DB) ConversationRepository {
	return &pgConversationRepo{db: db}
}

type conversationRow struct {
	ID        string         `db:"id"`
	Status    string         `db:"status"`
	JobID     sql.NullString `db:"job_id"`
	CreatedAt sql.NullTime   `db:"created_at"`
}

func (r *pgConversationRepo) ListForUser(ctx context.Context, email string) ([]models.Conversation, error) {
	var rows []conversationRow
	err := r.db.SelectContext(ctx, &rows, `
        SELECT c.id, c.status, c.job_id, c.created_at
        FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.email = $1
        ORDER BY c.created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	conversations := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		conv, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (r *pgConversationRepo) Get(ctx context.Context, id string) (models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `
        SELECT id, status, job_id, created_at FROM conversations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return r.hydrate(ctx, row)
}

func (r *pgConversationRepo) IsParticipant(ctx context.Context, id, email string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
        SELECT COUNT(1) FROM conversation_participants
        WHERE conversation_id = $1 AND email = $2`, id, email)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return count > 0, nil
}

func (r *pgConversationRepo) hydrate(ctx context.Context, row conversationRow) (models.Conversation, error) {
	conv := models.Conversation{
		ID:     row.ID,
		Status: models.ConversationStatus(row.Status),
		JobID:  row.JobID.String,
	}
	if row.CreatedAt.Valid {
		conv.CreatedAt = row.CreatedAt.Time
	}

	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, `
        SELECT participant_type, participant_id, email, COALESCE(display_name, '') AS display_name
        FROM conversation_participants
        WHERE conversation_id = $1
        ORDER BY participant_type, participant_id`, row.ID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("load participants: %w", err)
	}
	conv.Participants = participants

	for _, p := range participants {
		if p.Type == models.ParticipantCandidate {
			conv.Candidate = &models.CandidateSummary{ID: p.ID, Email: p.Email, Name: p.DisplayName}
			break
		}
	}
	return conv, nil
}

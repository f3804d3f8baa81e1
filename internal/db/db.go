package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            id TEXT PRIMARY KEY,
            status TEXT NOT NULL DEFAULT 'ACTIVE',
            job_id TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            participant_type TEXT NOT NULL,
            participant_id TEXT NOT NULL,
            email TEXT NOT NULL,
            display_name TEXT,
            PRIMARY KEY(conversation_id, participant_type, participant_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_participants_email
            ON conversation_participants(email);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_email TEXT NOT NULL,
            sender_type TEXT NOT NULL,
            sender_id TEXT,
            content TEXT NOT NULL,
            content_type TEXT NOT NULL DEFAULT 'TEXT',
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages(conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS message_reads (
            message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            reader_email TEXT NOT NULL,
            read_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(message_id, reader_email)
        );`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Info().Msg("database migrations applied")
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/actionbot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) InsertAction(ctx context.Context, action *models.PersistedAction) error {
	details, err := json.Marshal(action.Details)
	if err != nil {
		return fmt.Errorf("error encoding action details: %v", err)
	}

	query := `
		INSERT INTO actions (
			id, user_id, conversation_id, conversation_key, type, description,
			details, message_id, sender_name, message_body, message_sent_at,
			is_group, from_owner, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.ExecContext(ctx, query,
		action.ID,
		action.UserID,
		action.OriginalMessage.ConversationID,
		action.ConversationKey,
		action.Type,
		action.Description,
		details,
		action.OriginalMessage.ID,
		action.OriginalMessage.SenderName,
		action.OriginalMessage.Body,
		action.OriginalMessage.SentAt,
		action.OriginalMessage.IsGroup,
		action.OriginalMessage.FromOwner,
		action.Status,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting action: %v", err)
	}

	return nil
}

func (s *PostgresStorage) UpdateActionStatus(ctx context.Context, userID int64, actionID string, status models.ActionStatus) error {
	query := `
		UPDATE actions
		SET status = $1
		WHERE id = $2 AND user_id = $3`

	result, err := s.db.ExecContext(ctx, query, status, actionID, userID)
	if err != nil {
		return fmt.Errorf("error updating action status: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("action not found")
	}

	return nil
}

func (s *PostgresStorage) ListActionsByStatus(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]*models.PersistedAction, error) {
	query := `
		SELECT id, user_id, conversation_id, conversation_key, type, description,
		       details, message_id, sender_name, message_body, message_sent_at,
		       is_group, from_owner, status, created_at
		FROM actions
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying actions: %v", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

func (s *PostgresStorage) QueryRecentActions(ctx context.Context, userID int64, conversationKey string, since time.Time, scope SenderScope) ([]models.ConversationHistoryEntry, error) {
	query := `
		SELECT type, description, details, created_at, from_owner
		FROM actions
		WHERE user_id = $1 AND conversation_key = $2 AND created_at >= $3`
	switch scope {
	case ScopeOwner:
		query += " AND from_owner = TRUE"
	case ScopeOthers:
		query += " AND from_owner = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, userID, conversationKey, since)
	if err != nil {
		return nil, fmt.Errorf("error querying recent actions: %v", err)
	}
	defer rows.Close()

	var entries []models.ConversationHistoryEntry
	for rows.Next() {
		var entry models.ConversationHistoryEntry
		var details []byte
		if err := rows.Scan(&entry.Type, &entry.Description, &details, &entry.CreatedAt, &entry.FromOwner); err != nil {
			return nil, fmt.Errorf("error scanning history entry: %v", err)
		}
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			s.logger.Warn("Skipping malformed action details", zap.Error(err))
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *PostgresStorage) QueryExistingActionsForMessageIDs(ctx context.Context, userID int64, messageIDs []string) ([]*models.PersistedAction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, conversation_id, conversation_key, type, description,
		       details, message_id, sender_name, message_body, message_sent_at,
		       is_group, from_owner, status, created_at
		FROM actions
		WHERE user_id = $1 AND message_id = ANY($2)`

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("error querying existing actions: %v", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

func (s *PostgresStorage) QueryGroupTopicHistory(ctx context.Context, conversationID string, since time.Time, limit int) ([]models.TopicRecord, error) {
	query := `
		SELECT user_id, type, description, created_at
		FROM actions
		WHERE conversation_id = $1 AND is_group AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, conversationID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying group topic history: %v", err)
	}
	defer rows.Close()

	var records []models.TopicRecord
	for rows.Next() {
		var record models.TopicRecord
		if err := rows.Scan(&record.UserID, &record.Type, &record.Description, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning topic record: %v", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func scanActions(rows *sql.Rows) ([]*models.PersistedAction, error) {
	var actions []*models.PersistedAction
	for rows.Next() {
		action := &models.PersistedAction{}
		var details []byte
		var sentAt sql.NullTime
		err := rows.Scan(
			&action.ID,
			&action.UserID,
			&action.OriginalMessage.ConversationID,
			&action.ConversationKey,
			&action.Type,
			&action.Description,
			&details,
			&action.OriginalMessage.ID,
			&action.OriginalMessage.SenderName,
			&action.OriginalMessage.Body,
			&sentAt,
			&action.OriginalMessage.IsGroup,
			&action.OriginalMessage.FromOwner,
			&action.Status,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning action: %v", err)
		}
		if sentAt.Valid {
			action.OriginalMessage.SentAt = sentAt.Time
		}
		if err := json.Unmarshal(details, &action.Details); err != nil {
			return nil, fmt.Errorf("error decoding action details: %v", err)
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

// SQLiteAppliedSuggestionRepository implements AppliedSuggestionRepository for SQLite.
type SQLiteAppliedSuggestionRepository struct {
	db *sql.DB
}

// NewSQLiteAppliedSuggestionRepository creates a new SQLite applied suggestion repository.
func NewSQLiteAppliedSuggestionRepository(db *sql.DB) *SQLiteAppliedSuggestionRepository {
	return &SQLiteAppliedSuggestionRepository{db: db}
}

func (r *SQLiteAppliedSuggestionRepository) Mark(ctx context.Context, applied *models.AppliedSuggestion) (bool, error) {
	if applied.AppliedAt.IsZero() {
		applied.AppliedAt = time.Now().UTC()
	}

	var transactionID, resultURL *string
	if applied.TransactionID != "" {
		transactionID = &applied.TransactionID
	}
	if applied.ResultURL != "" {
		resultURL = &applied.ResultURL
	}

	// INSERT OR IGNORE keeps the first record; re-marking is a no-op.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO applied_suggestions (user_id, suggestion_id, transaction_id, result_url, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, suggestion_id) DO NOTHING`,
		applied.UserID, applied.SuggestionID, transactionID, resultURL,
		applied.AppliedAt.Format(time.RFC3339))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLiteAppliedSuggestionRepository) Contains(ctx context.Context, userID, suggestionID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM applied_suggestions WHERE user_id = ? AND suggestion_id = ?`,
		userID, suggestionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLiteAppliedSuggestionRepository) ListByUserID(ctx context.Context, userID string) ([]*models.AppliedSuggestion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, suggestion_id, transaction_id, result_url, applied_at
		FROM applied_suggestions WHERE user_id = ? ORDER BY applied_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var applied []*models.AppliedSuggestion
	for rows.Next() {
		var a models.AppliedSuggestion
		var transactionID, resultURL sql.NullString
		var appliedAt string
		if err := rows.Scan(&a.UserID, &a.SuggestionID, &transactionID, &resultURL, &appliedAt); err != nil {
			return nil, err
		}
		if transactionID.Valid {
			a.TransactionID = transactionID.String
		}
		if resultURL.Valid {
			a.ResultURL = resultURL.String
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		applied = append(applied, &a)
	}

	return applied, rows.Err()
}

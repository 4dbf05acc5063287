package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

// SQLiteCreditRepository implements CreditRepository for SQLite/libsql.
type SQLiteCreditRepository struct {
	db *sql.DB
}

// NewSQLiteCreditRepository creates a new SQLite credit repository.
func NewSQLiteCreditRepository(db *sql.DB) *SQLiteCreditRepository {
	return &SQLiteCreditRepository{db: db}
}

func (r *SQLiteCreditRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT id, email, full_name, credits, created_at, updated_at FROM profiles WHERE id = ?`
	var p models.Profile
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.Email, &p.FullName, &p.Credits, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (r *SQLiteCreditRepository) CreateProfileWithBonus(ctx context.Context, profile *models.Profile, bonus *models.CreditTransaction) (*models.Profile, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, credits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		profile.ID, profile.Email, profile.FullName, profile.Credits,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert profile: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if inserted == 0 {
		// Profile already exists - return it as-is, no bonus entry.
		existing, err := scanProfileTx(ctx, tx, profile.ID)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		committed = true
		return existing, false, nil
	}

	if bonus != nil {
		bonus.BalanceAfter = profile.Credits
		if err := insertTransaction(ctx, tx, bonus); err != nil {
			return nil, false, fmt.Errorf("failed to record welcome bonus: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	committed = true

	profile.CreatedAt = now
	profile.UpdatedAt = now
	return profile, true, nil
}

func (r *SQLiteCreditRepository) DeductCredits(ctx context.Context, userID string, amount int, entry *models.CreditTransaction) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// Conditional decrement: matches only when the balance covers the amount,
	// so concurrent deductions can never drive the balance negative.
	now := time.Now().UTC().Format(time.RFC3339)
	var newBalance int
	err = tx.QueryRowContext(ctx, `
		UPDATE profiles SET credits = credits - ?, updated_at = ?
		WHERE id = ? AND credits >= ?
		RETURNING credits`,
		amount, now, userID, amount).Scan(&newBalance)
	if err == sql.ErrNoRows {
		// No row matched: either the profile is missing or funds are short.
		var available int
		checkErr := tx.QueryRowContext(ctx, `SELECT credits FROM profiles WHERE id = ?`, userID).Scan(&available)
		if checkErr == sql.ErrNoRows {
			return 0, ErrProfileNotFound
		}
		if checkErr != nil {
			return 0, checkErr
		}
		return available, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("failed to deduct credits: %w", err)
	}

	entry.Amount = -amount
	entry.BalanceAfter = newBalance
	if err := insertTransaction(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateReference
		}
		return 0, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return newBalance, nil
}

func (r *SQLiteCreditRepository) AddCredits(ctx context.Context, userID string, amount int, entry *models.CreditTransaction) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339)
	var newBalance int
	err = tx.QueryRowContext(ctx, `
		UPDATE profiles SET credits = credits + ?, updated_at = ?
		WHERE id = ?
		RETURNING credits`,
		amount, now, userID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}

	entry.Amount = amount
	entry.BalanceAfter = newBalance
	if err := insertTransaction(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			// Rolling back undoes the increment; the original entry stands.
			return 0, ErrDuplicateReference
		}
		return 0, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return newBalance, nil
}

func (r *SQLiteCreditRepository) GetTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	query := `SELECT id, user_id, type, amount, balance_after, description, reference_id, metadata, created_at
		FROM credit_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var transactions []*models.CreditTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

func (r *SQLiteCreditRepository) GetTransactionByReference(ctx context.Context, referenceID string, txType models.CreditTransactionType) (*models.CreditTransaction, error) {
	query := `SELECT id, user_id, type, amount, balance_after, description, reference_id, metadata, created_at
		FROM credit_transactions WHERE reference_id = ? AND type = ?`

	row := r.db.QueryRowContext(ctx, query, referenceID, string(txType))
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*models.CreditTransaction, error) {
	var t models.CreditTransaction
	var referenceID, metadata sql.NullString
	var createdAt string

	if err := s.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Description, &referenceID, &metadata, &createdAt); err != nil {
		return nil, err
	}

	if referenceID.Valid {
		t.ReferenceID = &referenceID.String
	}
	if metadata.Valid {
		t.MetadataJSON = metadata.String
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &t, nil
}

func scanProfileTx(ctx context.Context, tx *sql.Tx, userID string) (*models.Profile, error) {
	var p models.Profile
	var createdAt, updatedAt string
	err := tx.QueryRowContext(ctx,
		`SELECT id, email, full_name, credits, created_at, updated_at FROM profiles WHERE id = ?`,
		userID).Scan(&p.ID, &p.Email, &p.FullName, &p.Credits, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, entry *models.CreditTransaction) error {
	var referenceID, metadata *string
	if entry.ReferenceID != nil {
		referenceID = entry.ReferenceID
	}
	if entry.MetadataJSON != "" {
		metadata = &entry.MetadataJSON
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, type, amount, balance_after, description, reference_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Type), entry.Amount, entry.BalanceAfter,
		entry.Description, referenceID, metadata, entry.CreatedAt.Format(time.RFC3339))
	return err
}

// isUniqueViolation checks if an error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key")
}

// IsBusy reports whether err is a transient SQLite lock/busy error that is
// safe to retry.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY")
}

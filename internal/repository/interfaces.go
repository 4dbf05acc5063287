// Package repository defines repository interfaces for data access.
// User identity lives with the auth provider; user_id fields reference
// auth-provider user IDs.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

var (
	// ErrProfileNotFound indicates no profile row exists for the user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInsufficientCredits indicates the conditional decrement matched no
	// row because the balance was below the requested amount.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateReference indicates a ledger entry with the same
	// (reference_id, type) already exists.
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)

// CreditRepository is the single writer of profile balances and the credit
// transaction ledger. Every mutation is a single database transaction, so
// concurrent callers for the same account serialize at the store.
type CreditRepository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	// CreateProfileWithBonus inserts the profile and its welcome-bonus ledger
	// entry atomically. If the profile already exists, it is returned
	// unchanged, created is false, and no ledger entry is written.
	CreateProfileWithBonus(ctx context.Context, profile *models.Profile, bonus *models.CreditTransaction) (p *models.Profile, created bool, err error)
	// DeductCredits atomically decrements the balance and appends the entry.
	// entry.Amount and entry.BalanceAfter are filled in by the repository.
	// Returns the new balance; ErrInsufficientCredits (with the available
	// balance) when balance < amount; ErrProfileNotFound when no profile row
	// exists; ErrDuplicateReference when (reference_id, type) was already used.
	DeductCredits(ctx context.Context, userID string, amount int, entry *models.CreditTransaction) (int, error)
	// AddCredits atomically increments the balance and appends the entry.
	// Same contract as DeductCredits, without the insufficient-funds case.
	AddCredits(ctx context.Context, userID string, amount int, entry *models.CreditTransaction) (int, error)

	GetTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error)
	GetTransactionByReference(ctx context.Context, referenceID string, txType models.CreditTransactionType) (*models.CreditTransaction, error)
}

// PaymentCustomerRepository stores the user -> Stripe customer mapping.
type PaymentCustomerRepository interface {
	Get(ctx context.Context, userID string) (*models.PaymentCustomer, error)
	Create(ctx context.Context, customer *models.PaymentCustomer) error
}

// AppliedSuggestionRepository records which suggestions a user has applied.
type AppliedSuggestionRepository interface {
	// Mark records the application. Returns false when the pair was already
	// recorded (idempotent set membership).
	Mark(ctx context.Context, applied *models.AppliedSuggestion) (bool, error)
	Contains(ctx context.Context, userID, suggestionID string) (bool, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.AppliedSuggestion, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Credit            CreditRepository
	PaymentCustomer   PaymentCustomerRepository
	AppliedSuggestion AppliedSuggestionRepository
}

// NewRepositories creates all repositories with their SQLite implementations.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Credit:            NewSQLiteCreditRepository(db),
		PaymentCustomer:   NewSQLitePaymentCustomerRepository(db),
		AppliedSuggestion: NewSQLiteAppliedSuggestionRepository(db),
	}
}

// Package service contains the business logic layer.
// UserID parameters reference auth-provider user IDs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/models"
	"github.com/roomvibe/roomvibe-api/internal/repository"
)

// ErrInvalidAmount indicates the amount is not a positive integer.
var ErrInvalidAmount = errors.New("amount must be a positive integer")

// InsufficientCreditsError is the expected business error when a deduction
// exceeds the available balance. Required and Available let the UI prompt a
// purchase with exact numbers.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// CreditService is the single entry point for balance reads and ledger
// mutations. All mutations go through the repository's atomic operations;
// nothing here does a read-modify-write on the balance.
type CreditService struct {
	repos  *repository.Repositories
	cfg    *config.Config
	logger *slog.Logger
}

// NewCreditService creates a new credit service.
func NewCreditService(repos *repository.Repositories, cfg *config.Config, logger *slog.Logger) *CreditService {
	return &CreditService{
		repos:  repos,
		cfg:    cfg,
		logger: logger,
	}
}

// DeductResult reports a successful deduction.
type DeductResult struct {
	Credits       int
	TransactionID string
}

// GetBalance returns the user's current balance, creating the profile with
// the welcome bonus (and its bonus ledger entry, atomically) on first access.
func (s *CreditService) GetBalance(ctx context.Context, userID string) (int, error) {
	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.Credits, nil
}

// Deduct atomically removes amount credits and appends a deduction ledger
// entry. Retrying the same referenceID after a success is a no-op returning
// the original result, so a retried deduct call cannot double-charge.
func (s *CreditService) Deduct(ctx context.Context, userID string, amount int, description string, referenceID *string, metadata map[string]any) (*DeductResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.ensureProfile(ctx, userID); err != nil {
		return nil, err
	}

	entry := &models.CreditTransaction{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Type:         models.TxTypeDeduction,
		Description:  description,
		ReferenceID:  referenceID,
		MetadataJSON: marshalMetadata(metadata),
	}

	var newBalance int
	err := s.withRetry(ctx, func() error {
		var repoErr error
		newBalance, repoErr = s.repos.Credit.DeductCredits(ctx, userID, amount, entry)
		return repoErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return nil, &InsufficientCreditsError{Required: amount, Available: newBalance}
		}
		if errors.Is(err, repository.ErrDuplicateReference) && referenceID != nil {
			// The same deduction already settled; report it as the success it was.
			existing, lookupErr := s.repos.Credit.GetTransactionByReference(ctx, *referenceID, models.TxTypeDeduction)
			if lookupErr == nil && existing != nil {
				return &DeductResult{Credits: existing.BalanceAfter, TransactionID: existing.ID}, nil
			}
			return nil, err
		}
		return nil, fmt.Errorf("failed to deduct credits: %w", err)
	}

	s.logger.Info("credits deducted",
		"user_id", userID,
		"amount", amount,
		"balance_after", newBalance,
		"transaction_id", entry.ID,
	)

	return &DeductResult{Credits: newBalance, TransactionID: entry.ID}, nil
}

// Add atomically grants amount credits with the given transaction kind.
// Idempotent per (referenceID, kind): a second call with an already-recorded
// reference returns the current balance without crediting again. This is
// what makes payment webhook redelivery safe.
func (s *CreditService) Add(ctx context.Context, userID string, amount int, kind models.CreditTransactionType, description, referenceID string, metadata map[string]any) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return 0, err
	}

	if referenceID != "" {
		existing, err := s.repos.Credit.GetTransactionByReference(ctx, referenceID, kind)
		if err != nil {
			return 0, fmt.Errorf("failed idempotency lookup: %w", err)
		}
		if existing != nil {
			s.logger.Info("duplicate credit addition ignored",
				"user_id", userID,
				"reference_id", referenceID,
				"type", kind,
			)
			return profile.Credits, nil
		}
	}

	entry := &models.CreditTransaction{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Type:         kind,
		Description:  description,
		MetadataJSON: marshalMetadata(metadata),
	}
	if referenceID != "" {
		entry.ReferenceID = &referenceID
	}

	var newBalance int
	err = s.withRetry(ctx, func() error {
		var repoErr error
		newBalance, repoErr = s.repos.Credit.AddCredits(ctx, userID, amount, entry)
		return repoErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			// Lost the race against a concurrent delivery of the same event.
			current, balErr := s.GetBalance(ctx, userID)
			if balErr != nil {
				return 0, balErr
			}
			return current, nil
		}
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}

	s.logger.Info("credits added",
		"user_id", userID,
		"type", kind,
		"amount", amount,
		"balance_after", newBalance,
	)

	return newBalance, nil
}

// GetTransactionHistory retrieves a user's credit transaction history.
func (s *CreditService) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repos.Credit.GetTransactionsByUserID(ctx, userID, limit, offset)
}

// ensureProfile returns the user's profile, creating it with the welcome
// bonus on first access. Creation and the bonus entry are one DB transaction.
func (s *CreditService) ensureProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.repos.Credit.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}

	bonus := s.cfg.WelcomeBonusCredits
	newProfile := &models.Profile{ID: userID, Credits: bonus}
	var bonusEntry *models.CreditTransaction
	if bonus > 0 {
		bonusEntry = &models.CreditTransaction{
			ID:          ulid.Make().String(),
			UserID:      userID,
			Type:        models.TxTypeBonus,
			Amount:      bonus,
			Description: "Welcome bonus",
		}
	}

	profile, created, err := s.repos.Credit.CreateProfileWithBonus(ctx, newProfile, bonusEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if created {
		s.logger.Info("profile created with welcome bonus", "user_id", userID, "credits", bonus)
	}

	return profile, nil
}

// withRetry runs op, retrying a bounded number of times on transient SQLite
// lock errors. Only the atomic operation is retried, never a whole pipeline.
func (s *CreditService) withRetry(ctx context.Context, op func() error) error {
	const maxAttempts = 3

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op()
		if err == nil || !repository.IsBusy(err) {
			return err
		}

		s.logger.Warn("retrying credit operation after busy database", "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

func marshalMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(raw)
}

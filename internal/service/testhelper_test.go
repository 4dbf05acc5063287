package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/models"
	"github.com/roomvibe/roomvibe-api/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		WelcomeBonusCredits:  10,
		SuggestionCostCredit: 1,
		PollInterval:         time.Millisecond,
		PollBudget:           250 * time.Millisecond,
	}
}

// mockCreditRepository implements repository.CreditRepository in memory with
// the same error contract as the SQLite implementation.
type mockCreditRepository struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	txns     []*models.CreditTransaction
	byRef    map[string]*models.CreditTransaction

	// busyErrs is a queue of errors returned by the next mutations before
	// they succeed, for exercising retry paths.
	busyErrs []error
}

func newMockCreditRepository() *mockCreditRepository {
	return &mockCreditRepository{
		profiles: make(map[string]*models.Profile),
		byRef:    make(map[string]*models.CreditTransaction),
	}
}

func (m *mockCreditRepository) setProfile(userID string, credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = &models.Profile{ID: userID, Credits: credits}
}

func (m *mockCreditRepository) refKey(refID string, txType models.CreditTransactionType) string {
	return refID + "|" + string(txType)
}

func (m *mockCreditRepository) popBusyLocked() error {
	if len(m.busyErrs) == 0 {
		return nil
	}
	err := m.busyErrs[0]
	m.busyErrs = m.busyErrs[1:]
	return err
}

func (m *mockCreditRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, nil
}

func (m *mockCreditRepository) CreateProfileWithBonus(ctx context.Context, profile *models.Profile, bonus *models.CreditTransaction) (*models.Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[profile.ID]; ok {
		copy := *existing
		return &copy, false, nil
	}
	stored := *profile
	m.profiles[profile.ID] = &stored
	if bonus != nil {
		bonus.BalanceAfter = stored.Credits
		m.txns = append(m.txns, bonus)
	}
	copy := stored
	return &copy, true, nil
}

func (m *mockCreditRepository) DeductCredits(ctx context.Context, userID string, amount int, entry *models.CreditTransaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popBusyLocked(); err != nil {
		return 0, err
	}

	p, ok := m.profiles[userID]
	if !ok {
		return 0, repository.ErrProfileNotFound
	}
	if entry.ReferenceID != nil {
		if _, dup := m.byRef[m.refKey(*entry.ReferenceID, entry.Type)]; dup {
			return 0, repository.ErrDuplicateReference
		}
	}
	if p.Credits < amount {
		return p.Credits, repository.ErrInsufficientCredits
	}

	p.Credits -= amount
	entry.UserID = userID
	entry.Amount = -amount
	entry.BalanceAfter = p.Credits
	m.txns = append(m.txns, entry)
	if entry.ReferenceID != nil {
		m.byRef[m.refKey(*entry.ReferenceID, entry.Type)] = entry
	}
	return p.Credits, nil
}

func (m *mockCreditRepository) AddCredits(ctx context.Context, userID string, amount int, entry *models.CreditTransaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popBusyLocked(); err != nil {
		return 0, err
	}

	p, ok := m.profiles[userID]
	if !ok {
		return 0, repository.ErrProfileNotFound
	}
	if entry.ReferenceID != nil {
		if _, dup := m.byRef[m.refKey(*entry.ReferenceID, entry.Type)]; dup {
			return 0, repository.ErrDuplicateReference
		}
	}

	p.Credits += amount
	entry.UserID = userID
	entry.Amount = amount
	entry.BalanceAfter = p.Credits
	m.txns = append(m.txns, entry)
	if entry.ReferenceID != nil {
		m.byRef[m.refKey(*entry.ReferenceID, entry.Type)] = entry
	}
	return p.Credits, nil
}

func (m *mockCreditRepository) GetTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CreditTransaction
	for i := len(m.txns) - 1; i >= 0; i-- {
		if m.txns[i].UserID == userID {
			out = append(out, m.txns[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockCreditRepository) GetTransactionByReference(ctx context.Context, referenceID string, txType models.CreditTransactionType) (*models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.byRef[m.refKey(referenceID, txType)]; ok {
		return tx, nil
	}
	return nil, nil
}

// mockPaymentCustomerRepository implements repository.PaymentCustomerRepository.
type mockPaymentCustomerRepository struct {
	mu        sync.Mutex
	customers map[string]*models.PaymentCustomer
}

func newMockPaymentCustomerRepository() *mockPaymentCustomerRepository {
	return &mockPaymentCustomerRepository{customers: make(map[string]*models.PaymentCustomer)}
}

func (m *mockPaymentCustomerRepository) Get(ctx context.Context, userID string) (*models.PaymentCustomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[userID]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (m *mockPaymentCustomerRepository) Create(ctx context.Context, customer *models.PaymentCustomer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customer.UserID] = customer
	return nil
}

// mockAppliedSuggestionRepository implements repository.AppliedSuggestionRepository.
type mockAppliedSuggestionRepository struct {
	mu      sync.Mutex
	applied map[string]*models.AppliedSuggestion
}

func newMockAppliedSuggestionRepository() *mockAppliedSuggestionRepository {
	return &mockAppliedSuggestionRepository{applied: make(map[string]*models.AppliedSuggestion)}
}

func (m *mockAppliedSuggestionRepository) key(userID, suggestionID string) string {
	return userID + "|" + suggestionID
}

func (m *mockAppliedSuggestionRepository) Mark(ctx context.Context, applied *models.AppliedSuggestion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(applied.UserID, applied.SuggestionID)
	if _, ok := m.applied[k]; ok {
		return false, nil
	}
	m.applied[k] = applied
	return true, nil
}

func (m *mockAppliedSuggestionRepository) Contains(ctx context.Context, userID, suggestionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.applied[m.key(userID, suggestionID)]
	return ok, nil
}

func (m *mockAppliedSuggestionRepository) ListByUserID(ctx context.Context, userID string) ([]*models.AppliedSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AppliedSuggestion
	for _, a := range m.applied {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestRepos(credit *mockCreditRepository) *repository.Repositories {
	return &repository.Repositories{
		Credit:            credit,
		PaymentCustomer:   newMockPaymentCustomerRepository(),
		AppliedSuggestion: newMockAppliedSuggestionRepository(),
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

func TestDeductInvalidAmount(t *testing.T) {
	svc := NewCreditService(newTestRepos(newMockCreditRepository()), testConfig(), testLogger())

	for _, amount := range []int{0, -1} {
		_, err := svc.Deduct(context.Background(), "user-1", amount, "test", nil, nil)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestDeductCreatesProfileWithWelcomeBonus(t *testing.T) {
	creditRepo := newMockCreditRepository()
	svc := NewCreditService(newTestRepos(creditRepo), testConfig(), testLogger())

	// First contact with an unknown user creates the profile with the
	// welcome bonus, so a 3-credit deduction leaves 7.
	result, err := svc.Deduct(context.Background(), "user-new", 3, "test", nil, nil)
	if err != nil {
		t.Fatalf("Deduct failed: %v", err)
	}
	if result.Credits != 7 {
		t.Errorf("expected balance 7 after bonus and deduction, got %d", result.Credits)
	}

	txns, _ := creditRepo.GetTransactionsByUserID(context.Background(), "user-new", 10, 0)
	if len(txns) != 2 {
		t.Fatalf("expected bonus + deduction entries, got %d", len(txns))
	}
}

func TestDeductInsufficientCredits(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 2)
	svc := NewCreditService(newTestRepos(creditRepo), testConfig(), testLogger())

	_, err := svc.Deduct(context.Background(), "user-1", 5, "test", nil, nil)

	var insufficient *InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 5 {
		t.Errorf("expected required 5, got %d", insufficient.Required)
	}
	if insufficient.Available != 2 {
		t.Errorf("expected available 2, got %d", insufficient.Available)
	}
}

func TestDeductDuplicateReferenceIsNoOp(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc := NewCreditService(newTestRepos(creditRepo), testConfig(), testLogger())
	ctx := context.Background()

	ref := "apply:sug-1:inv-1"
	first, err := svc.Deduct(ctx, "user-1", 1, "test", &ref, nil)
	if err != nil {
		t.Fatalf("first Deduct failed: %v", err)
	}

	second, err := svc.Deduct(ctx, "user-1", 1, "test", &ref, nil)
	if err != nil {
		t.Fatalf("repeated Deduct should be a success no-op, got %v", err)
	}
	if second.Credits != first.Credits {
		t.Errorf("expected repeated deduct to report balance %d, got %d", first.Credits, second.Credits)
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("expected the original transaction ID %s, got %s", first.TransactionID, second.TransactionID)
	}

	profile, _ := creditRepo.GetProfile(ctx, "user-1")
	if profile.Credits != 9 {
		t.Errorf("expected only one charge, balance 9, got %d", profile.Credits)
	}
}

func TestDeductRetriesBusyDatabase(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	creditRepo.busyErrs = []error{
		errors.New("database is locked"),
		errors.New("database is locked"),
	}
	svc := NewCreditService(newTestRepos(creditRepo), testConfig(), testLogger())

	result, err := svc.Deduct(context.Background(), "user-1", 1, "test", nil, nil)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if result.Credits != 9 {
		t.Errorf("expected balance 9, got %d", result.Credits)
	}
}

func TestAddIdempotentByReference(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 0)
	svc := NewCreditService(newTestRepos(creditRepo), testConfig(), testLogger())
	ctx := context.Background()

	balance, err := svc.Add(ctx, "user-1", 20, models.TxTypePurchase, "purchase", "cs_test_1", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if balance != 20 {
		t.Errorf("expected balance 20, got %d", balance)
	}

	// Redelivery of the same reference grants nothing
	balance, err = svc.Add(ctx, "user-1", 20, models.TxTypePurchase, "purchase", "cs_test_1", nil)
	if err != nil {
		t.Fatalf("repeated Add failed: %v", err)
	}
	if balance != 20 {
		t.Errorf("expected balance unchanged at 20, got %d", balance)
	}

	txns, _ := creditRepo.GetTransactionsByUserID(ctx, "user-1", 10, 0)
	if len(txns) != 1 {
		t.Errorf("expected one purchase entry, got %d", len(txns))
	}
}

func TestGetBalanceNewUser(t *testing.T) {
	svc := NewCreditService(newTestRepos(newMockCreditRepository()), testConfig(), testLogger())

	balance, err := svc.GetBalance(context.Background(), "user-new")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 10 {
		t.Errorf("expected welcome bonus balance 10, got %d", balance)
	}
}

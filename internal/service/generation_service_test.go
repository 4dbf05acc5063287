package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/roomvibe/roomvibe-api/internal/models"
	"github.com/roomvibe/roomvibe-api/internal/pipeline"
	"github.com/roomvibe/roomvibe-api/internal/repository"
)

func newTestGenerationService(backend pipeline.Backend, creditRepo *mockCreditRepository) (*GenerationService, *repository.Repositories) {
	return newTestGenerationServiceWithStorage(backend, creditRepo, nil)
}

func newTestGenerationServiceWithStorage(backend pipeline.Backend, creditRepo *mockCreditRepository, storage ResultStore) (*GenerationService, *repository.Repositories) {
	cfg := testConfig()
	repos := newTestRepos(creditRepo)
	credit := NewCreditService(repos, cfg, testLogger())
	svc := NewGenerationService(cfg, backend, repos, credit, storage, testLogger())
	return svc, repos
}

// fakeResultStore keeps mirrored objects in memory and presigns them with
// a recognizable URL shape.
type fakeResultStore struct {
	mirrored  map[string]string // object key -> source URL
	mirrorErr error
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{mirrored: make(map[string]string)}
}

func (f *fakeResultStore) IsEnabled() bool { return true }

func (f *fakeResultStore) MirrorImage(ctx context.Context, srcURL, key string) (string, error) {
	if f.mirrorErr != nil {
		return "", f.mirrorErr
	}
	objectKey := "results/" + key
	f.mirrored[objectKey] = srcURL
	return objectKey, nil
}

func (f *fakeResultStore) PresignedResultURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, ok := f.mirrored[key]; !ok {
		return "", fmt.Errorf("unknown object key %s", key)
	}
	return "https://cdn.roomvibe.test/" + key + "?sig=test", nil
}

func testSuggestion() models.Suggestion {
	return models.Suggestion{
		ID:          "sug-1",
		Title:       "Warm up the lighting",
		Description: "Swap the overhead fixture for layered warm-white lamps.",
		Category:    models.CategoryLighting,
	}
}

func TestApplySuggestionSuccess(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, repos := newTestGenerationService(pipeline.NewMockBackend(), creditRepo)
	ctx := context.Background()

	result, err := svc.ApplySuggestion(ctx, "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})
	if err != nil {
		t.Fatalf("ApplySuggestion failed: %v", err)
	}
	if result.ResultURL == "" {
		t.Error("expected a result URL")
	}
	if result.Credits != 9 {
		t.Errorf("expected balance 9 after one charge, got %d", result.Credits)
	}
	if result.TransactionID == "" {
		t.Error("expected a transaction ID")
	}

	// Exactly one deduction, referenced to this application
	txns, _ := creditRepo.GetTransactionsByUserID(ctx, "user-1", 10, 0)
	if len(txns) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(txns))
	}
	if txns[0].Type != models.TxTypeDeduction {
		t.Errorf("expected deduction entry, got %s", txns[0].Type)
	}
	if txns[0].ReferenceID == nil || !strings.HasPrefix(*txns[0].ReferenceID, "apply:sug-1:") {
		t.Errorf("expected reference prefixed apply:sug-1:, got %v", txns[0].ReferenceID)
	}

	applied, err := repos.AppliedSuggestion.Contains(ctx, "user-1", "sug-1")
	if err != nil || !applied {
		t.Errorf("expected suggestion recorded as applied, got %v %v", applied, err)
	}
}

func TestApplySuggestionReapplyChargesAgain(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, _ := newTestGenerationService(pipeline.NewMockBackend(), creditRepo)
	ctx := context.Background()

	req := ApplyRequest{ImageURL: "https://example.com/room.jpg", Suggestion: testSuggestion()}
	if _, err := svc.ApplySuggestion(ctx, "user-1", req); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	result, err := svc.ApplySuggestion(ctx, "user-1", req)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}

	// Each application is a fresh invocation and a fresh charge
	if result.Credits != 8 {
		t.Errorf("expected balance 8 after two charges, got %d", result.Credits)
	}

	// The second deduction records that the suggestion was applied before
	txns, _ := creditRepo.GetTransactionsByUserID(ctx, "user-1", 10, 0)
	if len(txns) != 2 {
		t.Fatalf("expected two ledger entries, got %d", len(txns))
	}
	if !strings.Contains(txns[0].MetadataJSON, `"reapplied":true`) {
		t.Errorf("expected reapplied flag in metadata, got %q", txns[0].MetadataJSON)
	}
	if strings.Contains(txns[1].MetadataJSON, "reapplied") {
		t.Errorf("expected no reapplied flag on first application, got %q", txns[1].MetadataJSON)
	}
}

func TestApplySuggestionPromptFailureNoCharge(t *testing.T) {
	backend := pipeline.NewMockBackend()
	backend.PromptErr = errors.New("prompt service unavailable")

	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, _ := newTestGenerationService(backend, creditRepo)

	_, err := svc.ApplySuggestion(context.Background(), "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})
	if !errors.Is(err, ErrPromptGeneration) {
		t.Fatalf("expected ErrPromptGeneration, got %v", err)
	}

	assertNoCharge(t, creditRepo)
}

func TestApplySuggestionSubmissionFailureNoCharge(t *testing.T) {
	backend := pipeline.NewMockBackend()
	backend.FailSubmission = true

	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, _ := newTestGenerationService(backend, creditRepo)

	_, err := svc.ApplySuggestion(context.Background(), "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})
	if !errors.Is(err, ErrJobSubmissionFailed) {
		t.Fatalf("expected ErrJobSubmissionFailed, got %v", err)
	}

	assertNoCharge(t, creditRepo)
}

func TestApplySuggestionGenerationFailedNoCharge(t *testing.T) {
	backend := pipeline.NewMockBackend()
	backend.FinalStatus = models.GenerationFailed
	backend.FinalError = "NSFW content detected"

	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, repos := newTestGenerationService(backend, creditRepo)
	ctx := context.Background()

	_, err := svc.ApplySuggestion(ctx, "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})

	var failed *GenerationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected GenerationFailedError, got %v", err)
	}
	if failed.Status != models.GenerationFailed {
		t.Errorf("expected failed status, got %s", failed.Status)
	}
	if failed.Detail != "NSFW content detected" {
		t.Errorf("expected provider detail, got %q", failed.Detail)
	}

	assertNoCharge(t, creditRepo)

	applied, err := repos.AppliedSuggestion.Contains(ctx, "user-1", "sug-1")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if applied {
		t.Error("expected failed generation to leave the suggestion unapplied")
	}
}

func TestApplySuggestionTimeoutNoCharge(t *testing.T) {
	backend := pipeline.NewMockBackend()
	backend.NeverFinish = true

	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, _ := newTestGenerationService(backend, creditRepo)

	_, err := svc.ApplySuggestion(context.Background(), "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}

	assertNoCharge(t, creditRepo)
}

func TestApplySuggestionInsufficientCreditsKeepsResult(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 0)
	svc, _ := newTestGenerationService(pipeline.NewMockBackend(), creditRepo)

	result, err := svc.ApplySuggestion(context.Background(), "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})

	var insufficient *InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	// The generated image is already made and is not revoked
	if result == nil || result.ResultURL == "" {
		t.Error("expected the generated result to be returned alongside the error")
	}
}

func TestApplySuggestionNoBaseImage(t *testing.T) {
	svc, _ := newTestGenerationService(pipeline.NewMockBackend(), newMockCreditRepository())

	_, err := svc.ApplySuggestion(context.Background(), "user-1", ApplyRequest{
		Suggestion: testSuggestion(),
	})
	if !errors.Is(err, ErrNoBaseImage) {
		t.Fatalf("expected ErrNoBaseImage, got %v", err)
	}
}

func TestApplySuggestionProgressCallback(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	svc, _ := newTestGenerationService(pipeline.NewMockBackend(), creditRepo)

	var seen []models.GenerationStatus
	_, err := svc.ApplySuggestion(context.Background(), "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
		OnProgress: func(status models.GenerationStatus) {
			seen = append(seen, status)
		},
	})
	if err != nil {
		t.Fatalf("ApplySuggestion failed: %v", err)
	}

	if len(seen) == 0 {
		t.Fatal("expected progress callbacks")
	}
	if seen[0] != models.GenerationStarting {
		t.Errorf("expected first status starting, got %s", seen[0])
	}
	if seen[len(seen)-1] != models.GenerationSucceeded {
		t.Errorf("expected final status succeeded, got %s", seen[len(seen)-1])
	}
}

func TestAnalyze(t *testing.T) {
	svc, _ := newTestGenerationService(pipeline.NewMockBackend(), newMockCreditRepository())
	ctx := context.Background()

	suggestions, err := svc.Analyze(ctx, "https://example.com/room.jpg")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(suggestions) == 0 {
		t.Error("expected suggestions")
	}

	if _, err := svc.Analyze(ctx, ""); !errors.Is(err, ErrNoBaseImage) {
		t.Errorf("expected ErrNoBaseImage for empty URL, got %v", err)
	}
}

func assertNoCharge(t *testing.T, creditRepo *mockCreditRepository) {
	t.Helper()
	profile, _ := creditRepo.GetProfile(context.Background(), "user-1")
	if profile.Credits != 10 {
		t.Errorf("expected balance untouched at 10, got %d", profile.Credits)
	}
	txns, _ := creditRepo.GetTransactionsByUserID(context.Background(), "user-1", 10, 0)
	if len(txns) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(txns))
	}
}

func TestApplySuggestionMirrorsResult(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	store := newFakeResultStore()
	svc, repos := newTestGenerationServiceWithStorage(pipeline.NewMockBackend(), creditRepo, store)
	ctx := context.Background()

	result, err := svc.ApplySuggestion(ctx, "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})
	if err != nil {
		t.Fatalf("ApplySuggestion failed: %v", err)
	}

	// The client gets a downloadable URL, not the raw object key
	if !strings.HasPrefix(result.ResultURL, "https://cdn.roomvibe.test/results/user-1/") {
		t.Errorf("expected presigned download URL, got %q", result.ResultURL)
	}
	if len(store.mirrored) != 1 {
		t.Errorf("expected one mirrored object, got %d", len(store.mirrored))
	}

	// The persisted record keeps the stable object key
	records, err := repos.AppliedSuggestion.ListByUserID(ctx, "user-1")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one applied record, got %d (%v)", len(records), err)
	}
	if !strings.HasPrefix(records[0].ResultURL, "results/user-1/") {
		t.Errorf("expected stored object key, got %q", records[0].ResultURL)
	}

	// Listing resolves the key back to a downloadable URL
	applied, err := svc.AppliedSuggestions(ctx, "user-1")
	if err != nil || len(applied) != 1 {
		t.Fatalf("AppliedSuggestions failed: %v", err)
	}
	if !strings.HasPrefix(applied[0].ResultURL, "https://cdn.roomvibe.test/results/user-1/") {
		t.Errorf("expected presigned URL from listing, got %q", applied[0].ResultURL)
	}
}

func TestApplySuggestionMirrorFailureKeepsProviderURL(t *testing.T) {
	creditRepo := newMockCreditRepository()
	creditRepo.setProfile("user-1", 10)
	store := newFakeResultStore()
	store.mirrorErr = errors.New("bucket unavailable")
	svc, repos := newTestGenerationServiceWithStorage(pipeline.NewMockBackend(), creditRepo, store)
	ctx := context.Background()

	result, err := svc.ApplySuggestion(ctx, "user-1", ApplyRequest{
		ImageURL:   "https://example.com/room.jpg",
		Suggestion: testSuggestion(),
	})
	if err != nil {
		t.Fatalf("ApplySuggestion failed: %v", err)
	}

	// Mirroring is best effort: the provider URL survives as is
	if !strings.Contains(result.ResultURL, "://") {
		t.Errorf("expected provider URL, got %q", result.ResultURL)
	}
	records, _ := repos.AppliedSuggestion.ListByUserID(ctx, "user-1")
	if len(records) != 1 || !strings.Contains(records[0].ResultURL, "://") {
		t.Errorf("expected provider URL persisted, got %+v", records)
	}
}

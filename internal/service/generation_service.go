package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/models"
	"github.com/roomvibe/roomvibe-api/internal/pipeline"
	"github.com/roomvibe/roomvibe-api/internal/repository"
)

var (
	// ErrNoBaseImage indicates a request without a room photo to work from.
	ErrNoBaseImage = errors.New("no base image provided")

	// ErrPromptGeneration indicates the prompt stage failed. No credits
	// have been charged at this point.
	ErrPromptGeneration = errors.New("prompt generation failed")

	// ErrJobSubmissionFailed indicates the provider accepted the request
	// but returned no job to poll.
	ErrJobSubmissionFailed = errors.New("generation job submission failed")

	// ErrGenerationTimeout indicates the job did not reach a terminal
	// status within the polling budget.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrNoResult indicates a job that succeeded but produced no output.
	ErrNoResult = errors.New("generation produced no result")
)

// GenerationFailedError reports a job that reached a failed or canceled
// terminal status.
type GenerationFailedError struct {
	Status models.GenerationStatus
	Detail string
}

func (e *GenerationFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("generation %s", e.Status)
	}
	return fmt.Sprintf("generation %s: %s", e.Status, e.Detail)
}

// ProgressFunc is invoked whenever a poll observes a status change.
type ProgressFunc func(status models.GenerationStatus)

// ResultStore persists generated images beyond the provider's short-lived
// result URLs and hands out download URLs for the stored copies.
type ResultStore interface {
	IsEnabled() bool
	MirrorImage(ctx context.Context, srcURL, key string) (string, error)
	PresignedResultURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// GenerationService orchestrates the two-stage suggestion pipeline: prompt
// synthesis, then asynchronous image generation polled to completion.
// Credits are charged only after the generation succeeds.
type GenerationService struct {
	backend      pipeline.Backend
	repos        *repository.Repositories
	credits      *CreditService
	storage      ResultStore
	pollInterval time.Duration
	pollBudget   time.Duration
	costCredits  int
	logger       *slog.Logger
}

// NewGenerationService creates a new generation service.
func NewGenerationService(cfg *config.Config, backend pipeline.Backend, repos *repository.Repositories, credits *CreditService, storage ResultStore, logger *slog.Logger) *GenerationService {
	return &GenerationService{
		backend:      backend,
		repos:        repos,
		credits:      credits,
		storage:      storage,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
		costCredits:  cfg.SuggestionCostCredit,
		logger:       logger,
	}
}

// Analyze proposes redesign suggestions for a room photo.
func (s *GenerationService) Analyze(ctx context.Context, imageURL string) ([]models.Suggestion, error) {
	if imageURL == "" {
		return nil, ErrNoBaseImage
	}
	suggestions, err := s.backend.AnalyzeImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}
	return suggestions, nil
}

// ApplyRequest describes one suggestion application.
type ApplyRequest struct {
	ImageURL   string
	Suggestion models.Suggestion

	// OnProgress, when set, receives status transitions while polling.
	OnProgress ProgressFunc
}

// ApplyResult reports a finished application.
type ApplyResult struct {
	ResultURL     string
	Credits       int
	TransactionID string
}

// ApplySuggestion runs the full pipeline for one suggestion. The sequence
// is: generate a prompt, submit the generation job, poll until terminal or
// budget exhaustion, charge the credit, record the application.
//
// Charging happens strictly after the generation succeeds. If the deduction
// then fails on insufficient credits, the generated result is still
// returned alongside the error so the image is not lost.
func (s *GenerationService) ApplySuggestion(ctx context.Context, userID string, req ApplyRequest) (*ApplyResult, error) {
	if req.ImageURL == "" {
		return nil, ErrNoBaseImage
	}
	if req.Suggestion.ID == "" {
		return nil, errors.New("suggestion id is required")
	}

	invocationID := ulid.Make().String()
	log := s.logger.With("user_id", userID, "suggestion_id", req.Suggestion.ID, "invocation_id", invocationID)

	reapplied, err := s.repos.AppliedSuggestion.Contains(ctx, userID, req.Suggestion.ID)
	if err != nil {
		log.Warn("failed to check applied suggestions", "error", err)
	}

	prompt, err := s.backend.GeneratePrompt(ctx, req.ImageURL, []models.Suggestion{req.Suggestion})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPromptGeneration, err)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrPromptGeneration)
	}

	job, err := s.backend.SubmitGenerationJob(ctx, models.GenerationInput{
		ImageURL: req.ImageURL,
		Prompt:   prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobSubmissionFailed, err)
	}
	if job == nil || job.ID == "" {
		return nil, ErrJobSubmissionFailed
	}

	log.Info("generation job submitted", "job_id", job.ID)

	final, err := s.pollUntilDone(ctx, job, req.OnProgress, log)
	if err != nil {
		return nil, err
	}
	if len(final.Output) == 0 {
		return nil, ErrNoResult
	}

	// storedResult is what gets persisted: the object key once mirrored,
	// otherwise the provider URL.
	storedResult := final.Output[0]
	if s.storage != nil && s.storage.IsEnabled() {
		key := fmt.Sprintf("%s/%s.png", userID, invocationID)
		if mirrored, mErr := s.storage.MirrorImage(ctx, storedResult, key); mErr != nil {
			log.Warn("failed to mirror result image", "error", mErr)
		} else {
			storedResult = mirrored
		}
	}

	metadata := map[string]any{
		"suggestion_id": req.Suggestion.ID,
		"job_id":        final.ID,
	}
	if reapplied {
		metadata["reapplied"] = true
	}

	referenceID := fmt.Sprintf("apply:%s:%s", req.Suggestion.ID, invocationID)
	deducted, err := s.credits.Deduct(ctx, userID, s.costCredits,
		fmt.Sprintf("Applied suggestion: %s", req.Suggestion.Title),
		&referenceID,
		metadata,
	)
	if err != nil {
		var insufficient *InsufficientCreditsError
		if errors.As(err, &insufficient) {
			// The work is done and cannot be revoked. Surface the result
			// together with the billing failure.
			log.Warn("generation succeeded but balance was short",
				"required", insufficient.Required,
				"available", insufficient.Available,
			)
			return &ApplyResult{ResultURL: s.downloadURL(ctx, storedResult)}, err
		}
		return nil, err
	}

	inserted, err := s.repos.AppliedSuggestion.Mark(ctx, &models.AppliedSuggestion{
		UserID:        userID,
		SuggestionID:  req.Suggestion.ID,
		TransactionID: deducted.TransactionID,
		ResultURL:     storedResult,
		AppliedAt:     time.Now(),
	})
	if err != nil {
		log.Error("failed to record applied suggestion", "error", err)
	} else if !inserted {
		log.Info("suggestion re-applied")
	}

	log.Info("suggestion applied",
		"job_id", final.ID,
		"balance_after", deducted.Credits,
		"transaction_id", deducted.TransactionID,
	)

	return &ApplyResult{
		ResultURL:     s.downloadURL(ctx, storedResult),
		Credits:       deducted.Credits,
		TransactionID: deducted.TransactionID,
	}, nil
}

// AppliedSuggestions lists the user's previously applied suggestions with
// result references resolved to downloadable URLs.
func (s *GenerationService) AppliedSuggestions(ctx context.Context, userID string) ([]*models.AppliedSuggestion, error) {
	records, err := s.repos.AppliedSuggestion.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.AppliedSuggestion, 0, len(records))
	for _, rec := range records {
		resolved := *rec
		resolved.ResultURL = s.downloadURL(ctx, rec.ResultURL)
		out = append(out, &resolved)
	}
	return out, nil
}

// downloadURL resolves a stored result reference for clients. Mirrored
// results are stored as object keys and get a fresh presigned URL;
// provider URLs pass through untouched.
func (s *GenerationService) downloadURL(ctx context.Context, stored string) string {
	if s.storage == nil || !s.storage.IsEnabled() || strings.Contains(stored, "://") {
		return stored
	}
	url, err := s.storage.PresignedResultURL(ctx, stored, 0)
	if err != nil {
		s.logger.Warn("failed to presign result", "key", stored, "error", err)
		return stored
	}
	return url
}

// pollUntilDone polls the job until it reaches a terminal status, the
// budget is exhausted, or the context is canceled. Transient poll errors
// are logged and the loop continues; the budget bounds total wait.
func (s *GenerationService) pollUntilDone(ctx context.Context, job *models.GenerationJob, onProgress ProgressFunc, log *slog.Logger) (*models.GenerationJob, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	budget := time.NewTimer(s.pollBudget)
	defer budget.Stop()

	lastStatus := job.Status
	if onProgress != nil {
		onProgress(lastStatus)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-budget.C:
			log.Warn("polling budget exhausted", "job_id", job.ID, "last_status", lastStatus)
			return nil, ErrGenerationTimeout
		case <-ticker.C:
			current, err := s.backend.PollJob(ctx, job.ID)
			if err != nil {
				log.Warn("poll failed, will retry", "job_id", job.ID, "error", err)
				continue
			}
			if current.Status != lastStatus {
				lastStatus = current.Status
				log.Info("generation status changed", "job_id", job.ID, "status", lastStatus)
				if onProgress != nil {
					onProgress(lastStatus)
				}
			}
			if !current.Status.IsTerminal() {
				continue
			}
			if current.Status != models.GenerationSucceeded {
				return nil, &GenerationFailedError{Status: current.Status, Detail: current.Error}
			}
			return current, nil
		}
	}
}

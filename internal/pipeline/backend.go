// Package pipeline defines the generation backend capability consumed by the
// orchestrator, plus the concrete live and mock implementations. The
// orchestrator never knows which implementation answered.
package pipeline

import (
	"context"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

// Backend is the capability interface for the AI generation pipeline.
type Backend interface {
	// AnalyzeImage inspects a room photo and proposes redesign suggestions.
	AnalyzeImage(ctx context.Context, imageURL string) ([]models.Suggestion, error)

	// GeneratePrompt synthesizes an image-generation prompt from the base
	// image and the selected suggestions.
	GeneratePrompt(ctx context.Context, imageURL string, suggestions []models.Suggestion) (string, error)

	// SubmitGenerationJob starts an asynchronous image generation and
	// returns the provider's job record (at least ID and initial status).
	SubmitGenerationJob(ctx context.Context, input models.GenerationInput) (*models.GenerationJob, error)

	// PollJob returns the current state of a previously submitted job.
	PollJob(ctx context.Context, jobID string) (*models.GenerationJob, error)
}

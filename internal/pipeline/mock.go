package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

// MockBackend simulates the generation pipeline in memory. Jobs advance
// starting -> processing -> succeeded across successive polls, so the
// orchestrator exercises the same state machine as against the live
// provider. Used when PIPELINE_MODE=mock and throughout the tests.
type MockBackend struct {
	mu   sync.Mutex
	jobs map[string]*mockJob

	// StepPolls is how many polls a job spends in each non-terminal state
	// before advancing (default 1).
	StepPolls int

	// FailSubmission makes SubmitGenerationJob return a job without an ID.
	FailSubmission bool

	// FinalStatus overrides the terminal status (default succeeded).
	FinalStatus models.GenerationStatus

	// FinalError is the provider error detail attached to a failed job.
	FinalError string

	// NeverFinish keeps jobs in processing forever (exercises poll budgets).
	NeverFinish bool

	// PromptErr, when set, is returned by GeneratePrompt.
	PromptErr error
}

type mockJob struct {
	job   models.GenerationJob
	polls int
}

// NewMockBackend creates a mock backend with default progression.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		jobs:        make(map[string]*mockJob),
		StepPolls:   1,
		FinalStatus: models.GenerationSucceeded,
	}
}

func (m *MockBackend) AnalyzeImage(ctx context.Context, imageURL string) ([]models.Suggestion, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("no image to analyze")
	}
	return []models.Suggestion{
		{
			ID:          ulid.Make().String(),
			Title:       "Warm up the lighting",
			Description: "Swap the overhead fixture for layered warm-white lamps.",
			Explanation: "The photo shows a single cold light source which flattens the room.",
			Category:    models.CategoryLighting,
		},
		{
			ID:          ulid.Make().String(),
			Title:       "Add a statement rug",
			Description: "Anchor the seating area with a large textured rug.",
			Category:    models.CategoryDecor,
		},
		{
			ID:          ulid.Make().String(),
			Title:       "Rearrange seating toward the window",
			Description: "Turn the sofa to face the natural light.",
			Category:    models.CategoryLayout,
		},
	}, nil
}

func (m *MockBackend) GeneratePrompt(ctx context.Context, imageURL string, suggestions []models.Suggestion) (string, error) {
	if m.PromptErr != nil {
		return "", m.PromptErr
	}
	if len(suggestions) == 0 {
		return "", fmt.Errorf("no suggestions provided")
	}
	prompt := "Interior redesign of the pictured room: " + suggestions[0].Description
	return prompt, nil
}

func (m *MockBackend) SubmitGenerationJob(ctx context.Context, input models.GenerationInput) (*models.GenerationJob, error) {
	if m.FailSubmission {
		return &models.GenerationJob{Status: models.GenerationFailed, Error: "submission rejected"}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job := models.GenerationJob{
		ID:        ulid.Make().String(),
		Status:    models.GenerationStarting,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
	m.jobs[job.ID] = &mockJob{job: job}

	out := job
	return &out, nil
}

func (m *MockBackend) PollJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}

	state.polls++
	if !m.NeverFinish && !state.job.Status.IsTerminal() {
		step := m.StepPolls
		if step < 1 {
			step = 1
		}
		switch {
		case state.polls <= step:
			state.job.Status = models.GenerationProcessing
		default:
			state.job.Status = m.FinalStatus
			if m.FinalStatus == models.GenerationSucceeded {
				state.job.Output = []string{"https://images.roomvibe.test/results/" + jobID + ".png"}
			} else {
				state.job.Error = m.FinalError
			}
		}
	}

	out := state.job
	return &out, nil
}

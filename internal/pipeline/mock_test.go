package pipeline

import (
	"context"
	"testing"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

func TestMockJobProgression(t *testing.T) {
	backend := NewMockBackend()
	ctx := context.Background()

	job, err := backend.SubmitGenerationJob(ctx, models.GenerationInput{
		ImageURL: "https://example.com/room.jpg",
		Prompt:   "warm lighting",
	})
	if err != nil {
		t.Fatalf("SubmitGenerationJob failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a job ID")
	}
	if job.Status != models.GenerationStarting {
		t.Errorf("expected starting status, got %s", job.Status)
	}

	first, err := backend.PollJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("PollJob failed: %v", err)
	}
	if first.Status != models.GenerationProcessing {
		t.Errorf("expected processing after first poll, got %s", first.Status)
	}

	second, err := backend.PollJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("PollJob failed: %v", err)
	}
	if second.Status != models.GenerationSucceeded {
		t.Errorf("expected succeeded after second poll, got %s", second.Status)
	}
	if len(second.Output) == 0 {
		t.Error("expected output URLs on success")
	}

	// Terminal state is stable across further polls
	third, _ := backend.PollJob(ctx, job.ID)
	if third.Status != models.GenerationSucceeded {
		t.Errorf("expected terminal state to stick, got %s", third.Status)
	}
}

func TestMockFailure(t *testing.T) {
	backend := NewMockBackend()
	backend.FinalStatus = models.GenerationFailed
	backend.FinalError = "provider error"
	ctx := context.Background()

	job, err := backend.SubmitGenerationJob(ctx, models.GenerationInput{ImageURL: "x", Prompt: "y"})
	if err != nil {
		t.Fatalf("SubmitGenerationJob failed: %v", err)
	}

	var final *models.GenerationJob
	for i := 0; i < 5; i++ {
		final, err = backend.PollJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("PollJob failed: %v", err)
		}
		if final.Status.IsTerminal() {
			break
		}
	}
	if final.Status != models.GenerationFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	if final.Error != "provider error" {
		t.Errorf("expected provider error detail, got %q", final.Error)
	}
}

func TestMockPollUnknownJob(t *testing.T) {
	backend := NewMockBackend()
	if _, err := backend.PollJob(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestMockAnalyze(t *testing.T) {
	backend := NewMockBackend()

	suggestions, err := backend.AnalyzeImage(context.Background(), "https://example.com/room.jpg")
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected suggestions")
	}
	for _, s := range suggestions {
		if s.ID == "" || s.Title == "" {
			t.Errorf("expected populated suggestion, got %+v", s)
		}
	}

	if _, err := backend.AnalyzeImage(context.Background(), ""); err == nil {
		t.Error("expected error for empty image URL")
	}
}

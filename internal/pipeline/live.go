package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

// LiveBackend is a thin JSON-over-HTTP client for the real prompt and image
// generation providers. It carries no orchestration logic; retries, polling
// cadence and accounting all live with the caller.
type LiveBackend struct {
	promptURL  string
	imageURL   string
	imageToken string
	client     *http.Client
	logger     *slog.Logger
}

// LiveConfig holds live backend configuration.
type LiveConfig struct {
	PromptServiceURL string
	ImageServiceURL  string
	ImageToken       string
	Timeout          time.Duration // per-request timeout (default 60s)
}

// NewLiveBackend creates a live backend.
func NewLiveBackend(cfg LiveConfig, logger *slog.Logger) *LiveBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &LiveBackend{
		promptURL:  cfg.PromptServiceURL,
		imageURL:   cfg.ImageServiceURL,
		imageToken: cfg.ImageToken,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With("component", "pipeline"),
	}
}

func (b *LiveBackend) AnalyzeImage(ctx context.Context, imageURL string) ([]models.Suggestion, error) {
	var resp struct {
		Suggestions []models.Suggestion `json:"suggestions"`
		Error       string              `json:"error,omitempty"`
	}
	if err := b.postJSON(ctx, b.promptURL+"/analyze", map[string]any{"imageUrl": imageURL}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("analysis failed: %s", resp.Error)
	}
	return resp.Suggestions, nil
}

func (b *LiveBackend) GeneratePrompt(ctx context.Context, imageURL string, suggestions []models.Suggestion) (string, error) {
	var resp struct {
		Prompt string `json:"prompt"`
		Error  string `json:"error,omitempty"`
	}
	payload := map[string]any{"imageUrl": imageURL, "suggestions": suggestions}
	if err := b.postJSON(ctx, b.promptURL+"/generate-prompt", payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("prompt service: %s", resp.Error)
	}
	return resp.Prompt, nil
}

func (b *LiveBackend) SubmitGenerationJob(ctx context.Context, input models.GenerationInput) (*models.GenerationJob, error) {
	var job models.GenerationJob
	payload := map[string]any{
		"input": map[string]string{
			"image":  input.ImageURL,
			"prompt": input.Prompt,
		},
	}
	if err := b.postJSON(ctx, b.imageURL+"/predictions", payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (b *LiveBackend) PollJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.imageURL+"/predictions/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("poll returned status %d: %s", resp.StatusCode, string(body))
	}

	var job models.GenerationJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

func (b *LiveBackend) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(raw))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *LiveBackend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if b.imageToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.imageToken)
	}
}

package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/roomvibe/roomvibe-api/internal/models"
	"github.com/roomvibe/roomvibe-api/internal/service"
)

// SuggestionsHandler handles suggestion analysis and application.
type SuggestionsHandler struct {
	generationSvc *service.GenerationService
}

// NewSuggestionsHandler creates a new suggestions handler.
func NewSuggestionsHandler(generationSvc *service.GenerationService) *SuggestionsHandler {
	return &SuggestionsHandler{generationSvc: generationSvc}
}

// SuggestionRecord is one redesign suggestion in API responses.
type SuggestionRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Explanation string `json:"explanation,omitempty"`
	Category    string `json:"category" enum:"furniture,color,lighting,layout,decor,custom"`
}

// AnalyzeInput represents an analysis request.
type AnalyzeInput struct {
	Body struct {
		ImageURL string `json:"image_url" format:"uri" doc:"Room photo to analyze"`
	}
}

// AnalyzeOutput represents an analysis response.
type AnalyzeOutput struct {
	Body struct {
		Suggestions []SuggestionRecord `json:"suggestions"`
	}
}

// Analyze proposes redesign suggestions for a room photo.
func (h *SuggestionsHandler) Analyze(ctx context.Context, input *AnalyzeInput) (*AnalyzeOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	suggestions, err := h.generationSvc.Analyze(ctx, input.Body.ImageURL)
	if err != nil {
		if errors.Is(err, service.ErrNoBaseImage) {
			return nil, huma.Error400BadRequest("image_url is required")
		}
		return nil, huma.Error502BadGateway("analysis failed")
	}

	records := make([]SuggestionRecord, 0, len(suggestions))
	for _, s := range suggestions {
		records = append(records, SuggestionRecord{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Explanation: s.Explanation,
			Category:    string(s.Category),
		})
	}

	out := &AnalyzeOutput{}
	out.Body.Suggestions = records
	return out, nil
}

// ApplyInput represents an application request.
type ApplyInput struct {
	Body struct {
		ImageURL   string           `json:"image_url" format:"uri" doc:"Base room photo"`
		Suggestion SuggestionRecord `json:"suggestion" doc:"Suggestion to apply"`
	}
}

// ApplyOutput represents a finished application.
type ApplyOutput struct {
	Body struct {
		ResultURL     string `json:"result_url"`
		Credits       int    `json:"credits" doc:"Balance after the charge"`
		TransactionID string `json:"transaction_id"`
	}
}

// Apply runs the pipeline for one suggestion and charges a credit on
// success. This is a long-polling endpoint: it returns when the generation
// finishes or the polling budget is exhausted.
func (h *SuggestionsHandler) Apply(ctx context.Context, input *ApplyInput) (*ApplyOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	result, err := h.generationSvc.ApplySuggestion(ctx, userID, service.ApplyRequest{
		ImageURL: input.Body.ImageURL,
		Suggestion: models.Suggestion{
			ID:          input.Body.Suggestion.ID,
			Title:       input.Body.Suggestion.Title,
			Description: input.Body.Suggestion.Description,
			Explanation: input.Body.Suggestion.Explanation,
			Category:    models.SuggestionCategory(input.Body.Suggestion.Category),
		},
	})
	if err != nil {
		var failed *service.GenerationFailedError
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.Is(err, service.ErrNoBaseImage):
			return nil, huma.Error400BadRequest("image_url is required")
		case errors.As(err, &insufficient):
			detail := &huma.ErrorDetail{
				Message:  "insufficient credits",
				Location: "body",
				Value: map[string]any{
					"required":   insufficient.Required,
					"available":  insufficient.Available,
					"result_url": resultURLOf(result),
				},
			}
			return nil, huma.Error400BadRequest(insufficient.Error(), detail)
		case errors.Is(err, service.ErrPromptGeneration), errors.Is(err, service.ErrJobSubmissionFailed):
			return nil, huma.Error502BadGateway(err.Error())
		case errors.As(err, &failed):
			return nil, huma.Error502BadGateway(failed.Error())
		case errors.Is(err, service.ErrGenerationTimeout):
			return nil, huma.Error504GatewayTimeout("generation timed out")
		default:
			return nil, huma.Error500InternalServerError("failed to apply suggestion")
		}
	}

	out := &ApplyOutput{}
	out.Body.ResultURL = result.ResultURL
	out.Body.Credits = result.Credits
	out.Body.TransactionID = result.TransactionID
	return out, nil
}

// AppliedRecord is one previously applied suggestion.
type AppliedRecord struct {
	SuggestionID  string    `json:"suggestion_id"`
	TransactionID string    `json:"transaction_id"`
	ResultURL     string    `json:"result_url,omitempty"`
	AppliedAt     time.Time `json:"applied_at"`
}

// ListAppliedOutput represents the applied-suggestion list response.
type ListAppliedOutput struct {
	Body struct {
		Applied []AppliedRecord `json:"applied"`
	}
}

// ListApplied returns the user's previously applied suggestions.
func (h *SuggestionsHandler) ListApplied(ctx context.Context, input *struct{}) (*ListAppliedOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	applied, err := h.generationSvc.AppliedSuggestions(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list applied suggestions")
	}

	records := make([]AppliedRecord, 0, len(applied))
	for _, a := range applied {
		records = append(records, AppliedRecord{
			SuggestionID:  a.SuggestionID,
			TransactionID: a.TransactionID,
			ResultURL:     a.ResultURL,
			AppliedAt:     a.AppliedAt,
		})
	}

	out := &ListAppliedOutput{}
	out.Body.Applied = records
	return out, nil
}

func resultURLOf(result *service.ApplyResult) string {
	if result == nil {
		return ""
	}
	return result.ResultURL
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/roomvibe/roomvibe-api/internal/service"
)

// CreditsHandler handles credit balance and ledger endpoints.
type CreditsHandler struct {
	creditSvc *service.CreditService
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(creditSvc *service.CreditService) *CreditsHandler {
	return &CreditsHandler{creditSvc: creditSvc}
}

// GetBalanceOutput represents the balance response.
type GetBalanceOutput struct {
	Body struct {
		Credits int `json:"credits" doc:"Current credit balance"`
	}
}

// GetBalance returns the user's current credit balance.
func (h *CreditsHandler) GetBalance(ctx context.Context, input *struct{}) (*GetBalanceOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	credits, err := h.creditSvc.GetBalance(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get balance")
	}

	out := &GetBalanceOutput{}
	out.Body.Credits = credits
	return out, nil
}

// DeductInput represents a deduction request.
type DeductInput struct {
	Body struct {
		Amount      int            `json:"amount" minimum:"1" doc:"Credits to deduct"`
		Description string         `json:"description,omitempty" doc:"Human-readable reason"`
		ReferenceID string         `json:"reference_id,omitempty" doc:"Idempotency key; repeated deductions with the same reference are no-ops"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}
}

// DeductOutput represents a deduction response.
type DeductOutput struct {
	Body struct {
		Credits       int    `json:"credits" doc:"Balance after the deduction"`
		TransactionID string `json:"transaction_id"`
	}
}

// Deduct removes credits from the user's balance.
func (h *CreditsHandler) Deduct(ctx context.Context, input *DeductInput) (*DeductOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	var refID *string
	if input.Body.ReferenceID != "" {
		refID = &input.Body.ReferenceID
	}

	result, err := h.creditSvc.Deduct(ctx, userID, input.Body.Amount, input.Body.Description, refID, input.Body.Metadata)
	if err != nil {
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			return nil, huma.Error400BadRequest(insufficient.Error(), &huma.ErrorDetail{
				Message:  "insufficient credits",
				Location: "body.amount",
				Value: map[string]int{
					"required":  insufficient.Required,
					"available": insufficient.Available,
				},
			})
		case errors.Is(err, service.ErrInvalidAmount):
			return nil, huma.Error400BadRequest("amount must be a positive integer")
		default:
			return nil, huma.Error500InternalServerError("failed to deduct credits")
		}
	}

	out := &DeductOutput{}
	out.Body.Credits = result.Credits
	out.Body.TransactionID = result.TransactionID
	return out, nil
}

// TransactionRecord is one ledger entry in API responses.
type TransactionRecord struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Amount       int            `json:"amount" doc:"Signed credit delta"`
	BalanceAfter int            `json:"balance_after"`
	Description  string         `json:"description,omitempty"`
	ReferenceID  string         `json:"reference_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ListTransactionsInput represents a transaction history request.
type ListTransactionsInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"100" doc:"Max entries to return"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

// ListTransactionsOutput represents a transaction history response.
type ListTransactionsOutput struct {
	Body struct {
		Transactions []TransactionRecord `json:"transactions"`
	}
}

// ListTransactions returns the user's ledger history, newest first.
func (h *CreditsHandler) ListTransactions(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	txns, err := h.creditSvc.GetTransactionHistory(ctx, userID, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get transactions")
	}

	records := make([]TransactionRecord, 0, len(txns))
	for _, t := range txns {
		rec := TransactionRecord{
			ID:           t.ID,
			Type:         string(t.Type),
			Amount:       t.Amount,
			BalanceAfter: t.BalanceAfter,
			Description:  t.Description,
			CreatedAt:    t.CreatedAt,
		}
		if t.ReferenceID != nil {
			rec.ReferenceID = *t.ReferenceID
		}
		if t.MetadataJSON != "" {
			_ = json.Unmarshal([]byte(t.MetadataJSON), &rec.Metadata)
		}
		records = append(records, rec)
	}

	out := &ListTransactionsOutput{}
	out.Body.Transactions = records
	return out, nil
}

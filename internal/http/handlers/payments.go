package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/roomvibe/roomvibe-api/internal/service"
)

// PaymentsHandler handles credit purchase endpoints.
type PaymentsHandler struct {
	paymentSvc *service.PaymentService
}

// NewPaymentsHandler creates a new payments handler.
func NewPaymentsHandler(paymentSvc *service.PaymentService) *PaymentsHandler {
	return &PaymentsHandler{paymentSvc: paymentSvc}
}

// PackageRecord is one purchasable credit package.
type PackageRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

// ListPackagesOutput represents the package catalog response.
type ListPackagesOutput struct {
	Body struct {
		Packages []PackageRecord `json:"packages"`
	}
}

// ListPackages returns the purchasable credit packages.
func (h *PaymentsHandler) ListPackages(ctx context.Context, input *struct{}) (*ListPackagesOutput, error) {
	packages := h.paymentSvc.Packages()
	records := make([]PackageRecord, 0, len(packages))
	for _, p := range packages {
		records = append(records, PackageRecord{
			ID:         p.ID,
			Name:       p.Name,
			Credits:    p.Credits,
			PriceCents: p.PriceCents,
			Currency:   p.Currency,
		})
	}

	out := &ListPackagesOutput{}
	out.Body.Packages = records
	return out, nil
}

// CreateCheckoutInput represents a checkout request.
type CreateCheckoutInput struct {
	Body struct {
		PackageID string `json:"package_id" doc:"Credit package to purchase"`
	}
}

// CreateCheckoutOutput represents a created checkout session.
type CreateCheckoutOutput struct {
	Body struct {
		SessionID   string `json:"session_id"`
		CheckoutURL string `json:"checkout_url"`
	}
}

// CreateCheckout creates a Stripe Checkout Session for a credit package.
func (h *PaymentsHandler) CreateCheckout(ctx context.Context, input *CreateCheckoutInput) (*CreateCheckoutOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	result, err := h.paymentSvc.CreateCheckoutSession(ctx, userID, getUserEmail(ctx), input.Body.PackageID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownPackage) {
			return nil, huma.Error400BadRequest("unknown package_id")
		}
		return nil, huma.Error500InternalServerError("failed to create checkout session")
	}

	out := &CreateCheckoutOutput{}
	out.Body.SessionID = result.SessionID
	out.Body.CheckoutURL = result.CheckoutURL
	return out, nil
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/service"
)

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	cfg        *config.Config
	paymentSvc *service.PaymentService
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(cfg *config.Config, paymentSvc *service.PaymentService, logger *slog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		cfg:        cfg,
		paymentSvc: paymentSvc,
		logger:     logger,
	}
}

// HandleWebhook processes incoming Stripe webhooks.
// This is a raw HTTP handler since huma doesn't handle raw body verification well.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.cfg.StripeWebhookSecret)
	if err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
		if errors.Is(err, service.ErrMalformedEvent) || errors.Is(err, service.ErrPackageMismatch) {
			// A malformed or tampered event can never be processed.
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}
		// Our fault past this point. Return 500 so Stripe redelivers and
		// the idempotent reconciliation absorbs the retry.
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

// handleEvent routes events to appropriate handlers.
func (h *StripeWebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	h.logger.Info("received Stripe webhook", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)

	case "charge.refunded":
		return h.handleChargeRefunded(ctx, event)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		h.logger.Info("checkout session not paid, skipping", "session_id", session.ID, "payment_status", session.PaymentStatus)
		return nil
	}

	return h.paymentSvc.HandleCheckoutCompleted(ctx, &session)
}

func (h *StripeWebhookHandler) handleChargeRefunded(ctx context.Context, event stripe.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}

	return h.paymentSvc.HandleChargeRefunded(ctx, &charge)
}

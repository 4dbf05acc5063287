package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/customer"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/crypto"
	"github.com/roomvibe/roomvibe-api/internal/models"
	"github.com/roomvibe/roomvibe-api/internal/repository"
)

var (
	// ErrMalformedEvent indicates a webhook event missing required metadata.
	ErrMalformedEvent = errors.New("malformed payment event")

	// ErrPackageMismatch indicates event metadata that does not match the
	// package catalog (tampered or stale metadata).
	ErrPackageMismatch = errors.New("package metadata does not match catalog")

	// ErrUnknownPackage indicates a checkout request for a package not in
	// the catalog.
	ErrUnknownPackage = errors.New("unknown credit package")
)

// PaymentService reconciles Stripe events into ledger mutations and handles
// checkout session creation. The package catalog is the source of truth for
// how many credits a purchase grants; event metadata is only a claim.
type PaymentService struct {
	repos     *repository.Repositories
	billing   *config.BillingConfig
	credits   *CreditService
	encryptor *crypto.Encryptor
	baseURL   string
	logger    *slog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(cfg *config.Config, billing *config.BillingConfig, repos *repository.Repositories, credits *CreditService, encryptor *crypto.Encryptor, logger *slog.Logger) *PaymentService {
	// stripe-go uses a package-level key for all API calls.
	stripe.Key = cfg.StripeSecretKey

	return &PaymentService{
		repos:     repos,
		billing:   billing,
		credits:   credits,
		encryptor: encryptor,
		baseURL:   cfg.BaseURL,
		logger:    logger,
	}
}

// Packages returns the purchasable credit package catalog.
func (s *PaymentService) Packages() []config.CreditPackage {
	return s.billing.Packages
}

// HandleCheckoutCompleted converts a verified checkout.session.completed
// event into exactly one purchase transaction. Redelivery of the same
// session is a success-no-op.
func (s *PaymentService) HandleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.Metadata["user_id"]
	packageID := sess.Metadata["package_id"]
	creditsStr := sess.Metadata["credits"]
	if userID == "" || packageID == "" || creditsStr == "" {
		return fmt.Errorf("%w: missing user_id, package_id or credits metadata", ErrMalformedEvent)
	}

	claimedCredits, err := strconv.Atoi(creditsStr)
	if err != nil || claimedCredits <= 0 {
		return fmt.Errorf("%w: credits %q is not a positive integer", ErrMalformedEvent, creditsStr)
	}

	// Re-validate against the catalog; never trust credit amounts from
	// metadata alone.
	pkg := s.billing.GetPackage(packageID)
	if pkg == nil {
		return fmt.Errorf("%w: package %q not in catalog", ErrPackageMismatch, packageID)
	}
	if pkg.Credits != claimedCredits {
		return fmt.Errorf("%w: package %q grants %d credits, event claims %d",
			ErrPackageMismatch, packageID, pkg.Credits, claimedCredits)
	}

	existing, err := s.repos.Credit.GetTransactionByReference(ctx, sess.ID, models.TxTypePurchase)
	if err != nil {
		return fmt.Errorf("failed idempotency lookup: %w", err)
	}
	if existing != nil {
		s.logger.Info("checkout session already processed", "session_id", sess.ID)
		return nil
	}

	newBalance, err := s.credits.Add(ctx, userID, pkg.Credits, models.TxTypePurchase,
		fmt.Sprintf("Purchased %s package (%d credits)", pkg.Name, pkg.Credits),
		sess.ID,
		map[string]any{"package_id": pkg.ID},
	)
	if err != nil {
		return fmt.Errorf("failed to credit purchase: %w", err)
	}

	s.logger.Info("purchase reconciled",
		"user_id", userID,
		"package_id", pkg.ID,
		"credits", pkg.Credits,
		"balance_after", newBalance,
		"session_id", sess.ID,
	)
	return nil
}

// HandleChargeRefunded reverses the credits granted for a refunded charge.
// Spent credits are never clawed back: the refund entry removes at most the
// currently available balance, and at most what the package granted.
func (s *PaymentService) HandleChargeRefunded(ctx context.Context, charge *stripe.Charge) error {
	userID := charge.Metadata["user_id"]
	packageID := charge.Metadata["package_id"]
	if userID == "" || packageID == "" {
		return fmt.Errorf("%w: refunded charge missing user_id or package_id metadata", ErrMalformedEvent)
	}

	pkg := s.billing.GetPackage(packageID)
	if pkg == nil {
		return fmt.Errorf("%w: package %q not in catalog", ErrPackageMismatch, packageID)
	}

	refundRef := ""
	if charge.PaymentIntent != nil {
		refundRef = charge.PaymentIntent.ID + "_refund"
	} else {
		refundRef = charge.ID + "_refund"
	}

	existing, err := s.repos.Credit.GetTransactionByReference(ctx, refundRef, models.TxTypeRefund)
	if err != nil {
		return fmt.Errorf("failed idempotency lookup: %w", err)
	}
	if existing != nil {
		s.logger.Info("refund already processed", "reference_id", refundRef)
		return nil
	}

	available, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return err
	}

	revoke := pkg.Credits
	if available < revoke {
		revoke = available
	}
	if revoke == 0 {
		s.logger.Info("refund leaves nothing to revoke", "user_id", userID, "reference_id", refundRef)
		return nil
	}

	entry := &refundEntry{
		userID:      userID,
		amount:      revoke,
		referenceID: refundRef,
		description: fmt.Sprintf("Refund of %s package", pkg.Name),
	}
	if err := s.applyRefund(ctx, entry); err != nil {
		return err
	}

	s.logger.Info("refund reconciled",
		"user_id", userID,
		"package_id", pkg.ID,
		"credits_revoked", revoke,
		"reference_id", refundRef,
	)
	return nil
}

type refundEntry struct {
	userID      string
	amount      int
	referenceID string
	description string
}

// applyRefund removes credits as a refund-typed ledger entry. If a
// concurrent deduction shrank the balance since the clamp, retry once with
// whatever is left.
func (s *PaymentService) applyRefund(ctx context.Context, e *refundEntry) error {
	for attempt := 0; attempt < 2; attempt++ {
		entry := &models.CreditTransaction{
			ID:          ulid.Make().String(),
			UserID:      e.userID,
			Type:        models.TxTypeRefund,
			Description: e.description,
			ReferenceID: &e.referenceID,
		}
		_, err := s.repos.Credit.DeductCredits(ctx, e.userID, e.amount, entry)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrDuplicateReference) {
			return nil
		}
		if errors.Is(err, repository.ErrInsufficientCredits) {
			remaining, balErr := s.credits.GetBalance(ctx, e.userID)
			if balErr != nil {
				return balErr
			}
			if remaining == 0 {
				return nil
			}
			e.amount = remaining
			continue
		}
		return fmt.Errorf("failed to apply refund: %w", err)
	}
	return nil
}

// CheckoutResult reports a created checkout session.
type CheckoutResult struct {
	SessionID   string
	CheckoutURL string
}

// CreateCheckoutSession creates a Stripe Checkout Session for a credit
// package, lazily creating the Stripe customer mapping on first purchase.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, userID, email, packageID string) (*CheckoutResult, error) {
	pkg := s.billing.GetPackage(packageID)
	if pkg == nil {
		return nil, ErrUnknownPackage
	}

	cust, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(cust.StripeCustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.baseURL + "/credits?purchase=success"),
		CancelURL:  stripe.String(s.baseURL + "/credits?purchase=canceled"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(pkg.Currency),
					UnitAmount: stripe.Int64(pkg.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s credit package (%d credits)", pkg.Name, pkg.Credits)),
					},
				},
			},
		},
		// Copied onto the charge so refunds can be reconciled too.
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"user_id":    userID,
				"package_id": pkg.ID,
			},
		},
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("package_id", pkg.ID)
	params.AddMetadata("credits", strconv.Itoa(pkg.Credits))

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("checkout session created",
		"user_id", userID,
		"package_id", pkg.ID,
		"session_id", sess.ID,
	)
	return &CheckoutResult{SessionID: sess.ID, CheckoutURL: sess.URL}, nil
}

// ensureCustomer returns the user's Stripe customer mapping, creating the
// Stripe customer on first checkout.
func (s *PaymentService) ensureCustomer(ctx context.Context, userID, email string) (*models.PaymentCustomer, error) {
	existing, err := s.repos.PaymentCustomer.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment customer: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	custParams := &stripe.CustomerParams{Email: stripe.String(email)}
	custParams.AddMetadata("user_id", userID)
	created, err := customer.New(custParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe customer: %w", err)
	}

	encryptedEmail := ""
	if s.encryptor != nil {
		encryptedEmail, err = s.encryptor.Encrypt(email)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt customer email: %w", err)
		}
	}

	mapping := &models.PaymentCustomer{
		UserID:           userID,
		StripeCustomerID: created.ID,
		EmailEncrypted:   encryptedEmail,
	}
	if err := s.repos.PaymentCustomer.Create(ctx, mapping); err != nil {
		return nil, fmt.Errorf("failed to store payment customer: %w", err)
	}

	s.logger.Info("payment customer created", "user_id", userID, "stripe_customer_id", created.ID)
	return mapping, nil
}

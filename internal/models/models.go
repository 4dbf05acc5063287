// Package models defines the domain models for the application.
package models

import "time"

// ========================================
// Profiles
// ========================================

// Profile is a user's account record. Credits is the authoritative balance;
// it is only ever mutated through the credit repository's atomic operations.
type Profile struct {
	ID        string    `json:"id"` // auth provider user ID
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ========================================
// Credit Transactions
// ========================================

// CreditTransactionType defines the type of credit transaction.
type CreditTransactionType string

const (
	TxTypePurchase  CreditTransactionType = "purchase"  // Credit package purchase via Stripe
	TxTypeDeduction CreditTransactionType = "deduction" // Suggestion application charge
	TxTypeRefund    CreditTransactionType = "refund"    // Refund (does not claw back spent credits)
	TxTypeBonus     CreditTransactionType = "bonus"     // Welcome bonus or promotional grant
)

// CreditTransaction is an append-only ledger entry. Rows are never updated
// or deleted; BalanceAfter is the account balance immediately after Amount
// was applied.
type CreditTransaction struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Type         CreditTransactionType `json:"type"`
	Amount       int                   `json:"amount"` // Positive=credit, negative=debit
	BalanceAfter int                   `json:"balance_after"`
	Description  string                `json:"description"`

	// ReferenceID carries the external identifier the transaction settles
	// (Stripe session ID, suggestion application ID). (ReferenceID, Type)
	// is unique, which is what makes webhook redelivery safe.
	ReferenceID *string `json:"reference_id,omitempty"`

	MetadataJSON string    `json:"metadata,omitempty"` // Free-form JSON
	CreatedAt    time.Time `json:"created_at"`
}

// ========================================
// Payment Customers
// ========================================

// PaymentCustomer maps a user to their Stripe customer record. Created
// lazily on first checkout so repeat purchases reuse the same customer.
type PaymentCustomer struct {
	UserID           string    `json:"user_id"`
	StripeCustomerID string    `json:"stripe_customer_id"`
	EmailEncrypted   string    `json:"-"` // AES-GCM, base64
	CreatedAt        time.Time `json:"created_at"`
}

// ========================================
// Suggestions
// ========================================

// SuggestionCategory tags where a suggestion came from or what it changes.
type SuggestionCategory string

const (
	CategoryFurniture SuggestionCategory = "furniture"
	CategoryColor     SuggestionCategory = "color"
	CategoryLighting  SuggestionCategory = "lighting"
	CategoryLayout    SuggestionCategory = "layout"
	CategoryDecor     SuggestionCategory = "decor"
	CategoryCustom    SuggestionCategory = "custom" // user-authored
)

// Suggestion is a single redesign proposal, either produced by image
// analysis or authored by the user.
type Suggestion struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Explanation string             `json:"explanation,omitempty"`
	Category    SuggestionCategory `json:"category"`
}

// AppliedSuggestion records that a suggestion was applied for a user.
// Membership is idempotent: re-recording the same pair is a no-op.
type AppliedSuggestion struct {
	UserID        string    `json:"user_id"`
	SuggestionID  string    `json:"suggestion_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ResultURL     string    `json:"result_url,omitempty"`
	AppliedAt     time.Time `json:"applied_at"`
}

// ========================================
// Generation Jobs
// ========================================

// GenerationStatus is the lifecycle status of an image generation job.
// The job itself lives with the external provider; we only poll it.
type GenerationStatus string

const (
	GenerationStarting   GenerationStatus = "starting"
	GenerationProcessing GenerationStatus = "processing"
	GenerationSucceeded  GenerationStatus = "succeeded"
	GenerationFailed     GenerationStatus = "failed"
	GenerationCanceled   GenerationStatus = "canceled"
)

// IsTerminal reports whether no further status transition can occur.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationSucceeded || s == GenerationFailed || s == GenerationCanceled
}

// GenerationJob is the provider-side view of an asynchronous image
// generation, as returned by submission and polling.
type GenerationJob struct {
	ID        string           `json:"id"`
	Status    GenerationStatus `json:"status"`
	Input     GenerationInput  `json:"input"`
	Output    []string         `json:"output,omitempty"` // result image URLs, only when succeeded
	Error     string           `json:"error,omitempty"`  // provider detail, only when failed
	CreatedAt time.Time        `json:"created_at"`
}

// GenerationInput is the payload submitted to the image provider.
type GenerationInput struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

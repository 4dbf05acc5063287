package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/roomvibe/roomvibe-api/internal/models"
)

// SQLitePaymentCustomerRepository implements PaymentCustomerRepository for SQLite.
type SQLitePaymentCustomerRepository struct {
	db *sql.DB
}

// NewSQLitePaymentCustomerRepository creates a new SQLite payment customer repository.
func NewSQLitePaymentCustomerRepository(db *sql.DB) *SQLitePaymentCustomerRepository {
	return &SQLitePaymentCustomerRepository{db: db}
}

func (r *SQLitePaymentCustomerRepository) Get(ctx context.Context, userID string) (*models.PaymentCustomer, error) {
	query := `SELECT user_id, stripe_customer_id, email_encrypted, created_at FROM payment_customers WHERE user_id = ?`
	var c models.PaymentCustomer
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.UserID, &c.StripeCustomerID, &c.EmailEncrypted, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (r *SQLitePaymentCustomerRepository) Create(ctx context.Context, customer *models.PaymentCustomer) error {
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO payment_customers (user_id, stripe_customer_id, email_encrypted, created_at)
		VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, customer.UserID, customer.StripeCustomerID,
		customer.EmailEncrypted, customer.CreatedAt.Format(time.RFC3339))
	return err
}

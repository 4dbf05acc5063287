package migrations

func init() {
	Register(Migration{
		Version:     "20250901-101500",
		Description: "Payment customer mapping and applied suggestion result URLs",
		Statements: []string{
			// Maps users to Stripe customers so repeat checkouts reuse the
			// same customer record. Email is AES-GCM encrypted at rest.
			`CREATE TABLE IF NOT EXISTS payment_customers (
				user_id TEXT PRIMARY KEY,
				stripe_customer_id TEXT UNIQUE NOT NULL,
				email_encrypted TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,

			`ALTER TABLE applied_suggestions ADD COLUMN result_url TEXT`,
		},
	})
}

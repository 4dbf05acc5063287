package migrations

func init() {
	Register(Migration{
		Version:     "20250815-000000",
		Description: "Initial schema",
		Statements: []string{
			// Profiles - one row per user, credits is the authoritative balance.
			// id is the auth provider user ID (no FK since identity lives there).
			`CREATE TABLE IF NOT EXISTS profiles (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				full_name TEXT NOT NULL DEFAULT '',
				credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Credit transactions - append-only ledger.
			// (reference_id, type) is unique so a replayed webhook or a retried
			// deduction with the same reference can never double-apply.
			`CREATE TABLE IF NOT EXISTS credit_transactions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				type TEXT NOT NULL,
				amount INTEGER NOT NULL,
				balance_after INTEGER NOT NULL,
				description TEXT NOT NULL,
				reference_id TEXT,
				metadata TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transactions_reference
				ON credit_transactions(reference_id, type) WHERE reference_id IS NOT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id ON credit_transactions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_created_at ON credit_transactions(created_at)`,

			// Applied suggestions - idempotent set membership per (user, suggestion)
			`CREATE TABLE IF NOT EXISTS applied_suggestions (
				user_id TEXT NOT NULL,
				suggestion_id TEXT NOT NULL,
				transaction_id TEXT,
				applied_at TEXT NOT NULL,
				PRIMARY KEY (user_id, suggestion_id)
			)`,
		},
	})
}

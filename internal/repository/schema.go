package repository

import (
	"context"
	"log/slog"

	"github.com/finledger/invoice-recon/internal/common"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id         BIGINT PRIMARY KEY,
		user_id    UUID NOT NULL,
		company_id UUID,
		label      TEXT NOT NULL,
		amount     NUMERIC(14, 2) NOT NULL,
		tx_date    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_cache (
		id                UUID PRIMARY KEY,
		user_id           UUID NOT NULL,
		company_id        UUID,
		file_id           TEXT NOT NULL,
		file_name         TEXT NOT NULL,
		vendor            TEXT,
		invoice_number    TEXT,
		amount            NUMERIC(14, 2),
		tax_amount        NUMERIC(14, 2),
		tax_rate          NUMERIC(6, 3),
		invoice_date      TIMESTAMP,
		raw_text          TEXT NOT NULL DEFAULT '',
		extraction_method TEXT NOT NULL,
		transaction_id    BIGINT,
		confidence        DOUBLE PRECISION,
		scanned_at        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_cache_scope_file
		ON invoice_cache (user_id, company_id, file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_scope_date
		ON transactions (user_id, company_id, tx_date)`,
}

// EnsureSchema creates the tables when they do not exist yet. Production
// postgres deployments run migrations out of band; this keeps sqlite and
// test setups self-contained.
func EnsureSchema(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("failed to apply schema statement", "error", err)
			return common.NewAppError("DB_ERROR", "failed to ensure schema", err)
		}
	}
	return nil
}

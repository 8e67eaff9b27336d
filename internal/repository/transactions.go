package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/finledger/invoice-recon/internal/common"
	"github.com/finledger/invoice-recon/internal/entity"
)

// TransactionRepository serves bank transaction candidates to the matcher.
// Transactions are imported by a separate ingestion job; this side only
// reads them.
type TransactionRepository interface {
	QueryCandidates(ctx context.Context, scope entity.Scope, from, to time.Time, excludeLinked bool, excludeLabels []string) ([]entity.TransactionCandidate, error)
}

type transactionRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewTransactionRepository(db *DB, logger *slog.Logger) TransactionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &transactionRepository{db: db, logger: logger}
}

func (r *transactionRepository) QueryCandidates(ctx context.Context, scope entity.Scope, from, to time.Time, excludeLinked bool, excludeLabels []string) ([]entity.TransactionCandidate, error) {
	clause, args := scopeClause(scope)

	var b strings.Builder
	b.WriteString("SELECT id, label, amount, tx_date FROM transactions WHERE ")
	b.WriteString(clause)
	b.WriteString(" AND tx_date >= ? AND tx_date <= ?")
	args = append(args, from, to)

	if excludeLinked {
		b.WriteString(" AND id NOT IN (SELECT transaction_id FROM invoice_cache WHERE transaction_id IS NOT NULL)")
	}
	for _, label := range excludeLabels {
		b.WriteString(" AND UPPER(label) NOT LIKE ?")
		args = append(args, "%"+strings.ToUpper(label)+"%")
	}
	b.WriteString(" ORDER BY tx_date")

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(b.String()), args...)
	if err != nil {
		r.logger.Error("failed to query transaction candidates", "scope", scope.String(), "error", err)
		return nil, common.NewAppError("DB_ERROR", "failed to query transaction candidates", err)
	}
	defer rows.Close()

	var out []entity.TransactionCandidate
	for rows.Next() {
		var cand entity.TransactionCandidate
		if err := rows.Scan(&cand.ID, &cand.Label, &cand.Amount, &cand.Date); err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan transaction", err)
		}
		cand.Date = cand.Date.UTC()
		out = append(out, cand)
	}
	return out, rows.Err()
}

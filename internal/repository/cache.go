package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/common"
	"github.com/finledger/invoice-recon/internal/entity"
)

// InvoiceCacheRepository persists extraction results per (scope, file).
// A row's existence is what makes re-scans idempotent.
type InvoiceCacheRepository interface {
	Exists(ctx context.Context, scope entity.Scope, fileID string) (bool, error)
	Insert(ctx context.Context, rec *entity.CachedInvoiceRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CachedInvoiceRecord, error)
	ListByScope(ctx context.Context, scope entity.Scope) ([]*entity.CachedInvoiceRecord, error)
	DeleteByScope(ctx context.Context, scope entity.Scope) (int64, error)
	SetMatch(ctx context.Context, id uuid.UUID, txID int64, confidence float64) error
	ClearMatch(ctx context.Context, id uuid.UUID) error
}

type invoiceCacheRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewInvoiceCacheRepository(db *DB, logger *slog.Logger) InvoiceCacheRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &invoiceCacheRepository{db: db, logger: logger}
}

const cacheColumns = `id, user_id, company_id, file_id, file_name, vendor, invoice_number,
	amount, tax_amount, tax_rate, invoice_date, raw_text, extraction_method,
	transaction_id, confidence, scanned_at`

// scopeClause builds the WHERE fragment for a scope. A nil company id
// selects rows cached without a company, not all companies.
func scopeClause(scope entity.Scope) (string, []any) {
	if scope.CompanyID == nil {
		return "user_id = ? AND company_id IS NULL", []any{scope.UserID}
	}
	return "user_id = ? AND company_id = ?", []any{scope.UserID, *scope.CompanyID}
}

func (r *invoiceCacheRepository) Exists(ctx context.Context, scope entity.Scope, fileID string) (bool, error) {
	clause, args := scopeClause(scope)
	args = append(args, fileID)
	q := r.db.Rebind("SELECT 1 FROM invoice_cache WHERE " + clause + " AND file_id = ?")

	var one int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, common.NewAppError("DB_ERROR", "failed to check invoice cache", err)
	}
	return true, nil
}

func (r *invoiceCacheRepository) Insert(ctx context.Context, rec *entity.CachedInvoiceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now().UTC()
	}
	q := r.db.Rebind(`INSERT INTO invoice_cache (` + cacheColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, uuid.NullUUID{UUID: derefUUID(rec.CompanyID), Valid: rec.CompanyID != nil},
		rec.FileID, rec.FileName,
		nullString(rec.Vendor), nullString(rec.InvoiceNumber),
		nullDecimal(rec.Amount), nullDecimal(rec.TaxAmount), nullDecimal(rec.TaxRate),
		nullTime(rec.Date), rec.RawText, string(rec.Method),
		nullInt64(rec.TransactionID), nullFloat64(rec.Confidence), rec.ScannedAt,
	)
	if err != nil {
		r.logger.Error("failed to insert cached invoice", "file_id", rec.FileID, "error", err)
		return common.NewAppError("DB_ERROR", "failed to insert cached invoice", err)
	}
	return nil
}

func (r *invoiceCacheRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CachedInvoiceRecord, error) {
	q := r.db.Rebind("SELECT " + cacheColumns + " FROM invoice_cache WHERE id = ?")
	rec, err := scanCacheRow(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("cached invoice %s not found", id), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load cached invoice", err)
	}
	return rec, nil
}

func (r *invoiceCacheRepository) ListByScope(ctx context.Context, scope entity.Scope) ([]*entity.CachedInvoiceRecord, error) {
	clause, args := scopeClause(scope)
	q := r.db.Rebind("SELECT " + cacheColumns + " FROM invoice_cache WHERE " + clause + " ORDER BY scanned_at DESC")

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to list cached invoices", err)
	}
	defer rows.Close()

	var out []*entity.CachedInvoiceRecord
	for rows.Next() {
		rec, err := scanCacheRow(rows)
		if err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan cached invoice", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *invoiceCacheRepository) DeleteByScope(ctx context.Context, scope entity.Scope) (int64, error) {
	clause, args := scopeClause(scope)
	q := r.db.Rebind("DELETE FROM invoice_cache WHERE " + clause)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to purge invoice cache", err)
	}
	n, _ := res.RowsAffected()
	r.logger.Info("purged invoice cache", "scope", scope.String(), "rows", n)
	return n, nil
}

func (r *invoiceCacheRepository) SetMatch(ctx context.Context, id uuid.UUID, txID int64, confidence float64) error {
	q := r.db.Rebind("UPDATE invoice_cache SET transaction_id = ?, confidence = ? WHERE id = ?")
	return r.execOne(ctx, q, id, txID, confidence, id)
}

func (r *invoiceCacheRepository) ClearMatch(ctx context.Context, id uuid.UUID) error {
	q := r.db.Rebind("UPDATE invoice_cache SET transaction_id = NULL, confidence = NULL WHERE id = ?")
	return r.execOne(ctx, q, id, id)
}

func (r *invoiceCacheRepository) execOne(ctx context.Context, q string, id uuid.UUID, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return common.NewAppError("DB_ERROR", "failed to update cached invoice", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("cached invoice %s not found", id), common.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheRow(row rowScanner) (*entity.CachedInvoiceRecord, error) {
	var (
		rec       entity.CachedInvoiceRecord
		companyID uuid.NullUUID
		vendor    sql.NullString
		number    sql.NullString
		amount    decimal.NullDecimal
		taxAmount decimal.NullDecimal
		taxRate   decimal.NullDecimal
		date      sql.NullTime
		method    string
		txID      sql.NullInt64
		conf      sql.NullFloat64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &companyID, &rec.FileID, &rec.FileName,
		&vendor, &number, &amount, &taxAmount, &taxRate, &date,
		&rec.RawText, &method, &txID, &conf, &rec.ScannedAt)
	if err != nil {
		return nil, err
	}
	if companyID.Valid {
		rec.CompanyID = &companyID.UUID
	}
	if vendor.Valid {
		rec.Vendor = &vendor.String
	}
	if number.Valid {
		rec.InvoiceNumber = &number.String
	}
	if amount.Valid {
		rec.Amount = &amount.Decimal
	}
	if taxAmount.Valid {
		rec.TaxAmount = &taxAmount.Decimal
	}
	if taxRate.Valid {
		rec.TaxRate = &taxRate.Decimal
	}
	if date.Valid {
		d := date.Time.UTC()
		rec.Date = &d
	}
	rec.Method = constants.ExtractionMethod(method)
	if txID.Valid {
		rec.TransactionID = &txID.Int64
	}
	if conf.Valid {
		rec.Confidence = &conf.Float64
	}
	return &rec, nil
}

func derefUUID(p *uuid.UUID) uuid.UUID {
	if p == nil {
		return uuid.Nil
	}
	return *p
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullDecimal(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

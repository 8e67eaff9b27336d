package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finledger/invoice-recon/constants"
)

// RemoteFile is a read-only view of one document in the remote store.
type RemoteFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modified_time"`
}

// ExtractedInvoice is the output of the extraction pipeline for one file.
// Method is always set; every other field is optional. The pipeline never
// fails outright, it degrades.
type ExtractedInvoice struct {
	Vendor        *string                    `json:"vendor,omitempty"`
	Amount        *decimal.Decimal           `json:"amount,omitempty"`
	Date          *time.Time                 `json:"date,omitempty"`
	InvoiceNumber *string                    `json:"invoice_number,omitempty"`
	TaxAmount     *decimal.Decimal           `json:"tax_amount,omitempty"`
	TaxRate       *decimal.Decimal           `json:"tax_rate,omitempty"`
	RawText       string                     `json:"raw_text,omitempty"`
	Method        constants.ExtractionMethod `json:"extraction_method"`
}

// CachedInvoiceRecord is the persisted row for a remote file ever scanned,
// unique on (scope, file id).
type CachedInvoiceRecord struct {
	ID            uuid.UUID                  `json:"id"`
	UserID        uuid.UUID                  `json:"user_id"`
	CompanyID     *uuid.UUID                 `json:"company_id,omitempty"`
	FileID        string                     `json:"file_id"`
	FileName      string                     `json:"file_name"`
	Vendor        *string                    `json:"vendor,omitempty"`
	Amount        *decimal.Decimal           `json:"amount,omitempty"`
	Date          *time.Time                 `json:"date,omitempty"`
	InvoiceNumber *string                    `json:"invoice_number,omitempty"`
	TaxAmount     *decimal.Decimal           `json:"tax_amount,omitempty"`
	TaxRate       *decimal.Decimal           `json:"tax_rate,omitempty"`
	RawText       string                     `json:"raw_text,omitempty"`
	Method        constants.ExtractionMethod `json:"extraction_method"`
	TransactionID *int64                     `json:"transaction_id,omitempty"`
	Confidence    *float64                   `json:"confidence,omitempty"`
	ScannedAt     time.Time                  `json:"scanned_at"`
}

// TransactionCandidate is a read-only view of one recorded bank transaction
// eligible for matching.
type TransactionCandidate struct {
	ID     int64           `json:"id"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"` // signed: debits are negative
	Date   time.Time       `json:"date"`
}

// MatchDecision is the per-invoice outcome of the matching engine. It is
// folded into the cache record, never persisted on its own.
type MatchDecision struct {
	TransactionID *int64  `json:"transaction_id,omitempty"`
	Score         float64 `json:"score"`
}

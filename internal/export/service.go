package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/repository"
)

// Service is a tiny façade over the cache repository that produces XLSX
// bytes for exports.
type Service struct {
	cache  repository.InvoiceCacheRepository
	logger *slog.Logger
}

func NewService(cache repository.InvoiceCacheRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cache: cache, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) with every cached
// invoice of the scope, newest scan first.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, scope entity.Scope) ([]byte, error) {
	start := time.Now()

	recs, err := s.cache.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("query cached invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"File Name",
		"Vendor",
		"Invoice Date",
		"Amount",
		"Tax Amount",
		"Invoice Number",
		"Extraction Method",
		"Matched Transaction",
		"Confidence",
		"Scanned At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.FileName)
		if r.Vendor != nil {
			write(2, *r.Vendor)
		}
		if r.Date != nil {
			write(3, r.Date.Format("2006-01-02"))
		}
		if r.Amount != nil {
			write(4, r.Amount.StringFixed(2))
		}
		if r.TaxAmount != nil {
			write(5, r.TaxAmount.StringFixed(2))
		}
		if r.InvoiceNumber != nil {
			write(6, *r.InvoiceNumber)
		}
		write(7, string(r.Method))
		if r.TransactionID != nil {
			write(8, *r.TransactionID)
		}
		if r.Confidence != nil {
			write(9, fmt.Sprintf("%.2f", *r.Confidence))
		}
		write(10, r.ScannedAt.Format(time.RFC3339))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 40) // file name
	_ = f.SetColWidth(sheet, "B", "B", 28) // vendor
	_ = f.SetColWidth(sheet, "C", "C", 14) // date
	_ = f.SetColWidth(sheet, "D", "E", 12) // amounts
	_ = f.SetColWidth(sheet, "F", "F", 18) // number
	_ = f.SetColWidth(sheet, "G", "G", 18) // method
	_ = f.SetColWidth(sheet, "H", "J", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"scope", scope.String(),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

package parse

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDateFormats(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"slash numeric", "Date: 12/03/2026", date(2026, time.March, 12)},
		{"dot numeric", "Datum 05.11.2025 etc", date(2025, time.November, 5)},
		{"english month", "Issued January 5, 2026", date(2026, time.January, 5)},
		{"english month no comma", "Issued on March 3 2026", date(2026, time.March, 3)},
		{"french month", "Le 12 mars 2026", date(2026, time.March, 12)},
		{"french month with diacritics", "Paris, le 1er février 2026", date(2026, time.February, 1)},
		{"french december accented", "le 24 décembre 2025", date(2025, time.December, 24)},
		{"french august accented", "31 août 2025", date(2025, time.August, 31)},
		{"iso", "timestamp 2026-03-12 10:00", date(2026, time.March, 12)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.text)
			if f.Date == nil {
				t.Fatalf("Parse(%q): no date recovered", tt.text)
			}
			if !f.Date.Equal(tt.want) {
				t.Errorf("Parse(%q) date = %v, want %v", tt.text, f.Date, tt.want)
			}
		})
	}
}

func TestParseDateFirstFormatWins(t *testing.T) {
	// Numeric DD/MM/YYYY outranks the ISO date later in the text.
	f := Parse("12/03/2026 exported 2026-05-01")
	if f.Date == nil || !f.Date.Equal(date(2026, time.March, 12)) {
		t.Fatalf("date = %v, want 2026-03-12", f.Date)
	}
}

func TestParseDateRejectsImpossible(t *testing.T) {
	for _, text := range []string{"31/02/2026", "00/10/2026", "15/13/2026"} {
		if f := Parse(text); f.Date != nil {
			t.Errorf("Parse(%q) date = %v, want nil", text, f.Date)
		}
	}
}

func TestParseAmountLabelPriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"amount due beats total", "Total: 999.00\nAmount due: 123.45", "123.45"},
		{"total ttc french", "Sous-total: 100,00\nTotal TTC: 123,45 €", "123.45"},
		{"net payable", "net à payer : 56,70 €", "56.7"},
		{"generic total", "TOTAL 42.00", "42"},
		{"bare dollar", "paid $30.00 via card", "30"},
		{"bare eur suffix", "21.60 EUR charged", "21.6"},
		{"thousands french", "Total TTC : 1 234,56 €", "1234.56"},
		{"thousands english", "Amount due: 1,234.56", "1234.56"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.text)
			if f.Amount == nil {
				t.Fatalf("Parse(%q): no amount recovered", tt.text)
			}
			if want := mustDec(t, tt.want); !f.Amount.Equal(want) {
				t.Errorf("Parse(%q) amount = %s, want %s", tt.text, f.Amount, want)
			}
		})
	}
}

func TestParseAmountBounds(t *testing.T) {
	if f := Parse("Total: 0.00"); f.Amount != nil {
		t.Errorf("zero amount accepted: %s", f.Amount)
	}
	if f := Parse("Total: 1000000.00"); f.Amount != nil {
		t.Errorf("amount at 1,000,000 accepted: %s", f.Amount)
	}
	if f := Parse("Total: 999999.99"); f.Amount == nil {
		t.Error("amount just under the bound rejected")
	}
}

func TestParseTax(t *testing.T) {
	f := Parse("TVA (20%) : 24,69 €")
	if f.TaxAmount == nil || !f.TaxAmount.Equal(mustDec(t, "24.69")) {
		t.Fatalf("tax amount = %v, want 24.69", f.TaxAmount)
	}
	if f.TaxRate == nil || !f.TaxRate.Equal(mustDec(t, "20")) {
		t.Fatalf("tax rate = %v, want 20", f.TaxRate)
	}

	f = Parse("VAT: 12.00")
	if f.TaxAmount == nil || !f.TaxAmount.Equal(mustDec(t, "12")) {
		t.Fatalf("tax amount = %v, want 12", f.TaxAmount)
	}
	if f.TaxRate != nil {
		t.Errorf("tax rate = %v, want nil when no percentage given", f.TaxRate)
	}
}

func TestGuessVendor(t *testing.T) {
	text := strings.Join([]string{
		"FACTURE",          // deny list
		"Date: 12/03/2026", // deny list
		"12345",            // purely numeric
		"Acme Fournitures",
		"Total TTC: 123,45",
	}, "\n")
	f := Parse(text)
	if f.Vendor == nil || *f.Vendor != "Acme Fournitures" {
		t.Fatalf("vendor = %v, want Acme Fournitures", f.Vendor)
	}
}

func TestGuessVendorSkipsLongLines(t *testing.T) {
	long := strings.Repeat("x", 70)
	f := Parse(long + "\nShort Vendor Co\n")
	if f.Vendor == nil || *f.Vendor != "Short Vendor Co" {
		t.Fatalf("vendor = %v, want Short Vendor Co", f.Vendor)
	}
}

func TestGuessInvoiceNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Facture FA-20260312 du mois", "FA-20260312"},
		{"ref INV123456", "INV123456"},
		{"numero F2026001", "F2026001"},
		{"FACT#9001 attached", "FACT#9001"},
	}
	for _, tt := range tests {
		f := Parse(tt.text)
		if f.InvoiceNumber == nil || *f.InvoiceNumber != tt.want {
			t.Errorf("Parse(%q) invoice number = %v, want %s", tt.text, f.InvoiceNumber, tt.want)
		}
	}
}

func TestParseUnparsableTextReturnsEmpty(t *testing.T) {
	for _, text := range []string{"", "   \n\t", "%%%%%%%"} {
		if f := Parse(text); !f.Empty() {
			t.Errorf("Parse(%q) = %+v, want empty", text, f)
		}
	}
}

func TestEmbeddedAmount(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"AMAZON 21.60 EUR", "21.6"},
		{"PAYPAL $30.00 REF 1", "30"},
		{"ACME 123,45€", "123.45"},
	}
	for _, tt := range tests {
		got := EmbeddedAmount(tt.label)
		if got == nil {
			t.Errorf("EmbeddedAmount(%q) = nil, want %s", tt.label, tt.want)
			continue
		}
		if want := mustDec(t, tt.want); !got.Equal(want) {
			t.Errorf("EmbeddedAmount(%q) = %s, want %s", tt.label, got, want)
		}
	}
	if got := EmbeddedAmount("CARREFOUR PARIS"); got != nil {
		t.Errorf("EmbeddedAmount without amount = %s, want nil", got)
	}
}

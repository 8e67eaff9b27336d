package parse

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fields is the partial field set recovered from raw invoice text. Every
// field is independently optional; unparsable text yields the zero value.
type Fields struct {
	Vendor        *string
	Amount        *decimal.Decimal
	Date          *time.Time
	InvoiceNumber *string
	TaxAmount     *decimal.Decimal
	TaxRate       *decimal.Decimal
}

// Empty reports whether nothing at all was recovered.
func (f Fields) Empty() bool {
	return f.Vendor == nil && f.Amount == nil && f.Date == nil &&
		f.InvoiceNumber == nil && f.TaxAmount == nil && f.TaxRate == nil
}

// HasAmountOrDate reports whether the text yielded at least one of the two
// signals the matching engine can anchor on.
func (f Fields) HasAmountOrDate() bool {
	return f.Amount != nil || f.Date != nil
}

// numPat matches a money amount with optional thousands separators and an
// optional 1-2 digit decimal part, in both French and English notation.
const numPat = `(\d{1,3}(?:[ .]\d{3})+(?:,\d{1,2})?|\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

var (
	reNumericDate = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	reEnglishDate = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	reFrenchDate  = regexp.MustCompile(`\b(\d{1,2})(?:er)?\s+(janvier|fevrier|mars|avril|mai|juin|juillet|aout|septembre|octobre|novembre|decembre)\.?\s+(\d{4})\b`)
	reISODate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	// Amount labels, most semantically specific first.
	reAmountDue   = regexp.MustCompile(`\b(?:amount due|total (?:amount )?due|montant (?:du|total)|total ttc|total t\.t\.c\.?|total toutes taxes(?: comprises)?)\s*[:=]?\s*(?:eur|usd|gbp|[€$£])?\s*` + numPat)
	reNetPayable  = regexp.MustCompile(`\bnet (?:a payer|payable)\s*[:=]?\s*(?:eur|usd|gbp|[€$£])?\s*` + numPat)
	reTotal       = regexp.MustCompile(`\btotal\b\s*[:=]?\s*(?:eur|usd|gbp|[€$£])?\s*` + numPat)
	reBareAmount  = regexp.MustCompile(`(?:[€$£]\s*` + numPat + `|` + numPat + `\s*(?:[€$£]|\b(?:eur|usd|gbp|chf)\b))`)
	reLabelAmount = regexp.MustCompile(numPat + `\s*(?:[€$£]|\b(?:eur|usd|gbp|chf)\b)|(?:[€$£]|\b(?:eur|usd|gbp|chf)\b)\s*` + numPat)

	// Optional percentage plus a mandatory amount near a VAT/TVA token.
	reTax = regexp.MustCompile(`(?:\b(?:tva|vat)\b|\bt\.v\.a\.?)\s*(?:\(?\s*(\d{1,2}(?:[.,]\d{1,2})?)\s*%\s*\)?)?\s*[:=]?\s*(?:eur|usd|gbp|[€$£])?\s*` + numPat)

	reInvoiceNumber = regexp.MustCompile(`(?i)\b((?:FACT|INV|FA|F)[-#]?\d{3,})\b`)

	reDigitsOnly = regexp.MustCompile(`^[\d\s.,/:€$£%+-]*$`)
)

var englishMonths = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var frenchMonths = map[string]time.Month{
	"janvier": time.January, "fevrier": time.February, "mars": time.March,
	"avril": time.April, "mai": time.May, "juin": time.June,
	"juillet": time.July, "aout": time.August, "septembre": time.September,
	"octobre": time.October, "novembre": time.November, "decembre": time.December,
}

// vendorDenyList holds structural words that disqualify a line from being a
// vendor guess (matched as whole tokens on the folded line).
var vendorDenyList = map[string]struct{}{
	"invoice": {}, "facture": {}, "devis": {}, "recu": {}, "receipt": {},
	"date": {}, "total": {}, "amount": {}, "montant": {}, "tva": {}, "vat": {},
	"iban": {}, "bic": {}, "siret": {}, "siren": {}, "rcs": {},
	"page": {}, "reference": {}, "tel": {}, "fax": {}, "email": {},
	"www": {}, "http": {}, "https": {},
}

// maxAmount guards against OCR misreads producing astronomical numbers.
var maxAmount = decimal.NewFromInt(1_000_000)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics, so "Décembre" matches "decembre".
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Parse maps raw extracted text to a partial field set. Pure and
// deterministic; it never errors, returning empty Fields for text it cannot
// make sense of.
func Parse(raw string) Fields {
	var f Fields
	if strings.TrimSpace(raw) == "" {
		return f
	}
	folded := Fold(raw)

	f.Date = parseDate(folded)
	f.Amount = parseAmount(folded)
	f.TaxRate, f.TaxAmount = parseTax(folded)
	f.Vendor = guessVendor(raw)
	f.InvoiceNumber = guessInvoiceNumber(raw)
	return f
}

// EmbeddedAmount extracts an amount written in currency notation inside a
// transaction label, e.g. "AMAZON 21.60 EUR" or "PAYPAL $30.00".
func EmbeddedAmount(label string) *decimal.Decimal {
	m := reLabelAmount.FindStringSubmatch(Fold(label))
	if m == nil {
		return nil
	}
	tok := m[1]
	if tok == "" {
		tok = m[2]
	}
	return acceptAmount(tok)
}

func parseDate(folded string) *time.Time {
	if m := reNumericDate.FindStringSubmatch(folded); m != nil {
		if d := mkDate(m[3], m[2], m[1]); d != nil {
			return d
		}
	}
	if m := reEnglishDate.FindStringSubmatch(folded); m != nil {
		if d := mkMonthDate(m[3], englishMonths[m[1]], m[2]); d != nil {
			return d
		}
	}
	if m := reFrenchDate.FindStringSubmatch(folded); m != nil {
		if d := mkMonthDate(m[3], frenchMonths[m[2]], m[1]); d != nil {
			return d
		}
	}
	if m := reISODate.FindStringSubmatch(folded); m != nil {
		if d := mkDate(m[1], m[2], m[3]); d != nil {
			return d
		}
	}
	return nil
}

func parseAmount(folded string) *decimal.Decimal {
	for _, re := range []*regexp.Regexp{reAmountDue, reNetPayable, reTotal, reBareAmount} {
		for _, m := range re.FindAllStringSubmatch(folded, -1) {
			for _, tok := range m[1:] {
				if tok == "" {
					continue
				}
				if amt := acceptAmount(tok); amt != nil {
					return amt
				}
			}
		}
	}
	return nil
}

func parseTax(folded string) (rate, amount *decimal.Decimal) {
	m := reTax.FindStringSubmatch(folded)
	if m == nil {
		return nil, nil
	}
	if m[1] != "" {
		if r, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ".")); err == nil {
			rate = &r
		}
	}
	amount = acceptAmount(m[2])
	if amount == nil {
		return nil, nil
	}
	return rate, amount
}

func guessVendor(raw string) *string {
	seen := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 {
			continue
		}
		seen++
		if seen > 10 {
			break
		}
		if len(line) >= 60 || reDigitsOnly.MatchString(line) {
			continue
		}
		if containsDenyWord(Fold(line)) {
			continue
		}
		return &line
	}
	return nil
}

func containsDenyWord(folded string) bool {
	for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := vendorDenyList[tok]; ok {
			return true
		}
	}
	return false
}

func guessInvoiceNumber(raw string) *string {
	m := reInvoiceNumber.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	n := strings.ToUpper(m[1])
	return &n
}

// AmountToken normalizes a bare numeric token (French or English
// separators) and applies the same plausibility bound as Parse. Used by the
// filename heuristics, which see amounts without any label context.
func AmountToken(tok string) *decimal.Decimal {
	return acceptAmount(tok)
}

// ValidDate builds a UTC midnight date, rejecting out-of-range components.
func ValidDate(year int, month time.Month, day int) *time.Time {
	return validDate(year, month, day)
}

// acceptAmount normalizes a numeric token (French or English separators) and
// applies the 0 < amount < 1,000,000 plausibility bound.
func acceptAmount(tok string) *decimal.Decimal {
	n := normalizeNumber(tok)
	amt, err := decimal.NewFromString(n)
	if err != nil {
		return nil
	}
	if amt.Sign() <= 0 || amt.GreaterThanOrEqual(maxAmount) {
		return nil
	}
	return &amt
}

func normalizeNumber(tok string) string {
	tok = strings.ReplaceAll(tok, " ", "")
	hasComma := strings.Contains(tok, ",")
	hasDot := strings.Contains(tok, ".")
	switch {
	case hasComma && hasDot:
		// the later separator is the decimal one
		if strings.LastIndex(tok, ",") > strings.LastIndex(tok, ".") {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case hasComma:
		if i := strings.LastIndex(tok, ","); len(tok)-i-1 <= 2 && strings.Count(tok, ",") == 1 {
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case hasDot:
		if i := strings.LastIndex(tok, "."); len(tok)-i-1 == 3 {
			tok = strings.ReplaceAll(tok, ".", "")
		}
	}
	return tok
}

func mkDate(y, m, d string) *time.Time {
	year, month, day := atoi(y), atoi(m), atoi(d)
	return validDate(year, time.Month(month), day)
}

func mkMonthDate(y string, month time.Month, d string) *time.Time {
	return validDate(atoi(y), month, atoi(d))
}

func validDate(year int, month time.Month, day int) *time.Time {
	if year < 1990 || year > 2100 || month < time.January || month > time.December || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return nil // e.g. 31/02 normalized away by time.Date
	}
	return &t
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

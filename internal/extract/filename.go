package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/finledger/invoice-recon/internal/parse"
)

// Filename heuristics are the first extraction tier: cheap, always
// available, no network or OS dependency. They seed defaults that later
// tiers may override.

var (
	reFnameISO    = regexp.MustCompile(`(\d{4})[-_.](\d{1,2})[-_.](\d{1,2})`)
	reFnameDMY    = regexp.MustCompile(`(\d{1,2})[-_.](\d{1,2})[-_.](\d{4})`)
	reFnameAmount = regexp.MustCompile(`(\d{1,6}[.,]\d{2})(?:\D|$)`)
	reFnameNumber = regexp.MustCompile(`(?i)\b((?:FACT|INV|FA|F)[-#]?\d{3,})\b`)
	reFnameJunk   = regexp.MustCompile(`[\d_.,/\\#()\[\]-]+`)
)

// FilenameFields extracts a best-effort field set from a file name alone.
func FilenameFields(name string) parse.Fields {
	var f parse.Fields
	base := strings.TrimSuffix(name, filepath.Ext(name))

	f.Date = filenameDate(base)
	if m := reFnameAmount.FindStringSubmatch(base); m != nil {
		f.Amount = parse.AmountToken(m[1])
	}
	if m := reFnameNumber.FindStringSubmatch(base); m != nil {
		n := strings.ToUpper(m[1])
		f.InvoiceNumber = &n
	}
	if v := filenameVendor(base); v != "" {
		f.Vendor = &v
	}
	return f
}

func filenameDate(base string) *time.Time {
	if m := reFnameISO.FindStringSubmatch(base); m != nil {
		if d := parse.ValidDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])); d != nil {
			return d
		}
	}
	if m := reFnameDMY.FindStringSubmatch(base); m != nil {
		if d := parse.ValidDate(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1])); d != nil {
			return d
		}
	}
	return nil
}

// filenameVendor strips digits and separators, leaving whatever words the
// uploader put in the name.
func filenameVendor(base string) string {
	v := reFnameJunk.ReplaceAllString(base, " ")
	v = strings.Join(strings.Fields(v), " ")
	if len(v) < 3 || len(v) >= 60 {
		return ""
	}
	return v
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

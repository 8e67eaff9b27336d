package audit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/common"
	"github.com/finledger/invoice-recon/internal/entity"
)

const uuidPattern = `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`

// Decimal fields marshal as quoted numeric strings.
const decimalPattern = `^-?\d+(\.\d+)?$`

// BuildRecordSchema describes the shape every cache record must satisfy
// before it is written. Extraction degrades rather than fails, so most
// fields are optional; identity and provenance are not.
func BuildRecordSchema() map[string]any {
	props := map[string]any{
		"id":             map[string]any{"type": "string", "pattern": uuidPattern},
		"user_id":        map[string]any{"type": "string", "pattern": uuidPattern},
		"company_id":     map[string]any{"type": "string", "pattern": uuidPattern},
		"file_id":        map[string]any{"type": "string", "minLength": 1},
		"file_name":      map[string]any{"type": "string", "minLength": 1},
		"vendor":         map[string]any{"type": "string", "minLength": 1},
		"amount":         map[string]any{"type": "string", "pattern": decimalPattern},
		"tax_amount":     map[string]any{"type": "string", "pattern": decimalPattern},
		"tax_rate":       map[string]any{"type": "string", "pattern": decimalPattern},
		"date":           map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}T`},
		"invoice_number": map[string]any{"type": "string", "minLength": 1},
		"raw_text":       map[string]any{"type": "string"},
		"extraction_method": map[string]any{"type": "string", "enum": []any{
			string(constants.MethodFilename),
			string(constants.MethodTextLayer),
			string(constants.MethodLocalOCR),
			string(constants.MethodRemoteOCR),
		}},
		"transaction_id": map[string]any{"type": "integer"},
		"confidence":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"scanned_at":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}T`},
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             []any{"id", "user_id", "file_id", "file_name", "extraction_method", "scanned_at"},
		"additionalProperties": false,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateRecord rejects a malformed record before it reaches the cache.
func ValidateRecord(rec *entity.CachedInvoiceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return common.NewAppError("AUDIT_ERROR", "failed to encode record for audit", err)
	}
	if err := ValidateJSONAgainstSchema(BuildRecordSchema(), data); err != nil {
		return common.NewAppError("AUDIT_REJECTED", "record failed audit validation", err)
	}
	return nil
}

package validation

import (
	"math"
	"sort"
	"strings"

	"invoicedesk/backend/internal/domain"
)

// Field keys used in results.
const (
	FieldDocumentType = "documentType"
	FieldDate         = "date"
	FieldCustomerID   = "customerId"
	FieldName         = "name"
	FieldUnitPrice    = "unitPrice"
	FieldQuantity     = "quantity"
)

// FieldErrors maps a field key to a message.
type FieldErrors map[string]string

func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

func (f FieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

// Result is empty when the state is valid. Items is keyed by line item id and
// only holds lines that have at least one error.
type Result struct {
	Header FieldErrors            `json:"header"`
	Items  map[string]FieldErrors `json:"items"`
}

func (r Result) Empty() bool {
	if !r.Header.Empty() {
		return false
	}
	for _, fields := range r.Items {
		if !fields.Empty() {
			return false
		}
	}
	return true
}

// Error wraps a non-empty Result so it can travel through error returns.
type Error struct {
	Result Result
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Result.Header)+len(e.Result.Items))
	for field := range e.Result.Header {
		keys = append(keys, field)
	}
	for id, fields := range e.Result.Items {
		for field := range fields {
			keys = append(keys, "items["+id+"]."+field)
		}
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// Err returns nil for an empty result and an *Error otherwise.
func (r Result) Err() error {
	if r.Empty() {
		return nil
	}
	return &Error{Result: r}
}

func newResult() Result {
	return Result{Header: FieldErrors{}, Items: map[string]FieldErrors{}}
}

func (r Result) item(id string) FieldErrors {
	fields, ok := r.Items[id]
	if !ok {
		fields = FieldErrors{}
		r.Items[id] = fields
	}
	return fields
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateDraft applies the rules a draft must meet before it is saved.
func ValidateDraft(state domain.DraftState) Result {
	result := newResult()
	validateDraftRules(state, result)
	return result
}

// ValidateFinalize applies the draft rules plus the stricter rules for a
// finalized document.
func ValidateFinalize(state domain.DraftState) Result {
	result := newResult()

	// Finalize messages take precedence over the draft ones for shared keys.
	if strings.TrimSpace(state.CustomerID) == "" {
		result.Header.add(FieldCustomerID, "Customer is required")
	}
	for _, line := range state.LineItems {
		if strings.TrimSpace(line.Name) == "" {
			result.item(line.ID).add(FieldName, "Item name is required")
		}
		if !finite(line.Quantity) || line.Quantity < 1 {
			result.item(line.ID).add(FieldQuantity, "Quantity must be at least 1")
		}
	}

	validateDraftRules(state, result)
	return result
}

func validateDraftRules(state domain.DraftState, result Result) {
	if !state.DocumentType.Valid() {
		result.Header.add(FieldDocumentType, "Document type is required")
	}
	if strings.TrimSpace(state.Date) == "" {
		result.Header.add(FieldDate, "Date is required")
	}

	for _, line := range state.LineItems {
		if !finite(line.UnitPrice) || line.UnitPrice < 0 {
			result.item(line.ID).add(FieldUnitPrice, "Unit price must be a number ≥ 0")
		}
		if !finite(line.Quantity) || line.Quantity < 0 {
			result.item(line.ID).add(FieldQuantity, "Quantity must be a number ≥ 0")
		}
	}
}

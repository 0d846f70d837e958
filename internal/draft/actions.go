// Package draft is the state machine behind one document editing session.
//
// Every edit is an Action applied by the pure Reduce function. Editor wraps a
// current state, generates line item ids and derives totals on read.
package draft

import (
	"errors"

	"invoicedesk/backend/internal/domain"
)

var (
	ErrUnknownField      = errors.New("unknown draft field")
	ErrUnknownAction     = errors.New("unknown draft action")
	ErrDuplicateLineItem = errors.New("duplicate line item id")
	ErrMissingLineItemID = errors.New("line item id is required")
)

type Kind string

const (
	KindSetField         Kind = "SET_FIELD"
	KindAddLineItem      Kind = "ADD_LINE_ITEM"
	KindRemoveLineItem   Kind = "REMOVE_LINE_ITEM"
	KindUpdateLineItem   Kind = "UPDATE_LINE_ITEM"
	KindSetItemSelection Kind = "SET_ITEM_SELECTION"
	KindSetAll           Kind = "SET_ALL"
)

// Action is implemented only by the types in this file.
type Action interface {
	Kind() Kind
	sealed()
}

type Field string

const (
	FieldDocumentType   Field = "documentType"
	FieldDocumentNumber Field = "documentNumber"
	FieldDate           Field = "date"
	FieldCustomerID     Field = "customerId"
	FieldNotes          Field = "notes"
	FieldCurrency       Field = "currency"
)

type SetField struct {
	Field Field
	Value string
}

// AddLineItem appends an empty line. The id is chosen by the caller so the
// transition stays deterministic.
type AddLineItem struct {
	ID string
}

type RemoveLineItem struct {
	ID string
}

// LineItemChanges holds the fields to merge; nil means unchanged.
type LineItemChanges struct {
	Name          *string  `json:"name,omitempty"`
	Description   *string  `json:"description,omitempty"`
	CatalogItemID *string  `json:"catalogItemId,omitempty"`
	UnitPrice     *float64 `json:"unitPrice,omitempty"`
	Quantity      *float64 `json:"quantity,omitempty"`
}

type UpdateLineItem struct {
	ID      string
	Changes LineItemChanges
}

// SetItemSelection applies a catalog item to a line, or clears the catalog
// reference when Item is nil.
type SetItemSelection struct {
	ID   string
	Item *domain.CatalogItem
}

type SetAll struct {
	State domain.DraftState
}

func (SetField) Kind() Kind         { return KindSetField }
func (AddLineItem) Kind() Kind      { return KindAddLineItem }
func (RemoveLineItem) Kind() Kind   { return KindRemoveLineItem }
func (UpdateLineItem) Kind() Kind   { return KindUpdateLineItem }
func (SetItemSelection) Kind() Kind { return KindSetItemSelection }
func (SetAll) Kind() Kind           { return KindSetAll }

func (SetField) sealed()         {}
func (AddLineItem) sealed()      {}
func (RemoveLineItem) sealed()   {}
func (UpdateLineItem) sealed()   {}
func (SetItemSelection) sealed() {}
func (SetAll) sealed()           {}

package draft

import (
	"fmt"
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/money"
)

// NewLineItem is the blank line appended by AddLineItem.
func NewLineItem(id string) domain.LineItem {
	return domain.LineItem{ID: id, Quantity: 1}
}

// NewState builds the initial state of a fresh document: one blank line.
func NewState(docType domain.DocumentType, date string, currency string, newID func() string) domain.DraftState {
	return domain.DraftState{
		DocumentType: docType,
		Date:         date,
		Currency:     currency,
		LineItems:    []domain.LineItem{NewLineItem(newID())},
	}
}

// Reduce returns the state after applying action. The input state is never
// modified. Actions that name an unknown line item leave the state unchanged.
func Reduce(state domain.DraftState, action Action) (domain.DraftState, error) {
	next := state.Clone()

	switch a := action.(type) {
	case SetField:
		if err := setField(&next, a.Field, a.Value); err != nil {
			return state, err
		}
	case AddLineItem:
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return state, ErrMissingLineItemID
		}
		if indexOf(next.LineItems, id) >= 0 {
			return state, fmt.Errorf("%w: %s", ErrDuplicateLineItem, id)
		}
		next.LineItems = append(next.LineItems, NewLineItem(id))
	case RemoveLineItem:
		idx := indexOf(next.LineItems, a.ID)
		if idx < 0 {
			return next, nil
		}
		next.LineItems = append(next.LineItems[:idx], next.LineItems[idx+1:]...)
	case UpdateLineItem:
		idx := indexOf(next.LineItems, a.ID)
		if idx < 0 {
			return next, nil
		}
		next.LineItems[idx] = applyChanges(next.LineItems[idx], a.Changes)
	case SetItemSelection:
		idx := indexOf(next.LineItems, a.ID)
		if idx < 0 {
			return next, nil
		}
		next.LineItems[idx] = applySelection(next.LineItems[idx], a.Item)
	case SetAll:
		next = a.State.Clone()
	default:
		return state, fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}

	return next, nil
}

func setField(state *domain.DraftState, field Field, value string) error {
	switch field {
	case FieldDocumentType:
		state.DocumentType = domain.DocumentType(value)
	case FieldDocumentNumber:
		state.DocumentNumber = value
	case FieldDate:
		state.Date = value
	case FieldCustomerID:
		state.CustomerID = value
	case FieldNotes:
		state.Notes = value
	case FieldCurrency:
		state.Currency = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

func applyChanges(line domain.LineItem, changes LineItemChanges) domain.LineItem {
	if changes.Name != nil {
		line.Name = *changes.Name
	}
	if changes.Description != nil {
		line.Description = *changes.Description
	}
	if changes.CatalogItemID != nil {
		line.CatalogItemID = *changes.CatalogItemID
	}
	if changes.UnitPrice != nil {
		line.UnitPrice = *changes.UnitPrice
	}
	if changes.Quantity != nil {
		line.Quantity = *changes.Quantity
	}
	line.Amount = money.ComputeAmount(line.UnitPrice, line.Quantity)
	return line
}

func applySelection(line domain.LineItem, item *domain.CatalogItem) domain.LineItem {
	if item == nil {
		line.CatalogItemID = ""
		return line
	}
	line.CatalogItemID = item.ID
	line.Name = item.Name
	if item.Description != "" {
		line.Description = item.Description
	}
	line.UnitPrice = item.UnitPrice
	line.Amount = money.ComputeAmount(line.UnitPrice, line.Quantity)
	return line
}

func indexOf(items []domain.LineItem, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

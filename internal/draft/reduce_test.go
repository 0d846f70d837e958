package draft

import (
	"errors"
	"testing"

	"invoicedesk/backend/internal/domain"
)

func baseState() domain.DraftState {
	return domain.DraftState{
		DocumentType: domain.DocumentTypeInvoice,
		Date:         "2024-05-01",
		Currency:     "EUR",
		LineItems: []domain.LineItem{
			{ID: "l1", Name: "Design", UnitPrice: 10, Quantity: 3, Amount: 30},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func TestReduceSetField(t *testing.T) {
	next, err := Reduce(baseState(), SetField{Field: FieldCustomerID, Value: "cus_9"})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if next.CustomerID != "cus_9" {
		t.Fatalf("expected customer to be set, got %q", next.CustomerID)
	}

	next, err = Reduce(next, SetField{Field: FieldDocumentType, Value: "quotation"})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if next.DocumentType != domain.DocumentTypeQuotation {
		t.Fatalf("expected quotation, got %q", next.DocumentType)
	}
}

func TestReduceSetFieldRejectsUnknownField(t *testing.T) {
	state := baseState()
	next, err := Reduce(state, SetField{Field: "total", Value: "99"})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if next.Date != state.Date || len(next.LineItems) != 1 {
		t.Fatalf("state should be unchanged on error")
	}
}

func TestReduceAddLineItemAppendsBlankLine(t *testing.T) {
	next, err := Reduce(baseState(), AddLineItem{ID: "l2"})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if len(next.LineItems) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(next.LineItems))
	}
	added := next.LineItems[1]
	if added.ID != "l2" || added.Quantity != 1 || added.UnitPrice != 0 || added.Amount != 0 || added.Name != "" {
		t.Fatalf("unexpected blank line %+v", added)
	}
}

func TestReduceAddLineItemRejectsDuplicateAndEmptyIDs(t *testing.T) {
	if _, err := Reduce(baseState(), AddLineItem{ID: "l1"}); !errors.Is(err, ErrDuplicateLineItem) {
		t.Fatalf("expected ErrDuplicateLineItem, got %v", err)
	}
	if _, err := Reduce(baseState(), AddLineItem{ID: " "}); !errors.Is(err, ErrMissingLineItemID) {
		t.Fatalf("expected ErrMissingLineItemID, got %v", err)
	}
}

func TestReduceRemoveLineItem(t *testing.T) {
	state, _ := Reduce(baseState(), AddLineItem{ID: "l2"})
	next, err := Reduce(state, RemoveLineItem{ID: "l1"})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if len(next.LineItems) != 1 || next.LineItems[0].ID != "l2" {
		t.Fatalf("unexpected lines %+v", next.LineItems)
	}

	unchanged, err := Reduce(next, RemoveLineItem{ID: "missing"})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if len(unchanged.LineItems) != 1 {
		t.Fatalf("removing an unknown id should be a no-op")
	}
}

func TestReduceUpdateLineItemRecomputesAmountFromMergedValues(t *testing.T) {
	next, err := Reduce(baseState(), UpdateLineItem{ID: "l1", Changes: LineItemChanges{UnitPrice: ptr(4.0)}})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	line := next.LineItems[0]
	if line.Quantity != 3 || line.UnitPrice != 4 || line.Amount != 12 {
		t.Fatalf("expected amount 12 from price 4 x qty 3, got %+v", line)
	}

	next, err = Reduce(next, UpdateLineItem{ID: "l1", Changes: LineItemChanges{Quantity: ptr(-2.0), Name: ptr("Audit")}})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	line = next.LineItems[0]
	if line.Amount != 0 || line.Name != "Audit" || line.Quantity != -2 {
		t.Fatalf("negative quantity must clamp amount to 0, got %+v", line)
	}
}

func TestReduceSetItemSelectionAppliesCatalogItem(t *testing.T) {
	item := &domain.CatalogItem{ID: "cat_1", Name: "Hosting", Description: "Monthly hosting", UnitPrice: 12}
	next, err := Reduce(baseState(), SetItemSelection{ID: "l1", Item: item})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	line := next.LineItems[0]
	if line.CatalogItemID != "cat_1" || line.Name != "Hosting" || line.Description != "Monthly hosting" {
		t.Fatalf("catalog fields not applied: %+v", line)
	}
	if line.UnitPrice != 12 || line.Amount != 36 {
		t.Fatalf("expected price 12 and amount 36, got %+v", line)
	}
}

func TestReduceSetItemSelectionKeepsDescriptionWhenCatalogHasNone(t *testing.T) {
	state := baseState()
	state.LineItems[0].Description = "custom note"
	next, err := Reduce(state, SetItemSelection{ID: "l1", Item: &domain.CatalogItem{ID: "cat_2", Name: "Support", UnitPrice: 5}})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if next.LineItems[0].Description != "custom note" {
		t.Fatalf("expected existing description to survive, got %q", next.LineItems[0].Description)
	}
}

func TestReduceSetItemSelectionNilClearsReferenceOnly(t *testing.T) {
	state := baseState()
	state.LineItems[0].CatalogItemID = "cat_1"
	next, err := Reduce(state, SetItemSelection{ID: "l1", Item: nil})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	line := next.LineItems[0]
	if line.CatalogItemID != "" {
		t.Fatalf("expected catalog reference to be cleared")
	}
	if line.Name != "Design" || line.UnitPrice != 10 || line.Amount != 30 {
		t.Fatalf("other fields must be untouched, got %+v", line)
	}
}

func TestReduceSetAllReplacesState(t *testing.T) {
	replacement := domain.DraftState{
		DocumentType: domain.DocumentTypeQuotation,
		Date:         "2023-01-01",
		LineItems:    []domain.LineItem{{ID: "x", Quantity: 1}},
	}
	next, err := Reduce(baseState(), SetAll{State: replacement})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if next.DocumentType != domain.DocumentTypeQuotation || len(next.LineItems) != 1 || next.LineItems[0].ID != "x" {
		t.Fatalf("unexpected state %+v", next)
	}

	replacement.LineItems[0].Name = "mutated"
	if next.LineItems[0].Name != "" {
		t.Fatalf("SET_ALL must copy the incoming lines")
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	state := baseState()
	_, _ = Reduce(state, UpdateLineItem{ID: "l1", Changes: LineItemChanges{UnitPrice: ptr(99.0)}})
	_, _ = Reduce(state, RemoveLineItem{ID: "l1"})
	_, _ = Reduce(state, AddLineItem{ID: "l9"})

	if len(state.LineItems) != 1 || state.LineItems[0].UnitPrice != 10 || state.LineItems[0].Amount != 30 {
		t.Fatalf("input state was mutated: %+v", state.LineItems)
	}
}

type bogusAction struct{ SetField }

func TestReduceRejectsUnknownAction(t *testing.T) {
	_, err := Reduce(baseState(), bogusAction{})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestNewStateHasOneBlankLine(t *testing.T) {
	state := NewState(domain.DocumentTypeInvoice, "2024-01-01", "EUR", func() string { return "first" })
	if len(state.LineItems) != 1 || state.LineItems[0].ID != "first" || state.LineItems[0].Quantity != 1 {
		t.Fatalf("unexpected initial state %+v", state)
	}
}

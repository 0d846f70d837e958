package service

import (
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/draft"
	"invoicedesk/backend/internal/money"
)

// BuildDocumentPayload maps a draft to the record written to the store. Line
// ids are dropped, every number is made finite and each amount is derived from
// price and quantity. totals must come from the same derived amounts; see
// WithDerivedAmounts.
func BuildDocumentPayload(
	userID string,
	state domain.DraftState,
	status domain.DocumentStatus,
	documentNumber string,
	customer *domain.CustomerDetails,
	totals domain.Totals,
) domain.Document {
	items := make([]domain.DocumentItem, 0, len(state.LineItems))
	for _, line := range state.LineItems {
		items = append(items, domain.DocumentItem{
			CatalogItemID: line.CatalogItemID,
			Name:          strings.TrimSpace(line.Name),
			Description:   line.Description,
			UnitPrice:     money.Sanitize(line.UnitPrice),
			Quantity:      money.Sanitize(line.Quantity),
			Amount:        money.ComputeAmount(line.UnitPrice, line.Quantity),
		})
	}

	var details *domain.CustomerDetails
	if customer != nil {
		snapshot := *customer
		details = &snapshot
	}

	return domain.Document{
		UserID:          userID,
		DocumentType:    state.DocumentType,
		DocumentNumber:  documentNumber,
		Date:            state.Date,
		CustomerID:      state.CustomerID,
		CustomerDetails: details,
		Currency:        state.Currency,
		Notes:           state.Notes,
		Items:           items,
		Subtotal:        money.Sanitize(totals.Subtotal),
		Total:           money.Sanitize(totals.Total),
		Status:          status,
	}
}

// WithDerivedAmounts returns a copy of state whose line amounts are
// recomputed from price and quantity. Amounts sent by a client are never
// trusted.
func WithDerivedAmounts(state domain.DraftState) domain.DraftState {
	out := state.Clone()
	for i := range out.LineItems {
		out.LineItems[i].Amount = money.ComputeAmount(out.LineItems[i].UnitPrice, out.LineItems[i].Quantity)
	}
	return out
}

// DraftFromDocument loads a stored document back into an editable state with
// fresh line ids. Amounts are recomputed from price and quantity.
func DraftFromDocument(doc domain.Document, newID func() string) domain.DraftState {
	lines := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		lines = append(lines, domain.LineItem{
			ID:            newID(),
			CatalogItemID: item.CatalogItemID,
			Name:          item.Name,
			Description:   item.Description,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Amount:        money.ComputeAmount(item.UnitPrice, item.Quantity),
		})
	}
	if len(lines) == 0 {
		lines = append(lines, draft.NewLineItem(newID()))
	}

	return domain.DraftState{
		DocumentType:   doc.DocumentType,
		DocumentNumber: doc.DocumentNumber,
		Date:           doc.Date,
		CustomerID:     doc.CustomerID,
		Currency:       doc.Currency,
		Notes:          doc.Notes,
		LineItems:      lines,
	}
}

package service

import (
	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/draft"
	"invoicedesk/backend/internal/money"
	"invoicedesk/backend/internal/validation"
)

// ValidationMode selects the rule set for ValidateState.
type ValidationMode string

const (
	ModeDraft    ValidationMode = "draft"
	ModeFinalize ValidationMode = "finalize"
)

// ApplyAction is the stateless form of an edit session: it applies one action
// to a client-held state and returns the next state with its totals. A new line
// without an id gets one, and the last line cannot be removed.
func (s *Service) ApplyAction(state domain.DraftState, action draft.Action) (domain.DraftState, domain.Totals, error) {
	switch a := action.(type) {
	case draft.AddLineItem:
		if a.ID == "" {
			action = draft.AddLineItem{ID: s.newLineID()}
		}
	case draft.RemoveLineItem:
		if len(state.LineItems) <= 1 && hasLine(state, a.ID) {
			return domain.DraftState{}, domain.Totals{}, ErrLastLineItem
		}
	}

	next, err := draft.Reduce(state, action)
	if err != nil {
		return domain.DraftState{}, domain.Totals{}, err
	}
	next = WithDerivedAmounts(next)
	return next, money.ComputeTotals(next.LineItems), nil
}

func (s *Service) ValidateState(state domain.DraftState, mode ValidationMode) validation.Result {
	if mode == ModeFinalize {
		return validation.ValidateFinalize(state)
	}
	return validation.ValidateDraft(state)
}

func hasLine(state domain.DraftState, id string) bool {
	for _, item := range state.LineItems {
		if item.ID == id {
			return true
		}
	}
	return false
}

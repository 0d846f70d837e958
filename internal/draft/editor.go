package draft

import (
	"sync"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/money"
	"invoicedesk/backend/internal/xid"
)

// Editor owns the current state of one editing session.
type Editor struct {
	mu    sync.RWMutex
	state domain.DraftState
	newID func() string
}

func NewEditor(initial domain.DraftState, newID func() string) *Editor {
	if newID == nil {
		newID = xid.NewLineItemID
	}
	return &Editor{state: initial.Clone(), newID: newID}
}

// Dispatch applies the action. A failed action leaves the state unchanged.
func (e *Editor) Dispatch(action Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := Reduce(e.state, action)
	if err != nil {
		return err
	}
	e.state = next
	return nil
}

// DispatchIf runs guard against the current state and applies the action only
// when it returns nil. Both happen under one lock.
func (e *Editor) DispatchIf(guard func(domain.DraftState) error, action Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if guard != nil {
		if err := guard(e.state); err != nil {
			return err
		}
	}
	next, err := Reduce(e.state, action)
	if err != nil {
		return err
	}
	e.state = next
	return nil
}

// AddLineItem appends a blank line with a fresh id and returns the id.
func (e *Editor) AddLineItem() (string, error) {
	id := e.newID()
	if err := e.Dispatch(AddLineItem{ID: id}); err != nil {
		return "", err
	}
	return id, nil
}

func (e *Editor) State() domain.DraftState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Totals is recomputed from the current lines on every call.
func (e *Editor) Totals() domain.Totals {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return money.ComputeTotals(e.state.LineItems)
}

func (e *Editor) LineCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.state.LineItems)
}

func (e *Editor) HasLine(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return indexOf(e.state.LineItems, id) >= 0
}

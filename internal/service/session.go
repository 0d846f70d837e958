package service

import (
	"context"
	"sync"
	"sync/atomic"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/draft"
	"invoicedesk/backend/internal/validation"
)

// EditSession is one user editing one document. It guards the editor with the
// rules a bare reducer does not know about: finalized documents are read-only,
// the last line cannot be removed, and only one save or finalize may run at a
// time.
type EditSession struct {
	svc    *Service
	editor *draft.Editor

	mu     sync.RWMutex
	docID  string
	status domain.DocumentStatus

	busy   atomic.Bool
	closed atomic.Bool
}

// NewSession starts editing a new, unsaved document.
func (s *Service) NewSession(docType domain.DocumentType) (*EditSession, error) {
	state, err := s.NewDraft(docType)
	if err != nil {
		return nil, err
	}
	return s.sessionFor("", domain.StatusDraft, state), nil
}

// OpenSession starts editing a stored document.
func (s *Service) OpenSession(ctx context.Context, id string) (*EditSession, error) {
	state, doc, err := s.EditableDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sessionFor(doc.ID, doc.Status, state), nil
}

func (s *Service) sessionFor(id string, status domain.DocumentStatus, state domain.DraftState) *EditSession {
	return &EditSession{
		svc:    s,
		editor: draft.NewEditor(state, s.newLineID),
		docID:  id,
		status: status,
	}
}

func (e *EditSession) DocumentID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docID
}

func (e *EditSession) Status() domain.DocumentStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *EditSession) Locked() bool {
	return e.Status() == domain.StatusFinalized
}

func (e *EditSession) Busy() bool {
	return e.busy.Load()
}

func (e *EditSession) State() domain.DraftState {
	return e.editor.State()
}

func (e *EditSession) Totals() domain.Totals {
	return e.editor.Totals()
}

func (e *EditSession) ValidateDraft() validation.Result {
	return validation.ValidateDraft(e.editor.State())
}

func (e *EditSession) ValidateFinalize() validation.Result {
	return validation.ValidateFinalize(e.editor.State())
}

func (e *EditSession) guard() error {
	if e.closed.Load() {
		return ErrSessionClosed
	}
	if e.Locked() {
		return ErrDocumentLocked
	}
	return nil
}

func (e *EditSession) Dispatch(action draft.Action) error {
	if err := e.guard(); err != nil {
		return err
	}
	remove, ok := action.(draft.RemoveLineItem)
	if !ok {
		return e.editor.Dispatch(action)
	}
	return e.editor.DispatchIf(func(state domain.DraftState) error {
		if len(state.LineItems) <= 1 && hasLine(state, remove.ID) {
			return ErrLastLineItem
		}
		return nil
	}, action)
}

// AddLineItem appends a blank line and returns its id.
func (e *EditSession) AddLineItem() (string, error) {
	if err := e.guard(); err != nil {
		return "", err
	}
	return e.editor.AddLineItem()
}

func (e *EditSession) begin() error {
	if err := e.guard(); err != nil {
		return err
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrOperationInProgress
	}
	return nil
}

func (e *EditSession) end() {
	e.busy.Store(false)
}

// Save stores the current state as a draft and keeps editing the stored
// record.
func (e *EditSession) Save(ctx context.Context) (*domain.Document, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	doc, err := e.svc.SaveDraft(ctx, SaveRequest{ID: e.DocumentID(), State: e.editor.State()})
	if err != nil {
		return nil, err
	}
	e.apply(doc)
	return doc, nil
}

// Finalize stores the current state as finalized and locks the session. The
// session is locked even when only the PDF render failed.
func (e *EditSession) Finalize(ctx context.Context) (FinalizeResult, error) {
	if err := e.begin(); err != nil {
		return FinalizeResult{}, err
	}
	defer e.end()

	result, err := e.svc.Finalize(ctx, SaveRequest{ID: e.DocumentID(), State: e.editor.State()})
	if result.Document != nil {
		e.apply(result.Document)
	}
	return result, err
}

// Derive creates an invoice from this finalized quotation and returns a
// session editing the new invoice.
func (e *EditSession) Derive(ctx context.Context) (*EditSession, error) {
	if e.closed.Load() {
		return nil, ErrSessionClosed
	}
	state := e.editor.State()
	if !e.Locked() || state.DocumentType != domain.DocumentTypeQuotation {
		return nil, ErrInvalidDerivation
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrOperationInProgress
	}
	defer e.end()

	invoice, err := e.svc.DeriveInvoice(ctx, e.DocumentID(), &state)
	if invoice == nil {
		return nil, err
	}
	next := e.svc.sessionFor(invoice.ID, invoice.Status, DraftFromDocument(*invoice, e.svc.newLineID))
	return next, err
}

// Close ends the session. Operations still running finish in the store but
// no longer touch the session.
func (e *EditSession) Close() {
	e.closed.Store(true)
}

func (e *EditSession) apply(doc *domain.Document) {
	if e.closed.Load() {
		return
	}
	_ = e.editor.Dispatch(draft.SetField{Field: draft.FieldDocumentNumber, Value: doc.DocumentNumber})

	e.mu.Lock()
	e.docID = doc.ID
	e.status = doc.Status
	e.mu.Unlock()
}

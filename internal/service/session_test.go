package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/draft"
)

func fillSession(t *testing.T, session *EditSession, customerID string) string {
	t.Helper()
	lineID := session.State().LineItems[0].ID
	name := "Design"
	price := 2.0
	qty := 3.0
	if err := session.Dispatch(draft.UpdateLineItem{ID: lineID, Changes: draft.LineItemChanges{Name: &name, UnitPrice: &price, Quantity: &qty}}); err != nil {
		t.Fatalf("update line: %v", err)
	}
	if customerID != "" {
		if err := session.Dispatch(draft.SetField{Field: draft.FieldCustomerID, Value: customerID}); err != nil {
			t.Fatalf("set customer: %v", err)
		}
	}
	return lineID
}

func TestSessionStartsWithOneLineDatedToday(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})
	session, err := svc.NewSession(domain.DocumentTypeInvoice)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	state := session.State()
	if len(state.LineItems) != 1 || state.Date != "2024-05-20" || state.Currency != "EUR" {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if session.DocumentID() != "" || session.Locked() {
		t.Fatalf("new session should be unsaved and unlocked")
	}
}

func TestSessionRefusesToRemoveLastLine(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})
	session, _ := svc.NewSession(domain.DocumentTypeInvoice)
	only := session.State().LineItems[0].ID

	if err := session.Dispatch(draft.RemoveLineItem{ID: only}); !errors.Is(err, ErrLastLineItem) {
		t.Fatalf("expected ErrLastLineItem, got %v", err)
	}

	added, err := session.AddLineItem()
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if err := session.Dispatch(draft.RemoveLineItem{ID: only}); err != nil {
		t.Fatalf("remove with two lines: %v", err)
	}
	state := session.State()
	if len(state.LineItems) != 1 || state.LineItems[0].ID != added {
		t.Fatalf("unexpected lines %+v", state.LineItems)
	}
}

func TestSessionSaveTracksStoredDocument(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})
	ctx := userCtx("u1")
	session, _ := svc.NewSession(domain.DocumentTypeInvoice)
	fillSession(t, session, "")

	doc, err := session.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if session.DocumentID() != doc.ID || session.State().DocumentNumber != "INV-2024-001" {
		t.Fatalf("session did not pick up the stored document")
	}
	if session.Totals().Total != 6 || doc.Total != 6 {
		t.Fatalf("expected total 6, got session %v doc %v", session.Totals().Total, doc.Total)
	}

	again, err := session.Save(ctx)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if again.ID != doc.ID || again.DocumentNumber != doc.DocumentNumber {
		t.Fatalf("resave should update the same record")
	}
}

func TestSessionLocksAfterFinalize(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})
	ctx := userCtx("u1")
	customer := createCustomer(t, svc, ctx, "Acme")
	session, _ := svc.NewSession(domain.DocumentTypeInvoice)
	lineID := fillSession(t, session, customer.ID)

	result, err := session.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !session.Locked() || result.Document.Status != domain.StatusFinalized {
		t.Fatalf("expected locked session")
	}

	price := 99.0
	if err := session.Dispatch(draft.UpdateLineItem{ID: lineID, Changes: draft.LineItemChanges{UnitPrice: &price}}); !errors.Is(err, ErrDocumentLocked) {
		t.Fatalf("expected ErrDocumentLocked, got %v", err)
	}
	if _, err := session.AddLineItem(); !errors.Is(err, ErrDocumentLocked) {
		t.Fatalf("expected ErrDocumentLocked on add, got %v", err)
	}
	if _, err := session.Save(ctx); !errors.Is(err, ErrDocumentLocked) {
		t.Fatalf("expected ErrDocumentLocked on save, got %v", err)
	}
	if session.State().LineItems[0].UnitPrice != 2 {
		t.Fatalf("locked state changed")
	}
}

func TestSessionRejectsConcurrentOperations(t *testing.T) {
	renderer := &stubRenderer{block: make(chan struct{})}
	svc, _ := newTestService(t, renderer)
	ctx := userCtx("u1")
	customer := createCustomer(t, svc, ctx, "Acme")
	session, _ := svc.NewSession(domain.DocumentTypeInvoice)
	fillSession(t, session, customer.ID)

	done := make(chan error, 1)
	go func() {
		_, err := session.Finalize(ctx)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !session.Busy() {
		if time.Now().After(deadline) {
			t.Fatalf("finalize never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := session.Save(ctx); !errors.Is(err, ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}

	close(renderer.block)
	if err := <-done; err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if session.Busy() {
		t.Fatalf("busy flag not cleared")
	}
}

func TestSessionCloseDiscardsLateResults(t *testing.T) {
	renderer := &stubRenderer{block: make(chan struct{})}
	svc, repo := newTestService(t, renderer)
	ctx := userCtx("u1")
	customer := createCustomer(t, svc, ctx, "Acme")
	session, _ := svc.NewSession(domain.DocumentTypeInvoice)
	fillSession(t, session, customer.ID)

	done := make(chan FinalizeResult, 1)
	go func() {
		result, _ := session.Finalize(ctx)
		done <- result
	}()
	for !session.Busy() {
		time.Sleep(time.Millisecond)
	}

	session.Close()
	close(renderer.block)
	result := <-done

	if result.Document == nil {
		t.Fatalf("expected the store write to complete")
	}
	if session.DocumentID() != "" || session.Locked() {
		t.Fatalf("closed session must not be updated")
	}
	if _, err := repo.GetDocument(ctx, "u1", result.Document.ID); err != nil {
		t.Fatalf("document should be stored: %v", err)
	}
	if err := session.Dispatch(draft.SetField{Field: draft.FieldNotes, Value: "x"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionDeriveOpensInvoiceSession(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})
	ctx := userCtx("u1")
	customer := createCustomer(t, svc, ctx, "Acme")
	session, _ := svc.NewSession(domain.DocumentTypeQuotation)
	fillSession(t, session, customer.ID)

	if _, err := session.Derive(ctx); !errors.Is(err, ErrInvalidDerivation) {
		t.Fatalf("expected ErrInvalidDerivation before finalize, got %v", err)
	}
	if _, err := session.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	invoiceSession, err := session.Derive(ctx)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if invoiceSession.Locked() || invoiceSession.DocumentID() == "" {
		t.Fatalf("expected an editable stored invoice")
	}
	state := invoiceSession.State()
	if state.DocumentType != domain.DocumentTypeInvoice || state.DocumentNumber != "INV-2024-001" || state.CustomerID != customer.ID {
		t.Fatalf("unexpected invoice state %+v", state)
	}
	if invoiceSession.Totals().Total != 6 {
		t.Fatalf("expected copied totals, got %v", invoiceSession.Totals())
	}

	quotation, err := svc.GetDocument(ctx, session.DocumentID())
	if err != nil {
		t.Fatalf("get quotation: %v", err)
	}
	if len(quotation.RelatedInvoices) != 1 || quotation.RelatedInvoices[0] != invoiceSession.DocumentID() {
		t.Fatalf("quotation not linked: %v", quotation.RelatedInvoices)
	}
}

func TestOpenSessionLoadsStoredDocument(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})
	ctx := userCtx("u1")
	doc, err := svc.SaveDraft(ctx, SaveRequest{State: sampleState("")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	session, err := svc.OpenSession(ctx, doc.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	state := session.State()
	if session.DocumentID() != doc.ID || state.DocumentNumber != doc.DocumentNumber || state.LineItems[0].Amount != 6 {
		t.Fatalf("unexpected session state %+v", state)
	}
	if state.LineItems[0].ID == "" {
		t.Fatalf("expected a fresh line id")
	}

	if _, err := svc.OpenSession(context.Background(), doc.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSessionConcurrentRemovesKeepOneLine(t *testing.T) {
	svc, _ := newTestService(t, &stubRenderer{})

	for round := 0; round < 50; round++ {
		session, _ := svc.NewSession(domain.DocumentTypeInvoice)
		first := session.State().LineItems[0].ID
		second, err := session.AddLineItem()
		if err != nil {
			t.Fatalf("add line: %v", err)
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []string{first, second} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				errs[i] = session.Dispatch(draft.RemoveLineItem{ID: id})
			}(i, id)
		}
		wg.Wait()

		if n := len(session.State().LineItems); n != 1 {
			t.Fatalf("round %d: expected one line left, got %d", round, n)
		}
		refused := 0
		for _, err := range errs {
			if errors.Is(err, ErrLastLineItem) {
				refused++
			} else if err != nil {
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if refused != 1 {
			t.Fatalf("round %d: expected exactly one refusal, got %d", round, refused)
		}
	}
}

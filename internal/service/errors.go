package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when the context carries no user id.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrDocumentLocked is returned for any edit of a finalized document.
	ErrDocumentLocked = errors.New("document is finalized and can no longer be edited")

	// ErrLastLineItem is returned when removing the only line of a document.
	ErrLastLineItem = errors.New("a document needs at least one line item")

	// ErrInvalidDerivation is returned when an invoice is derived from anything
	// but a finalized quotation.
	ErrInvalidDerivation = errors.New("invoices can only be created from finalized quotations")

	// ErrOperationInProgress is returned when a save or finalize is already
	// running for the same session.
	ErrOperationInProgress = errors.New("another operation is in progress")

	// ErrSessionClosed is returned by a session after Close.
	ErrSessionClosed = errors.New("edit session is closed")
)

// PersistenceError wraps a failed store read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RenderError reports a PDF failure after the document was persisted. The
// stored document is unaffected and can be exported again.
type RenderError struct {
	DocumentID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: document %s: %v", e.DocumentID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func wrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pErr *PersistenceError
	if errors.As(err, &pErr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/draft"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/money"
	"invoicedesk/backend/internal/pdf"
	"invoicedesk/backend/internal/store"
	"invoicedesk/backend/internal/validation"
)

// SaveRequest carries the editor state and, for an existing document, its id.
type SaveRequest struct {
	ID    string            `json:"id,omitempty"`
	State domain.DraftState `json:"state"`
}

type FinalizeResult struct {
	Document *domain.Document `json:"document"`
	PDF      []byte           `json:"pdf,omitempty"`
	Filename string           `json:"filename,omitempty"`
}

type PDFExport struct {
	Filename string
	Content  []byte
}

// NewDraft returns the initial editor state for a new document dated today.
func (s *Service) NewDraft(docType domain.DocumentType) (domain.DraftState, error) {
	if !docType.Valid() {
		return domain.DraftState{}, fmt.Errorf("%w: unknown document type %q", store.ErrInvalidInput, docType)
	}
	return draft.NewState(docType, s.today(), s.defaultCurrency, s.newLineID), nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.GetDocument(ctx, uid, strings.TrimSpace(id))
	if err != nil {
		return nil, wrapPersistence("get_document", err)
	}
	return doc, nil
}

// EditableDraft loads a stored document as editor state.
func (s *Service) EditableDraft(ctx context.Context, id string) (domain.DraftState, *domain.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return domain.DraftState{}, nil, err
	}
	return DraftFromDocument(*doc, s.newLineID), doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	if filter.DocumentType != "" && !filter.DocumentType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", store.ErrInvalidInput, filter.DocumentType)
	}
	docs, err := s.repo.ListDocuments(ctx, uid, filter)
	if err != nil {
		return nil, wrapPersistence("list_documents", err)
	}
	return docs, nil
}

func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	uid, err := requireUID(ctx)
	if err != nil {
		return err
	}
	doc, err := s.repo.GetDocument(ctx, uid, id)
	if err != nil {
		return wrapPersistence("get_document", err)
	}
	if doc.IsFinalized() {
		return ErrDocumentLocked
	}
	if err := s.repo.DeleteDocument(ctx, uid, id); err != nil {
		return wrapPersistence("delete_document", err)
	}
	s.publish(ctx, uid, feed.CollectionDocuments, id, feed.OpDeleted)
	return nil
}

// SaveDraft validates the draft rules and writes the document as a draft.
// Nothing is written when validation fails.
func (s *Service) SaveDraft(ctx context.Context, req SaveRequest) (*domain.Document, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateDraft(req.State).Err(); err != nil {
		return nil, err
	}

	existing, err := s.loadEditable(ctx, uid, req.ID)
	if err != nil {
		return nil, err
	}
	number, err := s.resolveNumber(ctx, uid, req.State, existing)
	if err != nil {
		return nil, err
	}
	details, err := s.customerSnapshot(ctx, uid, req.State.CustomerID)
	if err != nil {
		return nil, err
	}

	state := WithDerivedAmounts(req.State)
	doc := BuildDocumentPayload(uid, state, domain.StatusDraft, number, details, money.ComputeTotals(state.LineItems))
	saved, err := s.persist(ctx, doc, existing)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", uid).Str("document_id", saved.ID).Str("number", saved.DocumentNumber).Msg("draft saved")
	return saved, nil
}

// Finalize validates the finalize rules, writes the document as finalized and
// renders its PDF from the stored record. When rendering fails the stored
// document is still returned, together with a *RenderError.
func (s *Service) Finalize(ctx context.Context, req SaveRequest) (FinalizeResult, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return FinalizeResult{}, err
	}
	if err := validation.ValidateFinalize(req.State).Err(); err != nil {
		return FinalizeResult{}, err
	}

	existing, err := s.loadEditable(ctx, uid, req.ID)
	if err != nil {
		return FinalizeResult{}, err
	}
	details, err := s.customerSnapshot(ctx, uid, req.State.CustomerID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if details == nil {
		return FinalizeResult{}, &validation.Error{Result: validation.Result{
			Header: validation.FieldErrors{validation.FieldCustomerID: "Customer not found"},
			Items:  map[string]validation.FieldErrors{},
		}}
	}
	number, err := s.resolveNumber(ctx, uid, req.State, existing)
	if err != nil {
		return FinalizeResult{}, err
	}

	state := WithDerivedAmounts(req.State)
	doc := BuildDocumentPayload(uid, state, domain.StatusFinalized, number, details, money.ComputeTotals(state.LineItems))
	finalizedAt := s.now()
	doc.FinalizedAt = &finalizedAt

	saved, err := s.persist(ctx, doc, existing)
	if err != nil {
		return FinalizeResult{}, err
	}
	s.log.Info().Str("user_id", uid).Str("document_id", saved.ID).Str("number", saved.DocumentNumber).Msg("document finalized")

	export, err := s.render(ctx, uid, *saved)
	if err != nil {
		return FinalizeResult{Document: saved}, err
	}
	return FinalizeResult{Document: saved, PDF: export.Content, Filename: export.Filename}, nil
}

// ExportPDF renders any stored document again.
func (s *Service) ExportPDF(ctx context.Context, id string) (PDFExport, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return PDFExport{}, err
	}
	doc, err := s.repo.GetDocument(ctx, uid, id)
	if err != nil {
		return PDFExport{}, wrapPersistence("get_document", err)
	}
	return s.render(ctx, uid, *doc)
}

// DeriveInvoice creates a draft invoice from a finalized quotation. view is
// the quotation as currently shown to the user; nil means the stored record.
// The new invoice id is then appended to the quotation's RelatedInvoices with
// a separate read and write.
func (s *Service) DeriveInvoice(ctx context.Context, quotationID string, view *domain.DraftState) (*domain.Document, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	quotation, err := s.repo.GetDocument(ctx, uid, quotationID)
	if err != nil {
		return nil, wrapPersistence("get_document", err)
	}
	if quotation.DocumentType != domain.DocumentTypeQuotation || !quotation.IsFinalized() {
		return nil, ErrInvalidDerivation
	}

	source := DraftFromDocument(*quotation, s.newLineID)
	if view != nil {
		source = WithDerivedAmounts(*view)
	}

	details := quotation.CustomerDetails
	if source.CustomerID != quotation.CustomerID {
		details, err = s.customerSnapshot(ctx, uid, source.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	date := s.today()
	number, err := s.numbers.AllocateNext(ctx, uid, domain.DocumentTypeInvoice, date)
	if err != nil {
		return nil, err
	}

	state := source.Clone()
	state.DocumentType = domain.DocumentTypeInvoice
	state.DocumentNumber = number
	state.Date = date

	doc := BuildDocumentPayload(uid, state, domain.StatusDraft, number, details, money.ComputeTotals(state.LineItems))
	doc.SourceDocumentID = quotation.ID
	doc.SourceDocumentType = domain.DocumentTypeQuotation

	created, err := s.repo.CreateDocument(ctx, doc)
	if err != nil {
		return nil, wrapPersistence("create_document", err)
	}
	s.publish(ctx, uid, feed.CollectionDocuments, created.ID, feed.OpCreated)

	if err := s.linkRelatedInvoice(ctx, uid, quotation.ID, created.ID); err != nil {
		s.log.Error().Err(err).Str("quotation_id", quotation.ID).Str("invoice_id", created.ID).Msg("failed to link derived invoice")
		return created, err
	}

	s.log.Info().Str("user_id", uid).Str("quotation_id", quotation.ID).Str("invoice_id", created.ID).Msg("invoice derived from quotation")
	return created, nil
}

// linkRelatedInvoice is not atomic: a concurrent derivation of the same
// quotation between the read and the write can lose one id.
func (s *Service) linkRelatedInvoice(ctx context.Context, uid string, quotationID string, invoiceID string) error {
	latest, err := s.repo.GetDocument(ctx, uid, quotationID)
	if err != nil {
		return wrapPersistence("link_related_invoice", err)
	}
	latest.RelatedInvoices = append(latest.RelatedInvoices, invoiceID)
	if _, err := s.repo.UpdateDocument(ctx, *latest); err != nil {
		return wrapPersistence("link_related_invoice", err)
	}
	s.publish(ctx, uid, feed.CollectionDocuments, quotationID, feed.OpUpdated)
	return nil
}

// loadEditable returns the stored document for id, nil for a new document, or
// ErrDocumentLocked when it is already finalized.
func (s *Service) loadEditable(ctx context.Context, uid string, id string) (*domain.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	existing, err := s.repo.GetDocument(ctx, uid, id)
	if err != nil {
		return nil, wrapPersistence("get_document", err)
	}
	if existing.IsFinalized() {
		return nil, ErrDocumentLocked
	}
	return existing, nil
}

// resolveNumber keeps a user-supplied number, reuses the stored one when the
// type is unchanged, and allocates otherwise.
func (s *Service) resolveNumber(ctx context.Context, uid string, state domain.DraftState, existing *domain.Document) (string, error) {
	if override := strings.TrimSpace(state.DocumentNumber); override != "" {
		return override, nil
	}
	if existing != nil && existing.DocumentNumber != "" && existing.DocumentType == state.DocumentType {
		return existing.DocumentNumber, nil
	}
	return s.numbers.Resolve(ctx, uid, state.DocumentType, state.Date, "")
}

// customerSnapshot freezes the customer's details at save time. A missing
// customer yields nil details.
func (s *Service) customerSnapshot(ctx context.Context, uid string, customerID string) (*domain.CustomerDetails, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	customer, err := s.repo.GetCustomer(ctx, uid, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPersistence("get_customer", err)
	}
	details := customer.Details()
	return &details, nil
}

func (s *Service) persist(ctx context.Context, doc domain.Document, existing *domain.Document) (*domain.Document, error) {
	if existing == nil {
		created, err := s.repo.CreateDocument(ctx, doc)
		if err != nil {
			return nil, wrapPersistence("create_document", err)
		}
		s.publish(ctx, doc.UserID, feed.CollectionDocuments, created.ID, feed.OpCreated)
		return created, nil
	}

	doc.ID = existing.ID
	doc.SourceDocumentID = existing.SourceDocumentID
	doc.SourceDocumentType = existing.SourceDocumentType
	doc.RelatedInvoices = existing.RelatedInvoices
	doc.CreatedAt = existing.CreatedAt
	updated, err := s.repo.UpdateDraftDocument(ctx, doc)
	if errors.Is(err, store.ErrFinalized) {
		return nil, ErrDocumentLocked
	}
	if err != nil {
		return nil, wrapPersistence("update_document", err)
	}
	s.publish(ctx, doc.UserID, feed.CollectionDocuments, updated.ID, feed.OpUpdated)
	return updated, nil
}

func (s *Service) render(ctx context.Context, uid string, doc domain.Document) (PDFExport, error) {
	data := pdf.DataFromDocument(doc)
	if doc.SourceDocumentID != "" {
		if source, err := s.repo.GetDocument(ctx, uid, doc.SourceDocumentID); err == nil {
			data.SourceNumber = source.DocumentNumber
		}
	}

	content, err := s.renderer.Render(ctx, data)
	if err != nil {
		s.log.Error().Err(err).Str("document_id", doc.ID).Msg("pdf render failed")
		return PDFExport{}, &RenderError{DocumentID: doc.ID, Err: err}
	}
	return PDFExport{
		Filename: pdf.Filename(doc.DocumentType, doc.DocumentNumber, doc.Date) + ".pdf",
		Content:  content,
	}, nil
}

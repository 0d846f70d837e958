package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/money"
	"invoicedesk/backend/internal/service"
)

type documentBody struct {
	ID    string            `json:"id,omitempty"`
	State domain.DraftState `json:"state"`
}

type deriveBody struct {
	State *domain.DraftState `json:"state,omitempty"`
}

func (a *API) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.DocumentFilter{
		DocumentType:     domain.DocumentType(strings.TrimSpace(query.Get("type"))),
		Status:           domain.DocumentStatus(strings.TrimSpace(query.Get("status"))),
		CustomerID:       strings.TrimSpace(query.Get("customer_id")),
		SourceDocumentID: strings.TrimSpace(query.Get("source_id")),
		Limit:            parsePositiveLimit(query.Get("limit"), 100, 500),
	}
	if filter.Status != "" && filter.Status != domain.StatusDraft && filter.Status != domain.StatusFinalized {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", filter.Status))
		return
	}

	docs, err := a.service.ListDocuments(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (a *API) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body documentBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := a.service.SaveDraft(r.Context(), service.SaveRequest{State: body.State})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": doc})
}

func (a *API) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.service.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (a *API) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	var body documentBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := a.service.SaveDraft(r.Context(), service.SaveRequest{ID: r.PathValue("id"), State: body.State})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (a *API) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFinalize serves both the new-document and the stored-document route.
// A PDF failure after the write still answers 200 with the stored document and
// a pdfError; the PDF can be fetched again from /pdf.
func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var body documentBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	id := body.ID
	if pathID := r.PathValue("id"); pathID != "" {
		id = pathID
	}

	result, err := a.service.Finalize(r.Context(), service.SaveRequest{ID: id, State: body.State})
	var renderErr *service.RenderError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"document": result.Document,
			"pdf":      result.PDF,
			"filename": result.Filename,
		})
	case errors.As(err, &renderErr) && result.Document != nil:
		a.log.Warn().Err(err).Str("document_id", result.Document.ID).Msg("finalized without pdf")
		writeJSON(w, http.StatusOK, map[string]any{
			"document": result.Document,
			"pdfError": "PDF generation failed; export the document again",
		})
	default:
		a.writeServiceError(w, err)
	}
}

func (a *API) handleDocumentPDF(w http.ResponseWriter, r *http.Request) {
	export, err := a.service.ExportPDF(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Content)
}

func (a *API) handleDeriveInvoice(w http.ResponseWriter, r *http.Request) {
	var body deriveBody
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	invoice, err := a.service.DeriveInvoice(r.Context(), r.PathValue("id"), body.State)
	if err != nil && invoice == nil {
		a.writeServiceError(w, err)
		return
	}
	resp := map[string]any{"document": invoice}
	if err != nil {
		resp["warning"] = "invoice created but the quotation could not be linked"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleDocumentDraft(w http.ResponseWriter, r *http.Request) {
	state, doc, err := a.service.EditableDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documentId": doc.ID,
		"state":      state,
		"totals":     money.ComputeTotals(state.LineItems),
		"locked":     doc.IsFinalized(),
	})
}

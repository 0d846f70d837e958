package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/draft"
	"invoicedesk/backend/internal/money"
	"invoicedesk/backend/internal/service"
)

type newDraftRequest struct {
	DocumentType domain.DocumentType `json:"documentType"`
}

type reduceRequest struct {
	State  domain.DraftState `json:"state"`
	Action draft.Envelope    `json:"action"`
}

type validateRequest struct {
	State domain.DraftState `json:"state"`
}

func (a *API) handleNewDraft(w http.ResponseWriter, r *http.Request) {
	var req newDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	state, err := a.service.NewDraft(req.DocumentType)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  state,
		"totals": money.ComputeTotals(state.LineItems),
	})
}

// handleReduceDraft applies one action to a client-held state. Nothing is
// stored.
func (a *API) handleReduceDraft(w http.ResponseWriter, r *http.Request) {
	var req reduceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	action, err := req.Action.Action()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	next, totals, err := a.service.ApplyAction(req.State, action)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  next,
		"totals": totals,
	})
}

func (a *API) handleValidateDraft(w http.ResponseWriter, r *http.Request) {
	mode := service.ValidationMode(strings.TrimSpace(r.URL.Query().Get("mode")))
	switch mode {
	case "":
		mode = service.ModeDraft
	case service.ModeDraft, service.ModeFinalize:
	default:
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown validation mode %q", mode))
		return
	}

	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	result := a.service.ValidateState(req.State, mode)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  result.Empty(),
		"result": result,
	})
}

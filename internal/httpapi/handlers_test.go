package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/numbering"
	"invoicedesk/backend/internal/pdf"
	"invoicedesk/backend/internal/service"
	"invoicedesk/backend/internal/store/memory"
)

const (
	testUsername = "alice"
	testPassword = "alice-pass-123"
)

type pdfStub struct {
	mu  sync.Mutex
	err error
}

func (p *pdfStub) Render(_ context.Context, data pdf.Data) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-stub " + data.DocumentNumber), nil
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	api, _ := newTestAPIWithRenderer(t, &pdfStub{})
	return api
}

func newTestAPIWithRenderer(t *testing.T, renderer pdf.Renderer) (*API, *memory.Store) {
	t.Helper()

	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		ID:       "usr_alice",
		Username: testUsername,
		Password: mustHashPassword(t, testPassword),
		Active:   true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	numbers := numbering.NewAllocator(repo, numbering.WithClock(fixedClock))
	svc := service.New(repo, numbers, renderer, service.WithClock(fixedClock), service.WithBroker(feed.NewMemoryBroker(8)))
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", zerolog.Nop()), repo
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// session holds the bearer and CSRF tokens of a logged-in test client.
type session struct {
	handler http.Handler
	token   string
	csrf    string
}

func newSession(t *testing.T, api *API) session {
	t.Helper()
	return session{
		handler: api.Handler(),
		token:   loginAs(t, api, testUsername, testPassword),
		csrf:    fetchCSRFToken(t, api),
	}
}

func (s session) do(t *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func invoiceState(customerID string) domain.DraftState {
	return domain.DraftState{
		DocumentType: domain.DocumentTypeInvoice,
		Date:         "2024-05-01",
		CustomerID:   customerID,
		Currency:     "EUR",
		LineItems: []domain.LineItem{
			{ID: "l1", Name: "Consulting", UnitPrice: 2.5, Quantity: 4, Amount: 10},
		},
	}
}

func createTestCustomer(t *testing.T, s session) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/customers", map[string]string{"name": "Acme", "email": "ap@acme.test"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Customer domain.Customer `json:"customer"`
	}
	decodeBody(t, rec, &body)
	return body.Customer.ID
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	token := loginAs(t, api, testUsername, testPassword)
	identity, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if identity.UID != "usr_alice" {
		t.Fatalf("expected token subject usr_alice, got %q", identity.UID)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": testUsername,
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleDocuments_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSaveDraftAllocatesNumber(t *testing.T) {
	s := newSession(t, newTestAPI(t))

	rec := s.do(t, http.MethodPost, "/api/v1/documents", map[string]any{"state": invoiceState("")})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Document domain.Document `json:"document"`
	}
	decodeBody(t, rec, &body)
	if body.Document.DocumentNumber != "INV-2024-001" {
		t.Fatalf("expected INV-2024-001, got %q", body.Document.DocumentNumber)
	}
	if body.Document.Total != 10 || body.Document.Status != domain.StatusDraft {
		t.Fatalf("unexpected document %+v", body.Document)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/documents?status=draft", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Documents []domain.Document `json:"documents"`
	}
	decodeBody(t, rec, &list)
	if len(list.Documents) != 1 || list.Documents[0].ID != body.Document.ID {
		t.Fatalf("expected saved document in list, got %+v", list.Documents)
	}
}

func TestSaveDraftValidationFailureReturns422(t *testing.T) {
	s := newSession(t, newTestAPI(t))
	state := invoiceState("")
	state.Date = ""

	rec := s.do(t, http.MethodPost, "/api/v1/documents", map[string]any{"state": state})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Error   string `json:"error"`
		Details struct {
			Header map[string]string `json:"header"`
		} `json:"details"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "validation_failed" || body.Details.Header["date"] == "" {
		t.Fatalf("expected date error, got %+v", body)
	}
}

func TestFinalizeReturnsPDFAndLocksDocument(t *testing.T) {
	s := newSession(t, newTestAPI(t))
	customerID := createTestCustomer(t, s)

	rec := s.do(t, http.MethodPost, "/api/v1/documents/finalize", map[string]any{"state": invoiceState(customerID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Document domain.Document `json:"document"`
		PDF      []byte          `json:"pdf"`
		Filename string          `json:"filename"`
	}
	decodeBody(t, rec, &body)
	if body.Document.Status != domain.StatusFinalized || body.Document.CustomerDetails == nil {
		t.Fatalf("unexpected document %+v", body.Document)
	}
	if string(body.PDF) != "%PDF-stub INV-2024-001" || body.Filename == "" {
		t.Fatalf("unexpected pdf %q (%s)", body.PDF, body.Filename)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/documents/"+body.Document.ID, map[string]any{"state": invoiceState(customerID)})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for finalized document, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/documents/"+body.Document.ID+"/pdf", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("expected pdf export, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestFinalizeRenderFailureStillReturnsDocument(t *testing.T) {
	api, _ := newTestAPIWithRenderer(t, &pdfStub{err: errors.New("font missing")})
	s := newSession(t, api)
	customerID := createTestCustomer(t, s)

	rec := s.do(t, http.MethodPost, "/api/v1/documents/finalize", map[string]any{"state": invoiceState(customerID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["pdfError"] == nil || body["document"] == nil {
		t.Fatalf("expected document and pdfError, got %v", body)
	}
}

func TestFinalizeWithoutCustomerReturns422(t *testing.T) {
	s := newSession(t, newTestAPI(t))

	rec := s.do(t, http.MethodPost, "/api/v1/documents/finalize", map[string]any{"state": invoiceState("")})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestGetUnknownDocumentReturns404(t *testing.T) {
	s := newSession(t, newTestAPI(t))

	rec := s.do(t, http.MethodGet, "/api/v1/documents/doc_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeriveInvoiceFromFinalizedQuotation(t *testing.T) {
	s := newSession(t, newTestAPI(t))
	customerID := createTestCustomer(t, s)
	quotation := invoiceState(customerID)
	quotation.DocumentType = domain.DocumentTypeQuotation

	rec := s.do(t, http.MethodPost, "/api/v1/documents/finalize", map[string]any{"state": quotation})
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize quotation: %d %s", rec.Code, rec.Body.String())
	}
	var finalized struct {
		Document domain.Document `json:"document"`
	}
	decodeBody(t, rec, &finalized)
	if finalized.Document.DocumentNumber != "QUO-2024-001" {
		t.Fatalf("expected QUO-2024-001, got %q", finalized.Document.DocumentNumber)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/documents/"+finalized.Document.ID+"/invoices", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var derived struct {
		Document domain.Document `json:"document"`
		Warning  string          `json:"warning"`
	}
	decodeBody(t, rec, &derived)
	if derived.Document.DocumentType != domain.DocumentTypeInvoice || derived.Document.SourceDocumentID != finalized.Document.ID {
		t.Fatalf("unexpected invoice %+v", derived.Document)
	}
	if derived.Document.DocumentNumber != "INV-2024-001" || derived.Warning != "" {
		t.Fatalf("unexpected number %q or warning %q", derived.Document.DocumentNumber, derived.Warning)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/documents/"+derived.Document.ID+"/invoices", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("deriving from an invoice should be 409, got %d", rec.Code)
	}
}

func TestReduceDraftAppliesActions(t *testing.T) {
	s := newSession(t, newTestAPI(t))

	rec := s.do(t, http.MethodPost, "/api/v1/drafts/new", map[string]string{"documentType": "quotation"})
	if rec.Code != http.StatusOK {
		t.Fatalf("new draft: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		State domain.DraftState `json:"state"`
	}
	decodeBody(t, rec, &created)
	if len(created.State.LineItems) != 1 || created.State.Date != "2024-05-20" {
		t.Fatalf("unexpected initial state %+v", created.State)
	}
	lineID := created.State.LineItems[0].ID

	rec = s.do(t, http.MethodPost, "/api/v1/drafts/reduce", map[string]any{
		"state":  created.State,
		"action": map[string]any{"type": "UPDATE_LINE_ITEM", "id": lineID, "changes": map[string]any{"unitPrice": 12.5, "quantity": 2}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reduce: %d %s", rec.Code, rec.Body.String())
	}
	var reduced struct {
		State  domain.DraftState `json:"state"`
		Totals domain.Totals     `json:"totals"`
	}
	decodeBody(t, rec, &reduced)
	if reduced.State.LineItems[0].Amount != 25 || reduced.Totals.Total != 25 {
		t.Fatalf("expected amount 25, got %+v / %+v", reduced.State.LineItems[0], reduced.Totals)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/drafts/reduce", map[string]any{
		"state":  reduced.State,
		"action": map[string]any{"type": "REMOVE_LINE_ITEM", "id": lineID},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("removing the last line should be 409, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/drafts/reduce", map[string]any{
		"state":  reduced.State,
		"action": map[string]any{"type": "EXPLODE"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action should be 400, got %d", rec.Code)
	}
}

func TestValidateDraftModes(t *testing.T) {
	s := newSession(t, newTestAPI(t))
	state := invoiceState("")
	state.LineItems[0].Name = ""

	rec := s.do(t, http.MethodPost, "/api/v1/drafts/validate?mode=draft", map[string]any{"state": state})
	var draftResult struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, rec, &draftResult)
	if rec.Code != http.StatusOK || !draftResult.Valid {
		t.Fatalf("expected valid draft, got %d %+v", rec.Code, draftResult)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/drafts/validate?mode=finalize", map[string]any{"state": state})
	var finalResult struct {
		Valid  bool `json:"valid"`
		Result struct {
			Header map[string]string            `json:"header"`
			Items  map[string]map[string]string `json:"items"`
		} `json:"result"`
	}
	decodeBody(t, rec, &finalResult)
	if finalResult.Valid || finalResult.Result.Header["customerId"] == "" || finalResult.Result.Items["l1"]["name"] == "" {
		t.Fatalf("expected customer and name errors, got %+v", finalResult)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/drafts/validate?mode=strict", map[string]any{"state": state})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode should be 400, got %d", rec.Code)
	}
}

func TestCustomerCRUD(t *testing.T) {
	s := newSession(t, newTestAPI(t))
	id := createTestCustomer(t, s)

	rec := s.do(t, http.MethodPatch, "/api/v1/customers/"+id, map[string]string{"phone": "+31 20 000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Customer domain.Customer `json:"customer"`
	}
	decodeBody(t, rec, &updated)
	if updated.Customer.Phone != "+31 20 000" || updated.Customer.Name != "Acme" {
		t.Fatalf("unexpected customer %+v", updated.Customer)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/customers/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/customers/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}

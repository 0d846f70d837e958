package domain

import (
	"encoding/json"
	"math"
	"time"
)

type DocumentType string

const (
	DocumentTypeInvoice   DocumentType = "invoice"
	DocumentTypeQuotation DocumentType = "quotation"
)

func (t DocumentType) Valid() bool {
	return t == DocumentTypeInvoice || t == DocumentTypeQuotation
}

type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusFinalized DocumentStatus = "finalized"
)

// LineItem is the editable form of a document line. Amount is always derived
// from UnitPrice and Quantity; NaN marks a missing or unparseable number.
type LineItem struct {
	ID            string  `json:"id"`
	CatalogItemID string  `json:"catalogItemId,omitempty"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	UnitPrice     float64 `json:"unitPrice"`
	Quantity      float64 `json:"quantity"`
	Amount        float64 `json:"amount"`
}

type lineItemJSON struct {
	ID            string   `json:"id"`
	CatalogItemID string   `json:"catalogItemId,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	UnitPrice     *float64 `json:"unitPrice"`
	Quantity      *float64 `json:"quantity"`
	Amount        *float64 `json:"amount"`
}

// MarshalJSON writes non-finite numbers as null.
func (l LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{
		ID:            l.ID,
		CatalogItemID: l.CatalogItemID,
		Name:          l.Name,
		Description:   l.Description,
		UnitPrice:     finiteOrNil(l.UnitPrice),
		Quantity:      finiteOrNil(l.Quantity),
		Amount:        finiteOrNil(l.Amount),
	})
}

// UnmarshalJSON reads a null or absent unitPrice or quantity as NaN.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	var raw lineItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = LineItem{
		ID:            raw.ID,
		CatalogItemID: raw.CatalogItemID,
		Name:          raw.Name,
		Description:   raw.Description,
		UnitPrice:     valueOrNaN(raw.UnitPrice),
		Quantity:      valueOrNaN(raw.Quantity),
	}
	if raw.Amount != nil {
		l.Amount = *raw.Amount
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// DraftState is the in-memory state of one editing session.
type DraftState struct {
	DocumentType   DocumentType `json:"documentType"`
	DocumentNumber string       `json:"documentNumber"`
	Date           string       `json:"date"`
	CustomerID     string       `json:"customerId"`
	Currency       string       `json:"currency"`
	Notes          string       `json:"notes"`
	LineItems      []LineItem   `json:"lineItems"`
}

// Clone returns a deep copy of the state.
func (s DraftState) Clone() DraftState {
	out := s
	if s.LineItems != nil {
		out.LineItems = make([]LineItem, len(s.LineItems))
		copy(out.LineItems, s.LineItems)
	}
	return out
}

type CustomerDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// DocumentItem is the persisted projection of a LineItem, without the
// editor-only id.
type DocumentItem struct {
	CatalogItemID string  `json:"catalogItemId,omitempty"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	UnitPrice     float64 `json:"unitPrice"`
	Quantity      float64 `json:"quantity"`
	Amount        float64 `json:"amount"`
}

type Document struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"userId"`
	DocumentType       DocumentType     `json:"documentType"`
	DocumentNumber     string           `json:"documentNumber"`
	Date               string           `json:"date"`
	CustomerID         string           `json:"customerId"`
	CustomerDetails    *CustomerDetails `json:"customerDetails,omitempty"`
	Currency           string           `json:"currency"`
	Notes              string           `json:"notes"`
	Items              []DocumentItem   `json:"items"`
	Subtotal           float64          `json:"subtotal"`
	Total              float64          `json:"total"`
	Status             DocumentStatus   `json:"status"`
	FinalizedAt        *time.Time       `json:"finalizedAt,omitempty"`
	SourceDocumentID   string           `json:"sourceDocumentId,omitempty"`
	SourceDocumentType DocumentType     `json:"sourceDocumentType,omitempty"`
	RelatedInvoices    []string         `json:"relatedInvoices,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

func (d Document) IsFinalized() bool {
	return d.Status == StatusFinalized
}

type DocumentFilter struct {
	DocumentType     DocumentType
	Status           DocumentStatus
	CustomerID       string
	SourceDocumentID string
	Limit            int
}

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Total    float64 `json:"total"`
}

// DocCounter holds the last issued sequence for one (user, type, year).
type DocCounter struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	DocumentType DocumentType `json:"documentType"`
	Year         int          `json:"year"`
	Seq          int64        `json:"seq"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c Customer) Details() CustomerDetails {
	return CustomerDetails{Name: c.Name, Email: c.Email, Address: c.Address}
}

type CustomerInput struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
}

type CatalogItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UnitPrice   float64   `json:"unitPrice"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CatalogItemInput struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	UnitPrice   *float64 `json:"unitPrice,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	ExpiresAt   string `json:"expiresAt"`
}

// Identity is the authenticated caller. UID scopes every owned record.
type Identity struct {
	UID      string
	Username string
}

type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Active    bool
	CreatedAt time.Time
}

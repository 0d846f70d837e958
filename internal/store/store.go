package store

import (
	"context"
	"errors"

	"invoicedesk/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict reports a lost race on a transactional write; the caller may retry.
	ErrConflict = errors.New("write conflict")
	// ErrFinalized reports a draft write that found the stored document finalized.
	ErrFinalized = errors.New("document is finalized")
)

// CounterFunc receives the current counter (zero value and found=false when
// absent) and returns the record to write back.
type CounterFunc func(current domain.DocCounter, found bool) (domain.DocCounter, error)

type CounterStore interface {
	// RunCounterTransaction reads the counter with the given id, applies fn and
	// writes the result atomically. A concurrent writer surfaces as ErrConflict.
	RunCounterTransaction(ctx context.Context, id string, fn CounterFunc) (domain.DocCounter, error)
}

type DocumentStore interface {
	ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]domain.Document, error)
	GetDocument(ctx context.Context, userID string, id string) (*domain.Document, error)
	CreateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error)
	UpdateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error)
	// UpdateDraftDocument writes doc only while the stored record is still a
	// draft; otherwise it returns ErrFinalized and leaves the record untouched.
	UpdateDraftDocument(ctx context.Context, doc domain.Document) (*domain.Document, error)
	DeleteDocument(ctx context.Context, userID string, id string) error
}

type CustomerStore interface {
	ListCustomers(ctx context.Context, userID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, userID string, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, userID string, id string) error
}

type CatalogStore interface {
	ListCatalogItems(ctx context.Context, userID string) ([]domain.CatalogItem, error)
	GetCatalogItem(ctx context.Context, userID string, id string) (*domain.CatalogItem, error)
	CreateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error)
	UpdateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error)
	DeleteCatalogItem(ctx context.Context, userID string, id string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	DocumentStore
	CustomerStore
	CatalogStore
	CounterStore
	UserStore
}

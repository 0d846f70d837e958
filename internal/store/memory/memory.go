package memory

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/store"
	"invoicedesk/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	documents       map[string]domain.Document
	customers       map[string]domain.Customer
	catalogItems    map[string]domain.CatalogItem
	counters        map[string]domain.DocCounter
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		documents:       make(map[string]domain.Document),
		customers:       make(map[string]domain.Customer),
		catalogItems:    make(map[string]domain.CatalogItem),
		counters:        make(map[string]domain.DocCounter),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store with a demo account for dev mode. The password
// comes from SEED_DEMO_PASSWORD; a dev default is used with a warning.
func NewSeeded() *Store {
	s := New()
	password := os.Getenv("SEED_DEMO_PASSWORD")
	if password == "" {
		password = "demo12345"
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials, set SEED_DEMO_PASSWORD to override")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash seed password")
	}
	s.usersByUsername["demo"] = domain.UserAccount{
		ID:        "usr_demo",
		Username:  "demo",
		Password:  string(hash),
		Active:    true,
		CreatedAt: s.now(),
	}
	return s
}

func cloneDocument(doc domain.Document) domain.Document {
	out := doc
	if doc.Items != nil {
		out.Items = append([]domain.DocumentItem(nil), doc.Items...)
	}
	if doc.RelatedInvoices != nil {
		out.RelatedInvoices = append([]string(nil), doc.RelatedInvoices...)
	}
	if doc.CustomerDetails != nil {
		details := *doc.CustomerDetails
		out.CustomerDetails = &details
	}
	if doc.FinalizedAt != nil {
		at := *doc.FinalizedAt
		out.FinalizedAt = &at
	}
	return out
}

func (s *Store) ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		if doc.UserID != userID {
			continue
		}
		if filter.DocumentType != "" && doc.DocumentType != filter.DocumentType {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && doc.CustomerID != filter.CustomerID {
			continue
		}
		if filter.SourceDocumentID != "" && doc.SourceDocumentID != filter.SourceDocumentID {
			continue
		}
		result = append(result, cloneDocument(doc))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetDocument(ctx context.Context, userID string, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok || doc.UserID != userID {
		return nil, store.ErrNotFound
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	if strings.TrimSpace(doc.UserID) == "" {
		return nil, store.ErrInvalidInput
	}
	if doc.ID == "" {
		doc.ID = xid.New("doc")
	}
	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.documents[doc.ID] = cloneDocument(doc)
	out := cloneDocument(doc)
	return &out, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	return s.updateDocument(doc, false)
}

func (s *Store) UpdateDraftDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	return s.updateDocument(doc, true)
}

func (s *Store) updateDocument(doc domain.Document, onlyDraft bool) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.documents[doc.ID]
	if !ok || existing.UserID != doc.UserID {
		return nil, store.ErrNotFound
	}
	if onlyDraft && existing.IsFinalized() {
		return nil, store.ErrFinalized
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = s.now()
	s.documents[doc.ID] = cloneDocument(doc)
	out := cloneDocument(doc)
	return &out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || doc.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *Store) ListCustomers(ctx context.Context, userID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func (s *Store) GetCustomer(ctx context.Context, userID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.UserID) == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	now := s.now()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok || existing.UserID != customer.UserID {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = s.now()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, userID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListCatalogItems(ctx context.Context, userID string) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CatalogItem, 0, len(s.catalogItems))
	for _, item := range s.catalogItems {
		if item.UserID == userID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func (s *Store) GetCatalogItem(ctx context.Context, userID string, id string) (*domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.catalogItems[id]
	if !ok || item.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) CreateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	if strings.TrimSpace(item.UserID) == "" || strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	now := s.now()
	item.CreatedAt = now
	item.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogItems[item.ID] = item
	return &item, nil
}

func (s *Store) UpdateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.catalogItems[item.ID]
	if !ok || existing.UserID != item.UserID {
		return nil, store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = s.now()
	s.catalogItems[item.ID] = item
	return &item, nil
}

func (s *Store) DeleteCatalogItem(ctx context.Context, userID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.catalogItems[id]
	if !ok || item.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.catalogItems, id)
	return nil
}

// RunCounterTransaction holds the write lock for the whole read-modify-write,
// so it never reports a conflict.
func (s *Store) RunCounterTransaction(ctx context.Context, id string, fn store.CounterFunc) (domain.DocCounter, error) {
	if err := ctx.Err(); err != nil {
		return domain.DocCounter{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.counters[id]
	next, err := fn(current, found)
	if err != nil {
		return domain.DocCounter{}, err
	}
	if next.Seq < current.Seq {
		return domain.DocCounter{}, store.ErrInvalidInput
	}
	next.ID = id
	s.counters[id] = next
	return next, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

var _ store.Repository = (*Store)(nil)

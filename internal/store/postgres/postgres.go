package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/store"
	"invoicedesk/backend/internal/xid"
)

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func New(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, log: log.With().Str("component", "postgres-store").Logger()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `
	id, user_id, document_type, document_number, date, customer_id, customer_details,
	currency, notes, items, subtotal, total, status, finalized_at,
	source_document_id, source_document_type, related_invoices, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc         domain.Document
		docType     string
		status      string
		detailsRaw  []byte
		itemsRaw    []byte
		relatedRaw  []byte
		finalizedAt sql.NullTime
		sourceID    sql.NullString
		sourceType  sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.UserID, &docType, &doc.DocumentNumber, &doc.Date, &doc.CustomerID, &detailsRaw,
		&doc.Currency, &doc.Notes, &itemsRaw, &doc.Subtotal, &doc.Total, &status, &finalizedAt,
		&sourceID, &sourceType, &relatedRaw, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}

	doc.DocumentType = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)
	doc.SourceDocumentID = sourceID.String
	doc.SourceDocumentType = domain.DocumentType(sourceType.String)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	if finalizedAt.Valid {
		at := finalizedAt.Time.UTC()
		doc.FinalizedAt = &at
	}
	if len(detailsRaw) > 0 && string(detailsRaw) != "null" {
		var details domain.CustomerDetails
		if err := json.Unmarshal(detailsRaw, &details); err != nil {
			return domain.Document{}, fmt.Errorf("decode customer details: %w", err)
		}
		doc.CustomerDetails = &details
	}
	doc.Items = []domain.DocumentItem{}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &doc.Items); err != nil {
			return domain.Document{}, fmt.Errorf("decode items: %w", err)
		}
	}
	if len(relatedRaw) > 0 {
		if err := json.Unmarshal(relatedRaw, &doc.RelatedInvoices); err != nil {
			return domain.Document{}, fmt.Errorf("decode related invoices: %w", err)
		}
		if len(doc.RelatedInvoices) == 0 {
			doc.RelatedInvoices = nil
		}
	}
	return doc, nil
}

type documentArgs struct {
	details []byte
	items   []byte
	related []byte
}

func encodeDocument(doc domain.Document) (documentArgs, error) {
	var args documentArgs
	var err error
	if doc.CustomerDetails != nil {
		if args.details, err = json.Marshal(doc.CustomerDetails); err != nil {
			return documentArgs{}, err
		}
	}
	items := doc.Items
	if items == nil {
		items = []domain.DocumentItem{}
	}
	if args.items, err = json.Marshal(items); err != nil {
		return documentArgs{}, err
	}
	related := doc.RelatedInvoices
	if related == nil {
		related = []string{}
	}
	if args.related, err = json.Marshal(related); err != nil {
		return documentArgs{}, err
	}
	return args, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]domain.Document, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{userID}
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.DocumentType != "" {
		add("document_type = $%d", string(filter.DocumentType))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.SourceDocumentID != "" {
		add("source_document_id = $%d", filter.SourceDocumentID)
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, 32)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) GetDocument(ctx context.Context, userID string, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	if strings.TrimSpace(doc.UserID) == "" {
		return nil, store.ErrInvalidInput
	}
	if doc.ID == "" {
		doc.ID = xid.New("doc")
	}
	encoded, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (
			id, user_id, document_type, document_number, date, customer_id, customer_details,
			currency, notes, items, subtotal, total, status, finalized_at,
			source_document_id, source_document_type, related_invoices, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
		RETURNING `+documentColumns,
		doc.ID, doc.UserID, string(doc.DocumentType), doc.DocumentNumber, doc.Date, doc.CustomerID, nullJSON(encoded.details),
		doc.Currency, doc.Notes, string(encoded.items), doc.Subtotal, doc.Total, string(doc.Status), nullTime(doc.FinalizedAt),
		nullIfEmpty(doc.SourceDocumentID), nullIfEmpty(string(doc.SourceDocumentType)), string(encoded.related),
	)
	created, err := scanDocument(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	return s.updateDocument(ctx, doc, false)
}

// UpdateDraftDocument guards the write with the status in the same statement,
// so a concurrent finalize cannot be overwritten.
func (s *Store) UpdateDraftDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	updated, err := s.updateDocument(ctx, doc, true)
	if !errors.Is(err, store.ErrNotFound) {
		return updated, err
	}
	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1 AND user_id = $2`, doc.ID, doc.UserID)
	if scanErr := row.Scan(&status); scanErr == nil && status == string(domain.StatusFinalized) {
		return nil, store.ErrFinalized
	}
	return nil, err
}

func (s *Store) updateDocument(ctx context.Context, doc domain.Document, onlyDraft bool) (*domain.Document, error) {
	encoded, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET document_type = $3, document_number = $4, date = $5, customer_id = $6, customer_details = $7,
			currency = $8, notes = $9, items = $10, subtotal = $11, total = $12, status = $13,
			finalized_at = $14, source_document_id = $15, source_document_type = $16,
			related_invoices = $17, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND (NOT $18 OR status <> 'finalized')
		RETURNING `+documentColumns,
		doc.ID, doc.UserID, string(doc.DocumentType), doc.DocumentNumber, doc.Date, doc.CustomerID, nullJSON(encoded.details),
		doc.Currency, doc.Notes, string(encoded.items), doc.Subtotal, doc.Total, string(doc.Status),
		nullTime(doc.FinalizedAt), nullIfEmpty(doc.SourceDocumentID), nullIfEmpty(string(doc.SourceDocumentType)),
		string(encoded.related), onlyDraft,
	)
	updated, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID string, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListCustomers(ctx context.Context, userID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, email, address, phone, created_at, updated_at
		FROM customers
		WHERE user_id = $1
		ORDER BY lower(name), id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Address, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Customer{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, userID string, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, address, phone, created_at, updated_at
		FROM customers
		WHERE id = $1 AND user_id = $2
	`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
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

	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, user_id, name, email, address, phone, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING id, user_id, name, email, address, phone, created_at, updated_at
	`, customer.ID, customer.UserID, customer.Name, customer.Email, customer.Address, customer.Phone))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $3, email = $4, address = $5, phone = $6, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, name, email, address, phone, created_at, updated_at
	`, customer.ID, customer.UserID, customer.Name, customer.Email, customer.Address, customer.Phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, userID string, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanCatalogItem(row rowScanner) (domain.CatalogItem, error) {
	var item domain.CatalogItem
	if err := row.Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.UnitPrice, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return domain.CatalogItem{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

func (s *Store) ListCatalogItems(ctx context.Context, userID string) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, unit_price, created_at, updated_at
		FROM catalog_items
		WHERE user_id = $1
		ORDER BY lower(name), id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0, 64)
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetCatalogItem(ctx context.Context, userID string, id string) (*domain.CatalogItem, error) {
	item, err := scanCatalogItem(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, unit_price, created_at, updated_at
		FROM catalog_items
		WHERE id = $1 AND user_id = $2
	`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	if strings.TrimSpace(item.UserID) == "" || strings.TrimSpace(item.Name) == "" || item.UnitPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}

	created, err := scanCatalogItem(s.db.QueryRowContext(ctx, `
		INSERT INTO catalog_items (id, user_id, name, description, unit_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING id, user_id, name, description, unit_price, created_at, updated_at
	`, item.ID, item.UserID, item.Name, item.Description, item.UnitPrice))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	if item.UnitPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanCatalogItem(s.db.QueryRowContext(ctx, `
		UPDATE catalog_items
		SET name = $3, description = $4, unit_price = $5, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, name, description, unit_price, created_at, updated_at
	`, item.ID, item.UserID, item.Name, item.Description, item.UnitPrice))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteCatalogItem(ctx context.Context, userID string, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// RunCounterTransaction runs the read-modify-write in a SERIALIZABLE
// transaction with the row locked. Serialization failures and racing inserts
// of a new counter surface as store.ErrConflict.
func (s *Store) RunCounterTransaction(ctx context.Context, id string, fn store.CounterFunc) (domain.DocCounter, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.DocCounter{}, conflictOr(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var (
		current domain.DocCounter
		docType string
		found   = true
	)
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, user_id, document_type, year, seq, updated_at
		FROM doc_counters
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current.ID, &current.UserID, &docType, &current.Year, &current.Seq, &current.UpdatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.DocCounter{}, conflictOr(err)
		}
		found = false
		current = domain.DocCounter{}
	}
	current.DocumentType = domain.DocumentType(docType)
	current.UpdatedAt = current.UpdatedAt.UTC()

	next, err := fn(current, found)
	if err != nil {
		return domain.DocCounter{}, err
	}
	if next.Seq < current.Seq {
		return domain.DocCounter{}, store.ErrInvalidInput
	}
	next.ID = id
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO doc_counters (id, user_id, document_type, year, seq, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id)
		DO UPDATE SET seq = EXCLUDED.seq, updated_at = EXCLUDED.updated_at
	`, next.ID, next.UserID, string(next.DocumentType), next.Year, next.Seq, next.UpdatedAt)
	if err != nil {
		return domain.DocCounter{}, conflictOr(err)
	}

	if err := pgTx.Commit(); err != nil {
		return domain.DocCounter{}, conflictOr(err)
	}
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
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.ID, user.Username, user.Password, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// 40001 serialization_failure, 40P01 deadlock_detected.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func conflictOr(err error) error {
	if isRetryable(err) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ store.Repository = (*Store)(nil)

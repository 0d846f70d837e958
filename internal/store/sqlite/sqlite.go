// Package sqlite is a single-file store for local installs, built on gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/store"
	"invoicedesk/backend/internal/xid"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
	log zerolog.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
// path may be a plain file name or a full "file:" DSN.
func Open(path string, log zerolog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", store.ErrInvalidInput)
	}

	s := &Store{
		now: func() time.Time { return time.Now().UTC() },
		log: log.With().Str("component", "sqlite-store").Logger(),
	}
	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return s.now() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection: SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&documentRecord{},
		&customerRecord{},
		&catalogItemRecord{},
		&counterRecord{},
		&userRecord{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	s.db = db
	s.log.Info().Str("path", path).Msg("sqlite store ready")
	return s, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_busy_timeout=5000&_foreign_keys=on"
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrInvalidInput
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
	}
	return err
}

func (s *Store) ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]domain.Document, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.DocumentType != "" {
		query = query.Where("document_type = ?", string(filter.DocumentType))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.SourceDocumentID != "" {
		query = query.Where("source_document_id = ?", filter.SourceDocumentID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []documentRecord
	if err := query.Order("created_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Document, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, userID string, id string) (*domain.Document, error) {
	var record documentRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&record).Error
	if err != nil {
		return nil, mapError(err)
	}
	doc := record.toDomain()
	return &doc, nil
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

	record := documentToRecord(doc)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, mapError(err)
	}
	out := record.toDomain()
	return &out, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	return s.updateDocument(ctx, doc, false)
}

func (s *Store) UpdateDraftDocument(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	return s.updateDocument(ctx, doc, true)
}

// updateDocument reads and writes in one transaction; with the single
// connection no other writer can finalize the record in between.
func (s *Store) updateDocument(ctx context.Context, doc domain.Document, onlyDraft bool) (*domain.Document, error) {
	var out domain.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing documentRecord
		if err := tx.Where("id = ? AND user_id = ?", doc.ID, doc.UserID).First(&existing).Error; err != nil {
			return err
		}
		if onlyDraft && domain.DocumentStatus(existing.Status) == domain.StatusFinalized {
			return store.ErrFinalized
		}
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = s.now()
		record := documentToRecord(doc)
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID string, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&documentRecord{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context, userID string) ([]domain.Customer, error) {
	var records []customerRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("lower(name) ASC").Find(&records).Error
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Customer, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetCustomer(ctx context.Context, userID string, id string) (*domain.Customer, error) {
	var record customerRecord
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&record).Error; err != nil {
		return nil, mapError(err)
	}
	c := record.toDomain()
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

	record := customerToRecord(customer)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, mapError(err)
	}
	out := record.toDomain()
	return &out, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	result := s.db.WithContext(ctx).Model(&customerRecord{}).
		Where("id = ? AND user_id = ?", customer.ID, customer.UserID).
		Updates(map[string]any{
			"name":       customer.Name,
			"email":      customer.Email,
			"address":    customer.Address,
			"phone":      customer.Phone,
			"updated_at": s.now(),
		})
	if result.Error != nil {
		return nil, mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomer(ctx, customer.UserID, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, userID string, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&customerRecord{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCatalogItems(ctx context.Context, userID string) ([]domain.CatalogItem, error) {
	var records []catalogItemRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("lower(name) ASC").Find(&records).Error
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.CatalogItem, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetCatalogItem(ctx context.Context, userID string, id string) (*domain.CatalogItem, error) {
	var record catalogItemRecord
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&record).Error; err != nil {
		return nil, mapError(err)
	}
	item := record.toDomain()
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

	record := catalogItemToRecord(item)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, mapError(err)
	}
	out := record.toDomain()
	return &out, nil
}

func (s *Store) UpdateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	result := s.db.WithContext(ctx).Model(&catalogItemRecord{}).
		Where("id = ? AND user_id = ?", item.ID, item.UserID).
		Updates(map[string]any{
			"name":        item.Name,
			"description": item.Description,
			"unit_price":  item.UnitPrice,
			"updated_at":  s.now(),
		})
	if result.Error != nil {
		return nil, mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCatalogItem(ctx, item.UserID, item.ID)
}

func (s *Store) DeleteCatalogItem(ctx context.Context, userID string, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&catalogItemRecord{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RunCounterTransaction(ctx context.Context, id string, fn store.CounterFunc) (domain.DocCounter, error) {
	var out domain.DocCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record counterRecord
		found := true
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			found = false
		}

		current := record.toDomain()
		if !found {
			current = domain.DocCounter{}
		}
		next, err := fn(current, found)
		if err != nil {
			return err
		}
		if next.Seq < current.Seq {
			return store.ErrInvalidInput
		}

		write := counterRecord{
			ID:           id,
			UserID:       next.UserID,
			DocumentType: string(next.DocumentType),
			Year:         next.Year,
			Seq:          next.Seq,
			UpdatedAt:    next.UpdatedAt,
		}
		if err := tx.Save(&write).Error; err != nil {
			return err
		}
		out = write.toDomain()
		return nil
	})
	if err != nil {
		return domain.DocCounter{}, mapError(err)
	}
	return out, nil
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
	record := userRecord{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.Password,
		Active:       user.Active,
		CreatedAt:    user.CreatedAt,
	}
	// Select("*") writes Active=false instead of the column default.
	return mapError(s.db.WithContext(ctx).Select("*").Create(&record).Error)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var records []userRecord
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&records).Error; err != nil {
		return nil, mapError(err)
	}
	users := make([]domain.UserAccount, 0, len(records))
	for _, r := range records {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	result := s.db.WithContext(ctx).Model(&userRecord{}).Where("username = ?", username).Update("password_hash", password)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.Repository = (*Store)(nil)

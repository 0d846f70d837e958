package sqlite

import (
	"time"

	"gorm.io/datatypes"

	"invoicedesk/backend/internal/domain"
)

type documentRecord struct {
	ID                 string `gorm:"primaryKey"`
	UserID             string `gorm:"not null;index:idx_documents_user_created,priority:1"`
	DocumentType       string `gorm:"not null"`
	DocumentNumber     string `gorm:"not null;default:''"`
	Date               string `gorm:"not null"`
	CustomerID         string `gorm:"not null;default:''"`
	CustomerDetails    datatypes.JSONType[*domain.CustomerDetails]
	Currency           string `gorm:"not null"`
	Notes              string `gorm:"not null;default:''"`
	Items              datatypes.JSONType[[]domain.DocumentItem]
	Subtotal           float64
	Total              float64
	Status             string `gorm:"not null"`
	FinalizedAt        *time.Time
	SourceDocumentID   string `gorm:"not null;default:'';index"`
	SourceDocumentType string `gorm:"not null;default:''"`
	RelatedInvoices    datatypes.JSONType[[]string]
	CreatedAt          time.Time `gorm:"index:idx_documents_user_created,priority:2"`
	UpdatedAt          time.Time
}

func (documentRecord) TableName() string { return "documents" }

func documentToRecord(doc domain.Document) documentRecord {
	return documentRecord{
		ID:                 doc.ID,
		UserID:             doc.UserID,
		DocumentType:       string(doc.DocumentType),
		DocumentNumber:     doc.DocumentNumber,
		Date:               doc.Date,
		CustomerID:         doc.CustomerID,
		CustomerDetails:    datatypes.NewJSONType(doc.CustomerDetails),
		Currency:           doc.Currency,
		Notes:              doc.Notes,
		Items:              datatypes.NewJSONType(doc.Items),
		Subtotal:           doc.Subtotal,
		Total:              doc.Total,
		Status:             string(doc.Status),
		FinalizedAt:        doc.FinalizedAt,
		SourceDocumentID:   doc.SourceDocumentID,
		SourceDocumentType: string(doc.SourceDocumentType),
		RelatedInvoices:    datatypes.NewJSONType(doc.RelatedInvoices),
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

func (r documentRecord) toDomain() domain.Document {
	items := r.Items.Data()
	if items == nil {
		items = []domain.DocumentItem{}
	}
	return domain.Document{
		ID:                 r.ID,
		UserID:             r.UserID,
		DocumentType:       domain.DocumentType(r.DocumentType),
		DocumentNumber:     r.DocumentNumber,
		Date:               r.Date,
		CustomerID:         r.CustomerID,
		CustomerDetails:    r.CustomerDetails.Data(),
		Currency:           r.Currency,
		Notes:              r.Notes,
		Items:              items,
		Subtotal:           r.Subtotal,
		Total:              r.Total,
		Status:             domain.DocumentStatus(r.Status),
		FinalizedAt:        r.FinalizedAt,
		SourceDocumentID:   r.SourceDocumentID,
		SourceDocumentType: domain.DocumentType(r.SourceDocumentType),
		RelatedInvoices:    r.RelatedInvoices.Data(),
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

type customerRecord struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"not null;default:''"`
	Address   string `gorm:"not null;default:''"`
	Phone     string `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (customerRecord) TableName() string { return "customers" }

func customerToRecord(c domain.Customer) customerRecord {
	return customerRecord{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Email:     c.Email,
		Address:   c.Address,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (r customerRecord) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Email:     r.Email,
		Address:   r.Address,
		Phone:     r.Phone,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type catalogItemRecord struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string `gorm:"not null;default:''"`
	UnitPrice   float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (catalogItemRecord) TableName() string { return "catalog_items" }

func catalogItemToRecord(item domain.CatalogItem) catalogItemRecord {
	return catalogItemRecord{
		ID:          item.ID,
		UserID:      item.UserID,
		Name:        item.Name,
		Description: item.Description,
		UnitPrice:   item.UnitPrice,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func (r catalogItemRecord) toDomain() domain.CatalogItem {
	return domain.CatalogItem{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		UnitPrice:   r.UnitPrice,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type counterRecord struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null"`
	DocumentType string `gorm:"not null"`
	Year         int    `gorm:"not null"`
	Seq          int64  `gorm:"not null"`
	UpdatedAt    time.Time
}

func (counterRecord) TableName() string { return "doc_counters" }

func (r counterRecord) toDomain() domain.DocCounter {
	return domain.DocCounter{
		ID:           r.ID,
		UserID:       r.UserID,
		DocumentType: domain.DocumentType(r.DocumentType),
		Year:         r.Year,
		Seq:          r.Seq,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type userRecord struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Active       bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "app_users" }

func (r userRecord) toDomain() domain.UserAccount {
	return domain.UserAccount{
		ID:        r.ID,
		Username:  r.Username,
		Password:  r.PasswordHash,
		Active:    r.Active,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

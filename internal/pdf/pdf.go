// Package pdf turns a persisted document into a downloadable PDF.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/money"
	"invoicedesk/backend/internal/numbering"
)

// Data is everything a renderer may print. It is built from the stored
// document only, never from an editing session.
type Data struct {
	DocumentType   domain.DocumentType
	DocumentNumber string
	Date           string
	Status         domain.DocumentStatus
	Customer       domain.CustomerDetails
	Currency       string
	Notes          string
	Items          []domain.DocumentItem
	Subtotal       float64
	Total          float64
	SourceNumber   string
}

func DataFromDocument(doc domain.Document) Data {
	data := Data{
		DocumentType:   doc.DocumentType,
		DocumentNumber: doc.DocumentNumber,
		Date:           doc.Date,
		Status:         doc.Status,
		Currency:       doc.Currency,
		Notes:          doc.Notes,
		Items:          append([]domain.DocumentItem(nil), doc.Items...),
		Subtotal:       doc.Subtotal,
		Total:          doc.Total,
	}
	if doc.CustomerDetails != nil {
		data.Customer = *doc.CustomerDetails
	}
	return data
}

type Renderer interface {
	Render(ctx context.Context, data Data) ([]byte, error)
}

// Filename is the download name without extension: the document number, or
// "{PFX}-{date}" when there is none.
func Filename(docType domain.DocumentType, documentNumber string, date string) string {
	if number := strings.TrimSpace(documentNumber); number != "" {
		return sanitizeFilename(number)
	}
	return sanitizeFilename(fmt.Sprintf("%s-%s", numbering.Prefix(docType), strings.TrimSpace(date)))
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r':
			return '_'
		}
		return r
	}, name)
}

type GofpdfRenderer struct {
	CompanyName string
}

func NewGofpdfRenderer(companyName string) *GofpdfRenderer {
	return &GofpdfRenderer{CompanyName: companyName}
}

func title(docType domain.DocumentType) string {
	if docType == domain.DocumentTypeQuotation {
		return "Quotation"
	}
	return "Invoice"
}

func (r *GofpdfRenderer) Render(ctx context.Context, data Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	heading := title(data.DocumentType)
	doc.SetTitle(fmt.Sprintf("%s %s", heading, data.DocumentNumber), true)
	doc.SetCreator(r.CompanyName, true)
	doc.SetMargins(15, 15, 15)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(120, 10, tr(heading), "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 10, tr(r.CompanyName), "", 1, "R", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, tr("Number: "+data.DocumentNumber), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, tr("Date: "+data.Date), "", 1, "L", false, 0, "")
	if data.SourceNumber != "" {
		doc.CellFormat(0, 6, tr("Quotation: "+data.SourceNumber), "", 1, "L", false, 0, "")
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(0, 6, tr("Bill to"), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	for _, line := range []string{data.Customer.Name, data.Customer.Email, data.Customer.Address} {
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.MultiCell(0, 5, tr(line), "", "L", false)
	}
	doc.Ln(6)

	widths := []float64{80, 25, 35, 40}
	doc.SetFillColor(235, 235, 235)
	doc.SetFont("Helvetica", "B", 10)
	for i, header := range []string{"Item", "Qty", "Unit price", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		doc.CellFormat(widths[i], 7, header, "1", 0, align, true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	for _, item := range data.Items {
		label := item.Name
		if item.Description != "" {
			label = fmt.Sprintf("%s - %s", item.Name, item.Description)
		}
		doc.CellFormat(widths[0], 7, tr(truncate(label, 48)), "1", 0, "L", false, 0, "")
		doc.CellFormat(widths[1], 7, decimal.NewFromFloat(money.Sanitize(item.Quantity)).String(), "1", 0, "R", false, 0, "")
		doc.CellFormat(widths[2], 7, money.Format(item.UnitPrice, ""), "1", 0, "R", false, 0, "")
		doc.CellFormat(widths[3], 7, money.Format(item.Amount, ""), "1", 0, "R", false, 0, "")
		doc.Ln(-1)
	}

	doc.Ln(2)
	labelWidth := widths[0] + widths[1] + widths[2]
	doc.CellFormat(labelWidth, 7, "Subtotal", "", 0, "R", false, 0, "")
	doc.CellFormat(widths[3], 7, money.Format(data.Subtotal, data.Currency), "", 1, "R", false, 0, "")
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(labelWidth, 8, "Total", "", 0, "R", false, 0, "")
	doc.CellFormat(widths[3], 8, money.Format(data.Total, data.Currency), "", 1, "R", false, 0, "")

	if strings.TrimSpace(data.Notes) != "" {
		doc.Ln(6)
		doc.SetFont("Helvetica", "I", 9)
		doc.MultiCell(0, 5, tr(data.Notes), "", "L", false)
	}

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("render %s: %w", data.DocumentNumber, err)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", data.DocumentNumber, err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// Package money holds the line and document total arithmetic.
//
// Every function here is total: non-finite or negative inputs never panic and
// never leak into a result.
package money

import (
	"math"

	"github.com/shopspring/decimal"

	"invoicedesk/backend/internal/domain"
)

// Sanitize maps NaN and ±Inf to 0.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ComputeAmount returns max(0, unitPrice*quantity), or 0 if either input is
// not finite. The product is taken in decimal so 0.1*3 is 0.3.
func ComputeAmount(unitPrice, quantity float64) float64 {
	if !finite(unitPrice) || !finite(quantity) {
		return 0
	}
	product := decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromFloat(quantity))
	if product.IsNegative() {
		return 0
	}
	amount := product.InexactFloat64()
	if !finite(amount) {
		return 0
	}
	return amount
}

// SumAmounts adds the finite values; anything else counts as 0.
func SumAmounts(amounts ...float64) float64 {
	sum := decimal.Zero
	for _, a := range amounts {
		if !finite(a) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(a))
	}
	return sum.InexactFloat64()
}

func ComputeSubtotal(items []domain.LineItem) float64 {
	amounts := make([]float64, 0, len(items))
	for _, item := range items {
		amounts = append(amounts, item.Amount)
	}
	return SumAmounts(amounts...)
}

func ComputeDocumentSubtotal(items []domain.DocumentItem) float64 {
	amounts := make([]float64, 0, len(items))
	for _, item := range items {
		amounts = append(amounts, item.Amount)
	}
	return SumAmounts(amounts...)
}

// ComputeTotals has no tax or discount stage, so Total equals Subtotal.
func ComputeTotals(items []domain.LineItem) domain.Totals {
	subtotal := ComputeSubtotal(items)
	return domain.Totals{Subtotal: subtotal, Total: subtotal}
}

// Format renders an amount with two decimals and the currency code, e.g.
// "1234.50 EUR".
func Format(amount float64, currency string) string {
	s := decimal.NewFromFloat(Sanitize(amount)).StringFixed(2)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

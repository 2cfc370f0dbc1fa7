package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

// LineItem is one confirmed scan: a product and the quantity added with it.
type LineItem struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// NewLineItem prices quantity units of p.
func NewLineItem(p product.Product, quantity int) LineItem {
	return LineItem{
		Code:      p.Code,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Quantity:  quantity,
		LineTotal: p.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Cart holds line items in the order they were confirmed. The same code may
// appear on several lines.
type Cart []LineItem

// Total is the sum of all line totals; zero for an empty cart.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.LineTotal)
	}
	return total
}

// Quantity is the number of units across all lines.
func (c Cart) Quantity() int {
	n := 0
	for _, item := range c {
		n += item.Quantity
	}
	return n
}

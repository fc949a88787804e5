// Package model defines the records that flow through the segmentation pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single invoice line from the raw retail extract.
type Transaction struct {
	InvoiceDate time.Time
	CustomerID  *string // nil when the source cell is empty
	InvoiceNo   string
	StockCode   string
	Description string
	Country     string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// HasCustomer reports whether the line can be attributed to a customer.
func (t *Transaction) HasCustomer() bool {
	return t.CustomerID != nil && *t.CustomerID != ""
}

// LineTotal returns quantity × unit price. Returns keep their negative sign.
func (t *Transaction) LineTotal() decimal.Decimal {
	return t.Quantity.Mul(t.UnitPrice)
}

// Package rfm aggregates invoice lines into per-customer recency, frequency
// and monetary metrics.
package rfm

import (
	"sort"
	"time"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Result is the outcome of a transform run.
type Result struct {
	ReferenceDate time.Time
	Customers     []model.Customer
	InputRows     int
	DroppedRows   int
}

type accumulator struct {
	lastInvoice time.Time
	invoices    map[string]struct{}
	total       decimal.Decimal
}

// Transform turns raw invoice lines into one RFM row per customer, sorted by
// customer id. The input slice is not modified.
//
// Lines without a customer are discarded before anything else, so they never
// influence the reference date. Recency is measured in whole days from one day
// after the latest remaining invoice. Monetary includes return lines.
func Transform(txns []model.Transaction) (Result, error) {
	result := Result{InputRows: len(txns)}

	customers := make(map[string]*accumulator)
	var latest time.Time

	for i := range txns {
		txn := &txns[i]
		if !txn.HasCustomer() {
			result.DroppedRows++
			continue
		}

		if txn.InvoiceDate.After(latest) {
			latest = txn.InvoiceDate
		}

		acc, ok := customers[*txn.CustomerID]
		if !ok {
			acc = &accumulator{invoices: make(map[string]struct{})}
			customers[*txn.CustomerID] = acc
		}
		if txn.InvoiceDate.After(acc.lastInvoice) {
			acc.lastInvoice = txn.InvoiceDate
		}
		acc.invoices[txn.InvoiceNo] = struct{}{}
		acc.total = acc.total.Add(txn.LineTotal())
	}

	if len(customers) == 0 {
		return result, common.ErrNoTransactions
	}

	result.ReferenceDate = latest.Add(day)

	ids := make([]string, 0, len(customers))
	for id := range customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result.Customers = make([]model.Customer, 0, len(ids))
	for _, id := range ids {
		acc := customers[id]
		result.Customers = append(result.Customers, model.Customer{
			ID:        id,
			Recency:   Recency(result.ReferenceDate, acc.lastInvoice),
			Frequency: len(acc.invoices),
			Monetary:  acc.total.InexactFloat64(),
		})
	}

	return result, nil
}

// Recency returns the whole days elapsed from last to reference, truncating
// any partial day.
func Recency(reference, last time.Time) int {
	return int(reference.Sub(last) / day)
}

package extract

import (
	"fmt"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/common"
)

type field int

const (
	fieldCustomerID field = iota
	fieldInvoiceNo
	fieldInvoiceDate
	fieldQuantity
	fieldUnitPrice
	fieldStockCode
	fieldDescription
	fieldCountry
)

var fieldAliases = map[string]field{
	"customerid":  fieldCustomerID,
	"customer":    fieldCustomerID,
	"invoiceno":   fieldInvoiceNo,
	"invoice":     fieldInvoiceNo,
	"invoicedate": fieldInvoiceDate,
	"quantity":    fieldQuantity,
	"unitprice":   fieldUnitPrice,
	"price":       fieldUnitPrice,
	"stockcode":   fieldStockCode,
	"description": fieldDescription,
	"country":     fieldCountry,
}

var requiredFields = []struct {
	field field
	name  string
}{
	{fieldCustomerID, "CustomerID"},
	{fieldInvoiceNo, "InvoiceNo"},
	{fieldInvoiceDate, "InvoiceDate"},
	{fieldQuantity, "Quantity"},
	{fieldUnitPrice, "UnitPrice"},
}

// columnMap records the position of each recognized field in a row.
type columnMap map[field]int

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// mapHeader resolves the header row. Unknown columns are ignored; the first
// occurrence of a field wins.
func mapHeader(header []string) (columnMap, error) {
	cols := make(columnMap)
	for i, h := range header {
		f, ok := fieldAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}

	var missing []string
	for _, req := range requiredFields {
		if _, ok := cols[req.field]; !ok {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: raw extract is missing columns %s",
			common.ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	return cols, nil
}

// cell returns the trimmed value of f in row, or "" when the row is short or
// the field is absent.
func (c columnMap) cell(row []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

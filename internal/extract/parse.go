package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// dateLayouts are tried in order for textual invoice dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06 15:04",
}

// parseDate accepts Excel serial day numbers as well as the textual layouts
// retail exports commonly use. Times are interpreted as UTC.
func parseDate(s string) (time.Time, error) {
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Serials carry float noise; round to the second.
		return t.Round(time.Second).UTC(), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// normalizeCustomerID strips the ".0" suffix spreadsheets add to numeric ids.
// An empty value means the line has no customer.
func normalizeCustomerID(s string) *string {
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil
	}
	if whole, frac, ok := strings.Cut(s, "."); ok && whole != "" && strings.Trim(frac, "0") == "" {
		if _, err := strconv.ParseUint(whole, 10, 64); err == nil {
			s = whole
		}
	}
	return &s
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(s)
}

// toTransaction converts one data row. line is the 1-based line number in the
// source, used for error messages.
func toTransaction(row []string, cols columnMap, line int) (model.Transaction, error) {
	invoiceDate, err := parseDate(cols.cell(row, fieldInvoiceDate))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: line %d: invoice date: %v", common.ErrInvalidInput, line, err)
	}

	quantity, err := parseDecimal(cols.cell(row, fieldQuantity))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: line %d: quantity: %v", common.ErrInvalidInput, line, err)
	}

	unitPrice, err := parseDecimal(cols.cell(row, fieldUnitPrice))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: line %d: unit price: %v", common.ErrInvalidInput, line, err)
	}

	return model.Transaction{
		CustomerID:  normalizeCustomerID(cols.cell(row, fieldCustomerID)),
		InvoiceNo:   cols.cell(row, fieldInvoiceNo),
		InvoiceDate: invoiceDate,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		StockCode:   cols.cell(row, fieldStockCode),
		Description: cols.cell(row, fieldDescription),
		Country:     cols.cell(row, fieldCountry),
	}, nil
}

// isBlank reports whether every cell of the row is empty.
func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

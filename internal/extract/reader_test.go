package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country
536365,85123A,WHITE HANGING HEART T-LIGHT HOLDER,6,2010-12-01 08:26:00,2.55,17850.0,United Kingdom
536365,71053,WHITE METAL LANTERN,6,2010-12-01 08:26:00,3.39,17850.0,United Kingdom
C536379,D,Discount,-1,2010-12-01 09:41:00,27.5,14527,United Kingdom
536414,22139,,56,2010-12-01 11:52:00,0,,United Kingdom
`

func TestParseCSV(t *testing.T) {
	txns, err := ParseCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, txns, 4)

	first := txns[0]
	require.NotNil(t, first.CustomerID)
	assert.Equal(t, "17850", *first.CustomerID)
	assert.Equal(t, "536365", first.InvoiceNo)
	assert.Equal(t, "85123A", first.StockCode)
	assert.Equal(t, "United Kingdom", first.Country)
	assert.True(t, first.Quantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, first.UnitPrice.Equal(decimal.RequireFromString("2.55")))
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), first.InvoiceDate)

	returned := txns[2]
	assert.Equal(t, "C536379", returned.InvoiceNo)
	assert.True(t, returned.Quantity.IsNegative())

	anonymous := txns[3]
	assert.Nil(t, anonymous.CustomerID)
	assert.False(t, anonymous.HasCustomer())
}

func TestParseCSV_AlternateHeaders(t *testing.T) {
	data := "Invoice,Customer ID,Invoice Date,Quantity,Price\nA,1,2024-01-01,2,10\n"

	txns, err := ParseCSV(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "A", txns[0].InvoiceNo)
	assert.Equal(t, "1", *txns[0].CustomerID)
	assert.True(t, txns[0].LineTotal().Equal(decimal.NewFromInt(20)))
}

func TestParseCSV_MissingColumns(t *testing.T) {
	data := "InvoiceNo,Quantity,UnitPrice\nA,1,2\n"

	_, err := ParseCSV(context.Background(), strings.NewReader(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "CustomerID")
	assert.Contains(t, err.Error(), "InvoiceDate")
}

func TestParseCSV_BadRows(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		errMsg string
	}{
		{name: "bad date", row: "A,1,yesterday,2,10", errMsg: "line 2: invoice date"},
		{name: "bad quantity", row: "A,1,2024-01-01,two,10", errMsg: "line 2: quantity"},
		{name: "empty price", row: "A,1,2024-01-01,2,", errMsg: "line 2: unit price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "InvoiceNo,CustomerID,InvoiceDate,Quantity,UnitPrice\n" + tt.row + "\n"
			_, err := ParseCSV(context.Background(), strings.NewReader(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseCSV_SkipsBlankRows(t *testing.T) {
	data := "InvoiceNo,CustomerID,InvoiceDate,Quantity,UnitPrice\nA,1,2024-01-01,1,1\n,,,,\nB,2,2024-01-02,1,1\n"

	txns, err := ParseCSV(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestReader_MissingInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw", "Online_Retail.xlsx")

	_, err := NewReader(path, "").Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingInput)
	assert.Contains(t, err.Error(), path)

	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestReader_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	_, err := NewReader(path, "").Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestReader_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retail.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0600))

	txns, err := NewReader(path, "").Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, txns, 4)
}

func TestReader_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Online_Retail.xlsx")

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	rows := [][]any{
		{"InvoiceNo", "StockCode", "Description", "Quantity", "InvoiceDate", "UnitPrice", "CustomerID", "Country"},
		{"A", "100", "Mug", 2, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 10.0, 1, "France"},
		{"A", "101", "Plate", 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5.0, 1, "France"},
		{"B", "102", "Bowl", 1, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 100.0, 2, "Spain"},
		{"C", "103", "Cup", 3, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), 1.5, nil, "Spain"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	txns, err := NewReader(path, "").Read(context.Background())
	require.NoError(t, err)
	require.Len(t, txns, 4)

	assert.Equal(t, "1", *txns[0].CustomerID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), txns[0].InvoiceDate)
	assert.True(t, txns[0].LineTotal().Equal(decimal.NewFromInt(20)))
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), txns[2].InvoiceDate)
	assert.Nil(t, txns[3].CustomerID)
}

func TestReader_WorkbookUnknownSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	wb := excelize.NewFile()
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	_, err := NewReader(path, "Missing").Read(context.Background())
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		want  time.Time
		name  string
		input string
	}{
		{name: "iso datetime", input: "2010-12-01 08:26:00", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{name: "iso minutes", input: "2010-12-01 08:26", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{name: "iso date", input: "2024-01-05", want: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339", input: "2024-01-05T10:00:00Z", want: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{name: "us datetime", input: "12/1/2010 8:26", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{name: "excel serial", input: "45292", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "excel serial noon", input: "45292.5", want: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseDate("not a date")
	assert.Error(t, err)
}

func TestNormalizeCustomerID(t *testing.T) {
	tests := []struct {
		want  *string
		name  string
		input string
	}{
		{name: "empty", input: "", want: nil},
		{name: "nan", input: "NaN", want: nil},
		{name: "float suffix", input: "12346.0", want: ptr("12346")},
		{name: "plain integer", input: "12346", want: ptr("12346")},
		{name: "leading zeros kept", input: "00123", want: ptr("00123")},
		{name: "real fraction kept", input: "12.5", want: ptr("12.5")},
		{name: "alphanumeric", input: "C-77", want: ptr("C-77")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeCustomerID(tt.input))
		})
	}
}

func ptr(s string) *string {
	return &s
}

package rfm

import (
	"testing"
	"time"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func txn(customer string, invoice string, at time.Time, qty int64, price string) model.Transaction {
	t := model.Transaction{
		InvoiceNo:   invoice,
		InvoiceDate: at,
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   decimal.RequireFromString(price),
	}
	if customer != "" {
		t.CustomerID = &customer
	}
	return t
}

func byID(customers []model.Customer) map[string]model.Customer {
	out := make(map[string]model.Customer, len(customers))
	for _, c := range customers {
		out[c.ID] = c
	}
	return out
}

func TestTransform_EndToEndScenario(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 1), 2, "10"),
		txn("1", "A", date(2024, 1, 1), 1, "5"),
		txn("2", "B", date(2024, 1, 5), 1, "100"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	assert.Equal(t, date(2024, 1, 6), result.ReferenceDate)
	require.Len(t, result.Customers, 2)
	assert.Equal(t, model.Customer{ID: "1", Recency: 5, Frequency: 1, Monetary: 25}, result.Customers[0])
	assert.Equal(t, model.Customer{ID: "2", Recency: 1, Frequency: 1, Monetary: 100}, result.Customers[1])
	assert.Equal(t, 3, result.InputRows)
	assert.Zero(t, result.DroppedRows)
}

func TestTransform_DropsLinesWithoutCustomer(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 1), 1, "10"),
		txn("", "X", date(2024, 3, 1), 5, "99"),
		txn("", "Y", date(2024, 1, 2), 1, "1"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	require.Len(t, result.Customers, 1)
	assert.Equal(t, "1", result.Customers[0].ID)
	assert.Equal(t, 2, result.DroppedRows)
}

func TestTransform_ReferenceDateIgnoresAnonymousLines(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 10), 1, "10"),
		// Later than every attributable line; must not move the reference date.
		txn("", "X", date(2024, 6, 1), 1, "10"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	assert.Equal(t, date(2024, 1, 11), result.ReferenceDate)
	assert.Equal(t, 1, result.Customers[0].Recency)
}

func TestTransform_RecencyUsesLatestInvoice(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 1), 1, "1"),
		txn("1", "B", date(2024, 1, 20), 1, "1"),
		txn("2", "C", date(2024, 2, 1), 1, "1"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	customers := byID(result.Customers)
	reference := date(2024, 2, 2)
	assert.Equal(t, reference, result.ReferenceDate)
	assert.Equal(t, int(reference.Sub(date(2024, 1, 20)).Hours()/24), customers["1"].Recency)
	assert.Equal(t, 13, customers["1"].Recency)
}

func TestTransform_RecencyTruncatesPartialDays(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), 1, "1"),
		txn("2", "B", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), 1, "1"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	customers := byID(result.Customers)
	// Reference is 2024-01-04 09:00; 2 days 15 hours after customer 1's purchase.
	assert.Equal(t, 2, customers["1"].Recency)
	assert.Equal(t, 1, customers["2"].Recency)
}

func TestTransform_FrequencyCountsDistinctInvoices(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 1), 1, "1"),
		txn("1", "A", date(2024, 1, 1), 1, "1"),
		txn("1", "A", date(2024, 1, 1), 1, "1"),
		txn("1", "B", date(2024, 1, 2), 1, "1"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	require.Len(t, result.Customers, 1)
	assert.Equal(t, 2, result.Customers[0].Frequency)
}

func TestTransform_MonetaryIncludesReturns(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 1), 3, "0.10"),
		txn("1", "A", date(2024, 1, 1), 7, "0.20"),
		txn("1", "C1", date(2024, 1, 2), -2, "0.20"),
		txn("2", "C2", date(2024, 1, 2), -1, "50"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	customers := byID(result.Customers)
	// 0.30 + 1.40 - 0.40, exact without float drift.
	assert.Equal(t, 1.3, customers["1"].Monetary)
	assert.Equal(t, -50.0, customers["2"].Monetary)
}

func TestTransform_OneRowPerCustomerSorted(t *testing.T) {
	txns := []model.Transaction{
		txn("30", "A", date(2024, 1, 1), 1, "1"),
		txn("10", "B", date(2024, 1, 1), 1, "1"),
		txn("20", "C", date(2024, 1, 1), 1, "1"),
		txn("10", "D", date(2024, 1, 2), 1, "1"),
	}

	result, err := Transform(txns)
	require.NoError(t, err)

	ids := make([]string, 0, len(result.Customers))
	for _, c := range result.Customers {
		ids = append(ids, c.ID)
		assert.Empty(t, c.SegmentLabel)
		require.NoError(t, c.Validate(model.StageRFM))
	}
	assert.Equal(t, []string{"10", "20", "30"}, ids)
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	txns := []model.Transaction{
		txn("1", "A", date(2024, 1, 1), 2, "10"),
		txn("", "B", date(2024, 1, 2), 1, "1"),
	}
	before := make([]model.Transaction, len(txns))
	copy(before, txns)

	_, err := Transform(txns)
	require.NoError(t, err)
	assert.Equal(t, before, txns)
}

func TestTransform_NoAttributableLines(t *testing.T) {
	tests := []struct {
		name string
		txns []model.Transaction
	}{
		{name: "empty input", txns: nil},
		{name: "only anonymous lines", txns: []model.Transaction{txn("", "A", date(2024, 1, 1), 1, "1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.txns)
			assert.ErrorIs(t, err, common.ErrNoTransactions)
		})
	}
}

func TestRecency(t *testing.T) {
	ref := date(2024, 1, 6)
	assert.Equal(t, 5, Recency(ref, date(2024, 1, 1)))
	assert.Equal(t, 0, Recency(ref, ref.Add(-time.Hour)))
}

package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/susu3304/warikanbot/internal/settlement"
)

func sampleStatement(t *testing.T) Statement {
	t.Helper()
	res, err := settlement.Calculate(
		[]settlement.Person{{ID: "a", Name: "あき"}, {ID: "b", Name: "Ben"}, {ID: "c", Name: "Chloé"}},
		[]settlement.Expense{{ID: "e1", Amount: 300, Currency: "JPY", PayerID: "a", ParticipantIDs: []string{"a", "b", "c"}}},
		nil, "JPY",
	)
	require.NoError(t, err)
	return Statement{
		GroupName:   "温泉旅行",
		Names:       map[string]string{"a": "あき", "b": "Ben", "c": "Chloé"},
		Result:      res,
		GeneratedAt: time.Date(2024, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildSettlementXLSX(t *testing.T) {
	data, err := BuildSettlementXLSX(sampleStatement(t))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, balancesSheet, transfersSheet}, f.GetSheetList())

	group, err := f.GetCellValue(summarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "温泉旅行", group)

	total, err := f.GetCellValue(summarySheet, "B5")
	require.NoError(t, err)
	assert.Equal(t, "300", total)

	rows, err := f.GetRows(transfersSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"From", "To", "Amount"},
		{"Ben", "あき", "100"},
		{"Chloé", "あき", "100"},
	}, rows)

	balances, err := f.GetRows(balancesSheet)
	require.NoError(t, err)
	require.Len(t, balances, 4)
	assert.Equal(t, []string{"a", "あき", "200"}, balances[1])
}

func TestBuildSettlementPDF(t *testing.T) {
	data, err := BuildSettlementPDF(sampleStatement(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Greater(t, len(data), 500)
}

func TestBuildSettlementPDF_Empty(t *testing.T) {
	data, err := BuildSettlementPDF(Statement{Result: settlement.Result{BaseCurrency: "USD"}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestLatin1(t *testing.T) {
	assert.True(t, latin1("Chloé"))
	assert.False(t, latin1("あき"))
}

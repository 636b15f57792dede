// Package export renders settlement results as downloadable statements.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/susu3304/warikanbot/internal/settlement"
)

const (
	summarySheet   = "summary"
	balancesSheet  = "balances"
	transfersSheet = "transfers"
)

// Statement is a settlement result with the context needed to print it.
type Statement struct {
	GroupName   string
	Names       map[string]string
	Result      settlement.Result
	GeneratedAt time.Time
}

func (s Statement) name(id string) string {
	if n := s.Names[id]; n != "" {
		return n
	}
	return id
}

func (s Statement) perPerson() float64 {
	if len(s.Result.Balances) == 0 {
		return 0
	}
	return settlement.Round2(s.Result.Total / float64(len(s.Result.Balances)))
}

func BuildSettlementXLSX(stmt Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(balancesSheet)
	f.NewSheet(transfersSheet)

	summary := [][2]any{
		{"Group", stmt.GroupName},
		{"Base Currency", stmt.Result.BaseCurrency},
		{"Total", stmt.Result.Total},
		{"Members", len(stmt.Result.Balances)},
		{"Per Person", stmt.perPerson()},
		{"Transfers", len(stmt.Result.Transfers)},
		{"Generated", stmt.GeneratedAt.Format(time.RFC3339)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Settlement Statement")
	for i, kv := range summary {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1])
	}

	_ = f.SetCellValue(balancesSheet, "A1", "Person ID")
	_ = f.SetCellValue(balancesSheet, "B1", "Name")
	_ = f.SetCellValue(balancesSheet, "C1", "Balance")
	for i, b := range stmt.Result.Balances {
		row := i + 2
		_ = f.SetCellValue(balancesSheet, fmt.Sprintf("A%d", row), b.PersonID)
		_ = f.SetCellValue(balancesSheet, fmt.Sprintf("B%d", row), stmt.name(b.PersonID))
		_ = f.SetCellValue(balancesSheet, fmt.Sprintf("C%d", row), b.Amount)
	}

	_ = f.SetCellValue(transfersSheet, "A1", "From")
	_ = f.SetCellValue(transfersSheet, "B1", "To")
	_ = f.SetCellValue(transfersSheet, "C1", "Amount")
	for i, t := range stmt.Result.Transfers {
		row := i + 2
		_ = f.SetCellValue(transfersSheet, fmt.Sprintf("A%d", row), stmt.name(t.From))
		_ = f.SetCellValue(transfersSheet, fmt.Sprintf("B%d", row), stmt.name(t.To))
		_ = f.SetCellValue(transfersSheet, fmt.Sprintf("C%d", row), t.Amount)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSettlementPDF renders a one-page statement. The core PDF fonts only
// cover Latin-1, so names outside it are printed as their IDs.
func BuildSettlementPDF(stmt Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s, fallback string) string {
		if !latin1(s) {
			s = fallback
		}
		return tr(s)
	}
	person := func(id string) string { return text(stmt.name(id), id) }
	base := stmt.Result.BaseCurrency

	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, "Settlement Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Group: %s", text(stmt.GroupName, "-")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total (%s): %.2f", base, stmt.Result.Total))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Per person (%s): %.2f", base, stmt.perPerson()))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Person", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Balance", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, b := range stmt.Result.Balances {
		pdf.CellFormat(90, 6, person(b.PersonID), "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%+.2f", b.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "From", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "To", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	if len(stmt.Result.Transfers) == 0 {
		pdf.CellFormat(160, 6, "Nothing to settle", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	for _, t := range stmt.Result.Transfers {
		pdf.CellFormat(60, 6, person(t.From), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, person(t.To), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", t.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func latin1(s string) bool {
	for _, r := range s {
		if r > 0xff {
			return false
		}
	}
	return true
}

package exportsvc

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/masomo-fees/core/fee"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	ledgerSheet  = "ledger"
	summarySheet = "summary"
)

var ledgerHeader = []interface{}{
	"Student", "Program", "Fee Head", "Session", "Due Date",
	"Total", "Discount", "Final", "Paid", "Outstanding", "Status",
}

// LedgerXLSX writes one row per StudentFee, plus a summary sheet with the totals.
func LedgerXLSX(entries []fee.LedgerEntry, currency string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return nil, errors.Wrap(err, "excelize.SetSheetName")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, errors.Wrap(err, "excelize.NewSheet")
	}

	if err := f.SetSheetRow(ledgerSheet, "A1", &ledgerHeader); err != nil {
		return nil, errors.Wrap(err, "writing header")
	}

	var final, paid, outstanding decimal.Decimal
	for i, e := range entries {
		row := []interface{}{
			e.StudentName,
			e.Program,
			e.FeeHead,
			e.AcademicSession,
			e.DueDate.Format("2006-01-02"),
			e.TotalAmount.InexactFloat64(),
			e.DiscountAmount.InexactFloat64(),
			e.FinalAmount.InexactFloat64(),
			e.PaidAmount.InexactFloat64(),
			e.OutstandingAmount.InexactFloat64(),
			string(e.Status),
		}
		if err := f.SetSheetRow(ledgerSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, errors.Wrapf(err, "writing row %d", i+2)
		}
		final = final.Add(e.FinalAmount)
		paid = paid.Add(e.PaidAmount)
		outstanding = outstanding.Add(e.OutstandingAmount)
	}

	summary := [][2]interface{}{
		{"Currency", currency},
		{"Fees", len(entries)},
		{"Total Final", final.InexactFloat64()},
		{"Total Paid", paid.InexactFloat64()},
		{"Total Outstanding", outstanding.InexactFloat64()},
	}
	for i, s := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), s[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), s[1])
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "excelize.Write")
	}
	return buf.Bytes(), nil
}

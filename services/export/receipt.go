// Package exportsvc renders ledger documents: PDF receipts & XLSX ledgers.
package exportsvc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core/fee"
)

const pdfContentType = "application/pdf"

type PDFReceipts struct{}

var _ fee.ReceiptRenderer = (*PDFReceipts)(nil) // interface compliance check

func NewPDFReceipts() *PDFReceipts {
	return &PDFReceipts{}
}

func (PDFReceipts) ContentType() string {
	return pdfContentType
}

func (PDFReceipts) RenderReceipt(doc fee.ReceiptDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("Receipt "+doc.Payment.ReceiptNumber, true)
	pdf.SetAuthor(doc.SchoolName, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, doc.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, "Fee Payment Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Receipt No.", doc.Payment.ReceiptNumber},
		{"Date", doc.Payment.PaymentDate.Format("02 Jan 2006")},
		{"Student", doc.StudentName},
		{"Program", doc.Program},
		{"Fee", fmt.Sprintf("%s (%s)", doc.FeeHead, doc.AcademicSession)},
		{"Method", methodLabel(doc.Payment.Method)},
	}
	if doc.Payment.TransactionID != "" {
		rows = append(rows, [2]string{"Transaction ID", doc.Payment.TransactionID})
	}
	for _, r := range rows {
		pdf.CellFormat(40, 6, r[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, r[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// amounts table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 7, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Amount ("+doc.Currency+")", "1", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	amounts := [][2]string{
		{"Fee payable", doc.StudentFee.FinalAmount.StringFixed(2)},
		{"Amount received", doc.Payment.Amount.StringFixed(2)},
		{"Total paid to date", doc.StudentFee.PaidAmount.StringFixed(2)},
		{"Balance outstanding", doc.StudentFee.OutstandingAmount.StringFixed(2)},
	}
	for _, a := range amounts {
		pdf.CellFormat(80, 7, a[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, a[1], "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
	pdf.CellFormat(0, 6, "Status: "+strings.ToUpper(string(doc.StudentFee.Status)), "", 1, "L", false, 0, "")

	if doc.Payment.Remarks != "" {
		pdf.MultiCell(0, 5, "Remarks: "+doc.Payment.Remarks, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "gofpdf.Output")
	}
	return buf.Bytes(), nil
}

var methodLabels = map[fee.PaymentMethod]string{
	fee.MethodCash:         "Cash",
	fee.MethodCard:         "Card",
	fee.MethodUPI:          "UPI",
	fee.MethodNetBanking:   "Net Banking",
	fee.MethodCheque:       "Cheque",
	fee.MethodBankTransfer: "Bank Transfer",
	fee.MethodOnline:       "Online",
}

func methodLabel(m fee.PaymentMethod) string {
	if l, ok := methodLabels[m]; ok {
		return l
	}
	return string(m)
}

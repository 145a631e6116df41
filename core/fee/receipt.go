package fee

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
)

// FormatReceiptNumber formats a receipt sequence value as PREFIX-YYYY-NNNNNN.
// Uniqueness comes from the sequence, the year only makes the number readable.
func FormatReceiptNumber(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, at.Year(), seq)
}

// ReceiptDocument gathers what is printed on the receipt of the payment numbered `receiptNumber`.
func (svc *Service) ReceiptDocument(ctx context.Context, receiptNumber string) (ReceiptDocument, error) {
	pmt, err := svc.repo.GetPaymentByReceipt(ctx, core.CleanString(receiptNumber))
	if err != nil {
		return ReceiptDocument{}, err
	}
	sf, err := svc.repo.GetStudentFee(ctx, pmt.StudentFeeID)
	if err != nil {
		return ReceiptDocument{}, err
	}
	return svc.receiptDocument(ctx, Receipt{Payment: pmt, StudentFee: sf})
}

func (svc *Service) receiptDocument(ctx context.Context, rcpt Receipt) (ReceiptDocument, error) {
	doc := ReceiptDocument{
		SchoolName: svc.conf.AppName,
		Currency:   svc.conf.Ledger.Currency,
		Payment:    rcpt.Payment,
		StudentFee: rcpt.StudentFee,
	}

	student, err := svc.students.GetByID(ctx, rcpt.StudentFee.StudentID)
	if err != nil && !core.IsNotFound(err) {
		return ReceiptDocument{}, errors.Wrap(err, "finding student")
	}
	doc.StudentName = student.Name

	fs, err := svc.repo.GetFeeStructure(ctx, rcpt.StudentFee.FeeStructureID)
	if err != nil {
		return ReceiptDocument{}, errors.Wrap(err, "finding fee structure")
	}
	doc.Program = fs.Program
	doc.AcademicSession = fs.AcademicSession

	head, err := svc.repo.GetFeeHead(ctx, fs.FeeHeadID)
	if err != nil {
		return ReceiptDocument{}, errors.Wrap(err, "finding fee head")
	}
	doc.FeeHead = head.Name
	return doc, nil
}

// RenderReceipt renders the receipt of the payment numbered `receiptNumber`.
func (svc *Service) RenderReceipt(ctx context.Context, receiptNumber string) ([]byte, string, error) {
	if svc.receipts == nil {
		return nil, "", errors.New("no receipt renderer configured")
	}
	doc, err := svc.ReceiptDocument(ctx, receiptNumber)
	if err != nil {
		return nil, "", err
	}
	content, err := svc.receipts.RenderReceipt(doc)
	if err != nil {
		return nil, "", errors.Wrap(err, "rendering receipt")
	}
	return content, svc.receipts.ContentType(), nil
}

type receiptEmailData struct {
	StudentName   string
	Amount        string
	Currency      string
	FeeName       string
	ReceiptNumber string
	PaymentDate   string
	Method        string
	Outstanding   string
	Status        string
}

// sendReceipt emails the payment receipt to the student; failures are logged, never returned.
func (svc *Service) sendReceipt(ctx context.Context, rcpt Receipt) {
	if svc.mailSvc == nil {
		return
	}

	student, err := svc.students.GetByID(ctx, rcpt.StudentFee.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("receipt %s: finding student: %v", rcpt.Payment.ReceiptNumber, err), err)
		return
	}
	if student.Email == "" {
		return
	}

	doc, err := svc.receiptDocument(ctx, rcpt)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("receipt %s: %v", rcpt.Payment.ReceiptNumber, err), err)
		return
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      fmt.Sprintf("Payment receipt %s", rcpt.Payment.ReceiptNumber),
		TemplateName: "payment_receipt",
		TemplateData: receiptEmailData{
			StudentName:   student.Name,
			Amount:        rcpt.Payment.Amount.StringFixed(2),
			Currency:      doc.Currency,
			FeeName:       fmt.Sprintf("%s (%s)", doc.FeeHead, doc.AcademicSession),
			ReceiptNumber: rcpt.Payment.ReceiptNumber,
			PaymentDate:   rcpt.Payment.PaymentDate.Format("2006-01-02"),
			Method:        string(rcpt.Payment.Method),
			Outstanding:   rcpt.StudentFee.OutstandingAmount.StringFixed(2),
			Status:        string(rcpt.StudentFee.Status),
		},
	}

	if svc.receipts != nil {
		content, err := svc.receipts.RenderReceipt(doc)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("receipt %s: rendering: %v", rcpt.Payment.ReceiptNumber, err), err)
		} else if err = msg.Attach(bytes.NewReader(content), rcpt.Payment.ReceiptNumber+".pdf", svc.receipts.ContentType()); err != nil {
			svc.logger.Error(fmt.Sprintf("receipt %s: attaching: %v", rcpt.Payment.ReceiptNumber, err), err)
		}
	}

	svc.mailSvc.SendMessages(msg)
}

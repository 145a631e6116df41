package fee

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
)

// RecordPayment validates and applies a payment to a StudentFee in its own transaction.
// The StudentFee is locked for the duration of the read-check-write so concurrent payments cannot overpay it.
// The receipt email is sent once the transaction is committed.
func (svc *Service) RecordPayment(ctx context.Context, np NewPayment) (Receipt, error) {
	if err := np.Validate(svc.validate); err != nil {
		svc.recorder.PaymentRejected(rejectReason(err))
		return Receipt{}, err
	}

	var rcpt Receipt
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		rcpt, err = svc.applyPayment(ctx, exec, np)
		return err
	})
	if err != nil {
		svc.recorder.PaymentRejected(rejectReason(err))
		return Receipt{}, err
	}

	svc.paymentRecorded(ctx, rcpt)
	return rcpt, nil
}

// RecordPaymentTx validates and applies a payment within a transaction owned by the caller.
// No receipt is sent: the caller decides what happens once its transaction commits.
func (svc *Service) RecordPaymentTx(ctx context.Context, exec core.DBExecutor, np NewPayment) (Receipt, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Receipt{}, err
	}
	return svc.applyPayment(ctx, exec, np)
}

func (svc *Service) applyPayment(ctx context.Context, exec core.DBExecutor, np NewPayment) (Receipt, error) {
	sf, err := svc.repo.LockStudentFee(ctx, np.StudentFeeID, exec)
	if err != nil {
		return Receipt{}, err
	}
	if np.Amount.GreaterThan(sf.OutstandingAmount) {
		return Receipt{}, fieldErr(ErrExceedsOutstanding, "amount")
	}

	seq, err := svc.repo.NextReceiptSequence(ctx, exec)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "generating receipt number")
	}

	now := core.NowFunc().UTC()
	pmt := FeePayment{
		ID:            uuid.New().String(),
		StudentFeeID:  sf.ID,
		Amount:        np.Amount,
		PaymentDate:   core.TruncateDay(np.PaymentDate),
		Method:        np.Method,
		TransactionID: np.TransactionID,
		ReceiptNumber: FormatReceiptNumber(svc.conf.Ledger.ReceiptPrefix, now, seq),
		Status:        PaymentSuccess,
		Remarks:       np.Remarks,
		RecordedBy:    np.RecordedBy,
		CreatedAt:     now,
	}
	if pmt, err = svc.repo.CreatePayment(ctx, pmt, exec); err != nil {
		return Receipt{}, errors.Wrap(err, "creating payment")
	}

	sf.PaidAmount = sf.PaidAmount.Add(np.Amount)
	sf.Recalculate()
	sf.UpdatedAt = now
	if sf, err = svc.repo.UpdateStudentFeeAmounts(ctx, sf, exec); err != nil {
		return Receipt{}, errors.Wrap(err, "updating student fee")
	}

	return Receipt{Payment: pmt, StudentFee: sf}, nil
}

// paymentRecorded runs the side effects of a committed payment.
func (svc *Service) paymentRecorded(ctx context.Context, rcpt Receipt) {
	svc.recorder.PaymentRecorded(rcpt.Payment.Method, rcpt.Payment.Amount)
	svc.logger.Info(fmt.Sprintf(
		"payment %s of %s recorded on student fee %s (%s, outstanding %s)",
		rcpt.Payment.ReceiptNumber, rcpt.Payment.Amount, rcpt.StudentFee.ID,
		rcpt.StudentFee.Status, rcpt.StudentFee.OutstandingAmount,
	))
	svc.sendReceipt(ctx, rcpt)
}

func (svc *Service) GetStudentFee(ctx context.Context, id string) (StudentFee, error) {
	return svc.repo.GetStudentFee(ctx, core.CleanString(id))
}

func (svc *Service) QueryStudentFees(ctx context.Context, filter *StudentFeeFilter, ordering []core.DBOrdering) ([]StudentFee, error) {
	return svc.repo.QueryStudentFees(ctx, filter, ordering)
}

func (svc *Service) QueryPayments(ctx context.Context, filter *PaymentFilter) ([]FeePayment, error) {
	return svc.repo.QueryPayments(ctx, filter)
}

func (svc *Service) GetPaymentByReceipt(ctx context.Context, receiptNumber string) (FeePayment, error) {
	return svc.repo.GetPaymentByReceipt(ctx, core.CleanString(receiptNumber))
}

// StudentStatement returns every fee & payment of a student with their totals.
func (svc *Service) StudentStatement(ctx context.Context, studentID string) (Statement, error) {
	student, err := svc.students.GetByID(ctx, studentID)
	if err != nil {
		return Statement{}, err
	}

	fees, err := svc.repo.QueryStudentFees(ctx, &StudentFeeFilter{StudentID: student.ID}, []core.DBOrdering{{Field: "due_date", Ascending: true}})
	if err != nil {
		return Statement{}, errors.Wrap(err, "querying student fees")
	}
	pmts, err := svc.repo.QueryPayments(ctx, &PaymentFilter{StudentID: student.ID})
	if err != nil {
		return Statement{}, errors.Wrap(err, "querying payments")
	}

	stmt := Statement{
		StudentID:        student.ID,
		StudentName:      student.Name,
		Program:          student.Program,
		Fees:             fees,
		Payments:         pmts,
		TotalFinal:       decimal.Zero,
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	today := core.Today()
	for _, sf := range fees {
		stmt.TotalFinal = stmt.TotalFinal.Add(sf.FinalAmount)
		stmt.TotalPaid = stmt.TotalPaid.Add(sf.PaidAmount)
		stmt.TotalOutstanding = stmt.TotalOutstanding.Add(sf.OutstandingAmount)
		if sf.IsOverdue(today) {
			stmt.OverdueCount++
		}
	}
	if stmt.Fees == nil {
		stmt.Fees = []StudentFee{}
	}
	if stmt.Payments == nil {
		stmt.Payments = []FeePayment{}
	}
	return stmt, nil
}

// Ledger returns the StudentFees matching `filter` along with the student & structure names.
func (svc *Service) Ledger(ctx context.Context, filter *StudentFeeFilter) ([]LedgerEntry, error) {
	fees, err := svc.repo.QueryStudentFees(ctx, filter, []core.DBOrdering{{Field: "created_at", Ascending: true}})
	if err != nil {
		return nil, errors.Wrap(err, "querying student fees")
	}

	structures := make(map[string]FeeStructure)
	heads := make(map[string]FeeHead)
	entries := make([]LedgerEntry, 0, len(fees))
	for _, sf := range fees {
		entry := LedgerEntry{StudentFee: sf}

		if student, err := svc.students.GetByID(ctx, sf.StudentID); err == nil {
			entry.StudentName = student.Name
		} else if !core.IsNotFound(err) {
			return nil, errors.Wrap(err, "finding student")
		}

		fs, ok := structures[sf.FeeStructureID]
		if !ok {
			if fs, err = svc.repo.GetFeeStructure(ctx, sf.FeeStructureID); err != nil {
				return nil, errors.Wrap(err, "finding fee structure")
			}
			structures[fs.ID] = fs
		}
		entry.Program = fs.Program
		entry.AcademicSession = fs.AcademicSession

		head, ok := heads[fs.FeeHeadID]
		if !ok {
			if head, err = svc.repo.GetFeeHead(ctx, fs.FeeHeadID); err != nil {
				return nil, errors.Wrap(err, "finding fee head")
			}
			heads[head.ID] = head
		}
		entry.FeeHead = head.Name

		entries = append(entries, entry)
	}
	return entries, nil
}

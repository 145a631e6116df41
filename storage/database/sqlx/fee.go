package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
)

const (
	feeHeadColumns      = `id, name, description`
	feeStructureColumns = `id, program, fee_head_id, academic_session, amount, frequency, due_date, late_fee, is_active, created_at, updated_at`
	studentFeeColumns   = `id, student_id, fee_structure_id, total_amount, discount_amount, final_amount, paid_amount, outstanding_amount, status, due_date, created_at, updated_at`
	paymentColumns      = `id, student_fee_id, amount, payment_date, payment_method, transaction_id, receipt_number, status, remarks, recorded_by, created_at`
	gatewayOrderColumns = `reference, student_fee_id, amount, status, token, redirect_url, payment_id, transaction_id, created_at, updated_at`
)

var studentFeeOrderings = map[string]bool{"due_date": true, "created_at": true, "outstanding_amount": true, "status": true}

type (
	feeHeadRow struct {
		ID          string `db:"id"`
		Name        string `db:"name"`
		Description string `db:"description"`
	}

	feeStructureRow struct {
		ID              string          `db:"id"`
		Program         string          `db:"program"`
		FeeHeadID       string          `db:"fee_head_id"`
		AcademicSession string          `db:"academic_session"`
		Amount          decimal.Decimal `db:"amount"`
		Frequency       string          `db:"frequency"`
		DueDate         time.Time       `db:"due_date"`
		LateFee         decimal.Decimal `db:"late_fee"`
		IsActive        bool            `db:"is_active"`
		CreatedAt       time.Time       `db:"created_at"`
		UpdatedAt       time.Time       `db:"updated_at"`
	}

	studentFeeRow struct {
		ID                string          `db:"id"`
		StudentID         string          `db:"student_id"`
		FeeStructureID    string          `db:"fee_structure_id"`
		TotalAmount       decimal.Decimal `db:"total_amount"`
		DiscountAmount    decimal.Decimal `db:"discount_amount"`
		FinalAmount       decimal.Decimal `db:"final_amount"`
		PaidAmount        decimal.Decimal `db:"paid_amount"`
		OutstandingAmount decimal.Decimal `db:"outstanding_amount"`
		Status            string          `db:"status"`
		DueDate           time.Time       `db:"due_date"`
		CreatedAt         time.Time       `db:"created_at"`
		UpdatedAt         time.Time       `db:"updated_at"`
	}

	paymentRow struct {
		ID            string          `db:"id"`
		StudentFeeID  string          `db:"student_fee_id"`
		Amount        decimal.Decimal `db:"amount"`
		PaymentDate   time.Time       `db:"payment_date"`
		Method        string          `db:"payment_method"`
		TransactionID null.String     `db:"transaction_id"`
		ReceiptNumber string          `db:"receipt_number"`
		Status        string          `db:"status"`
		Remarks       null.String     `db:"remarks"`
		RecordedBy    null.String     `db:"recorded_by"`
		CreatedAt     time.Time       `db:"created_at"`
	}

	gatewayOrderRow struct {
		Reference     string          `db:"reference"`
		StudentFeeID  string          `db:"student_fee_id"`
		Amount        decimal.Decimal `db:"amount"`
		Status        string          `db:"status"`
		Token         string          `db:"token"`
		RedirectURL   string          `db:"redirect_url"`
		PaymentID     null.String     `db:"payment_id"`
		TransactionID null.String     `db:"transaction_id"`
		CreatedAt     time.Time       `db:"created_at"`
		UpdatedAt     time.Time       `db:"updated_at"`
	}
)

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func (row feeStructureRow) toDomain() fee.FeeStructure {
	return fee.FeeStructure{
		ID:              row.ID,
		Program:         row.Program,
		FeeHeadID:       row.FeeHeadID,
		AcademicSession: row.AcademicSession,
		Amount:          row.Amount,
		Frequency:       fee.Frequency(row.Frequency),
		DueDate:         core.TruncateDay(row.DueDate),
		LateFee:         row.LateFee,
		IsActive:        row.IsActive,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func fromFeeStructure(fs fee.FeeStructure) feeStructureRow {
	return feeStructureRow{
		ID:              fs.ID,
		Program:         fs.Program,
		FeeHeadID:       fs.FeeHeadID,
		AcademicSession: fs.AcademicSession,
		Amount:          fs.Amount,
		Frequency:       string(fs.Frequency),
		DueDate:         core.TruncateDay(fs.DueDate),
		LateFee:         fs.LateFee,
		IsActive:        fs.IsActive,
		CreatedAt:       fs.CreatedAt.UTC(),
		UpdatedAt:       fs.UpdatedAt.UTC(),
	}
}

func (row studentFeeRow) toDomain() fee.StudentFee {
	return fee.StudentFee{
		ID:                row.ID,
		StudentID:         row.StudentID,
		FeeStructureID:    row.FeeStructureID,
		TotalAmount:       row.TotalAmount,
		DiscountAmount:    row.DiscountAmount,
		FinalAmount:       row.FinalAmount,
		PaidAmount:        row.PaidAmount,
		OutstandingAmount: row.OutstandingAmount,
		Status:            fee.Status(row.Status),
		DueDate:           core.TruncateDay(row.DueDate),
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func fromStudentFee(sf fee.StudentFee) studentFeeRow {
	return studentFeeRow{
		ID:                sf.ID,
		StudentID:         sf.StudentID,
		FeeStructureID:    sf.FeeStructureID,
		TotalAmount:       sf.TotalAmount,
		DiscountAmount:    sf.DiscountAmount,
		FinalAmount:       sf.FinalAmount,
		PaidAmount:        sf.PaidAmount,
		OutstandingAmount: sf.OutstandingAmount,
		Status:            string(sf.Status),
		DueDate:           core.TruncateDay(sf.DueDate),
		CreatedAt:         sf.CreatedAt.UTC(),
		UpdatedAt:         sf.UpdatedAt.UTC(),
	}
}

func (row paymentRow) toDomain() fee.FeePayment {
	return fee.FeePayment{
		ID:            row.ID,
		StudentFeeID:  row.StudentFeeID,
		Amount:        row.Amount,
		PaymentDate:   core.TruncateDay(row.PaymentDate),
		Method:        fee.PaymentMethod(row.Method),
		TransactionID: row.TransactionID.String,
		ReceiptNumber: row.ReceiptNumber,
		Status:        fee.PaymentStatus(row.Status),
		Remarks:       row.Remarks.String,
		RecordedBy:    row.RecordedBy.String,
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func fromPayment(p fee.FeePayment) paymentRow {
	return paymentRow{
		ID:            p.ID,
		StudentFeeID:  p.StudentFeeID,
		Amount:        p.Amount,
		PaymentDate:   core.TruncateDay(p.PaymentDate),
		Method:        string(p.Method),
		TransactionID: nullString(p.TransactionID),
		ReceiptNumber: p.ReceiptNumber,
		Status:        string(p.Status),
		Remarks:       nullString(p.Remarks),
		RecordedBy:    nullString(p.RecordedBy),
		CreatedAt:     p.CreatedAt.UTC(),
	}
}

func (row gatewayOrderRow) toDomain() fee.GatewayOrder {
	return fee.GatewayOrder{
		Reference:     row.Reference,
		StudentFeeID:  row.StudentFeeID,
		Amount:        row.Amount,
		Status:        fee.OrderStatus(row.Status),
		Token:         row.Token,
		RedirectURL:   row.RedirectURL,
		PaymentID:     row.PaymentID.String,
		TransactionID: row.TransactionID.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func fromGatewayOrder(o fee.GatewayOrder) gatewayOrderRow {
	return gatewayOrderRow{
		Reference:     o.Reference,
		StudentFeeID:  o.StudentFeeID,
		Amount:        o.Amount,
		Status:        string(o.Status),
		Token:         o.Token,
		RedirectURL:   o.RedirectURL,
		PaymentID:     nullString(o.PaymentID),
		TransactionID: nullString(o.TransactionID),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
}

type feeRepository struct {
	repository
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(exec core.DBExecutor) *feeRepository {
	return &feeRepository{repository{exec: exec}}
}

// Fee heads

func (repo feeRepository) CreateFeeHead(ctx context.Context, head fee.FeeHead, exec ...core.DBExecutor) (fee.FeeHead, error) {
	if head.ID == "" {
		head.ID = newID()
	}
	row := feeHeadRow(head)
	if _, err := execNamed(ctx, repo.getExec(exec), `INSERT INTO fee_head (`+feeHeadColumns+`) VALUES (:id, :name, :description)`, row); err != nil {
		return fee.FeeHead{}, errors.Wrap(err, "inserting fee head")
	}
	return head, nil
}

func (repo feeRepository) GetFeeHead(ctx context.Context, id string, exec ...core.DBExecutor) (fee.FeeHead, error) {
	if !isUUID(id) {
		return fee.FeeHead{}, fee.ErrFeeHeadNotFound
	}
	row, err := getRow[feeHeadRow](ctx, repo.getExec(exec), `SELECT `+feeHeadColumns+` FROM fee_head WHERE id = :id`, map[string]interface{}{"id": id})
	if err != nil {
		return fee.FeeHead{}, trapNoRowsErr(err, fee.ErrFeeHeadNotFound, "finding fee head")
	}
	return fee.FeeHead(row), nil
}

func (repo feeRepository) QueryFeeHeads(ctx context.Context, exec ...core.DBExecutor) ([]fee.FeeHead, error) {
	rows, err := selectRows[feeHeadRow](ctx, repo.getExec(exec), `SELECT `+feeHeadColumns+` FROM fee_head ORDER BY name`, map[string]interface{}{})
	if err != nil {
		return nil, errors.Wrap(err, "querying fee heads")
	}
	heads := make([]fee.FeeHead, 0, len(rows))
	for _, row := range rows {
		heads = append(heads, fee.FeeHead(row))
	}
	return heads, nil
}

// Fee structures

func (repo feeRepository) CreateFeeStructure(ctx context.Context, fs fee.FeeStructure, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	if fs.ID == "" {
		fs.ID = newID()
	}
	row := fromFeeStructure(fs)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO fee_structure (`+feeStructureColumns+`)
		VALUES (:id, :program, :fee_head_id, :academic_session, :amount, :frequency, :due_date, :late_fee, :is_active, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return fee.FeeStructure{}, errors.Wrap(err, "inserting fee structure")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) getFeeStructure(ctx context.Context, id string, lock bool, exec core.DBExecutor) (fee.FeeStructure, error) {
	if !isUUID(id) {
		return fee.FeeStructure{}, fee.ErrFeeStructureNotFound
	}
	query := `SELECT ` + feeStructureColumns + ` FROM fee_structure WHERE id = :id`
	if lock {
		query += ` FOR UPDATE`
	}
	row, err := getRow[feeStructureRow](ctx, exec, query, map[string]interface{}{"id": id})
	if err != nil {
		return fee.FeeStructure{}, trapNoRowsErr(err, fee.ErrFeeStructureNotFound, "finding fee structure")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) GetFeeStructure(ctx context.Context, id string, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	return repo.getFeeStructure(ctx, id, false, repo.getExec(exec))
}

func (repo feeRepository) LockFeeStructure(ctx context.Context, id string, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	return repo.getFeeStructure(ctx, id, true, repo.getExec(exec))
}

func (repo feeRepository) QueryFeeStructures(ctx context.Context, filter *fee.StructureFilter, exec ...core.DBExecutor) ([]fee.FeeStructure, error) {
	var where whereClause
	args := make(map[string]interface{})

	if filter != nil {
		if filter.Program != "" {
			where = append(where, "LOWER(program) = LOWER(:program)")
			args["program"] = filter.Program
		}
		if filter.AcademicSession != "" {
			where = append(where, "academic_session = :academic_session")
			args["academic_session"] = filter.AcademicSession
		}
		if filter.FeeHeadID != "" {
			if !isUUID(filter.FeeHeadID) {
				return []fee.FeeStructure{}, nil
			}
			where = append(where, "fee_head_id = :fee_head_id")
			args["fee_head_id"] = filter.FeeHeadID
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = :is_active")
			args["is_active"] = *filter.IsActive
		}
	}

	rows, err := selectRows[feeStructureRow](ctx, repo.getExec(exec),
		`SELECT `+feeStructureColumns+` FROM fee_structure`+where.String()+` ORDER BY academic_session DESC, program, created_at`,
		args,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	structures := make([]fee.FeeStructure, 0, len(rows))
	for _, row := range rows {
		structures = append(structures, row.toDomain())
	}
	return structures, nil
}

func (repo feeRepository) UpdateFeeStructure(ctx context.Context, fs fee.FeeStructure, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	row := fromFeeStructure(fs)
	res, err := execNamed(ctx, repo.getExec(exec),
		`UPDATE fee_structure SET amount = :amount, frequency = :frequency, due_date = :due_date,
		late_fee = :late_fee, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return fee.FeeStructure{}, errors.Wrap(err, "updating fee structure")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fee.FeeStructure{}, fee.ErrFeeStructureNotFound
	}
	return row.toDomain(), nil
}

func (repo feeRepository) CountStudentFees(ctx context.Context, structureID string, exec ...core.DBExecutor) (int, error) {
	var count int
	err := repo.getExec(exec).
		QueryRowContext(ctx, `SELECT COUNT(*) FROM student_fee WHERE fee_structure_id = $1`, structureID).
		Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "counting student fees")
	}
	return count, nil
}

// Student fees

func (repo feeRepository) CreateStudentFee(ctx context.Context, sf fee.StudentFee, exec ...core.DBExecutor) (fee.StudentFee, error) {
	if sf.ID == "" {
		sf.ID = newID()
	}
	row := fromStudentFee(sf)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO student_fee (`+studentFeeColumns+`)
		VALUES (:id, :student_id, :fee_structure_id, :total_amount, :discount_amount, :final_amount, :paid_amount,
			:outstanding_amount, :status, :due_date, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return fee.StudentFee{}, errors.Wrap(err, "inserting student fee")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) getStudentFee(ctx context.Context, id string, lock bool, exec core.DBExecutor) (fee.StudentFee, error) {
	if !isUUID(id) {
		return fee.StudentFee{}, fee.ErrStudentFeeNotFound
	}
	query := `SELECT ` + studentFeeColumns + ` FROM student_fee WHERE id = :id`
	if lock {
		query += ` FOR UPDATE`
	}
	row, err := getRow[studentFeeRow](ctx, exec, query, map[string]interface{}{"id": id})
	if err != nil {
		return fee.StudentFee{}, trapNoRowsErr(err, fee.ErrStudentFeeNotFound, "finding student fee")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) GetStudentFee(ctx context.Context, id string, exec ...core.DBExecutor) (fee.StudentFee, error) {
	return repo.getStudentFee(ctx, id, false, repo.getExec(exec))
}

func (repo feeRepository) LockStudentFee(ctx context.Context, id string, exec ...core.DBExecutor) (fee.StudentFee, error) {
	return repo.getStudentFee(ctx, id, true, repo.getExec(exec))
}

func (repo feeRepository) StudentFeeExists(ctx context.Context, studentID, structureID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := repo.getExec(exec).
		QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM student_fee WHERE student_id = $1 AND fee_structure_id = $2)`,
			studentID, structureID).
		Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking student fee")
	}
	return exists, nil
}

func (repo feeRepository) QueryStudentFees(ctx context.Context, filter *fee.StudentFeeFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]fee.StudentFee, error) {
	var where whereClause
	args := make(map[string]interface{})

	if filter != nil {
		if filter.StudentID != "" {
			if !isUUID(filter.StudentID) {
				return []fee.StudentFee{}, nil
			}
			where = append(where, "student_id = :student_id")
			args["student_id"] = filter.StudentID
		}
		if filter.FeeStructureID != "" {
			if !isUUID(filter.FeeStructureID) {
				return []fee.StudentFee{}, nil
			}
			where = append(where, "fee_structure_id = :fee_structure_id")
			args["fee_structure_id"] = filter.FeeStructureID
		}
		if len(filter.Statuses) > 0 {
			statuses := make(pq.StringArray, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			where = append(where, "status = ANY(:statuses)")
			args["statuses"] = statuses
		}
		if filter.Overdue {
			where = append(where, "outstanding_amount > 0 AND due_date < :today")
			args["today"] = core.Today()
		}
	}

	rows, err := selectRows[studentFeeRow](ctx, repo.getExec(exec),
		`SELECT `+studentFeeColumns+` FROM student_fee`+where.String()+orderBy(ordering, studentFeeOrderings, "created_at DESC"),
		args,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying student fees")
	}
	fees := make([]fee.StudentFee, 0, len(rows))
	for _, row := range rows {
		fees = append(fees, row.toDomain())
	}
	return fees, nil
}

func (repo feeRepository) UpdateStudentFeeAmounts(ctx context.Context, sf fee.StudentFee, exec ...core.DBExecutor) (fee.StudentFee, error) {
	row := fromStudentFee(sf)
	res, err := execNamed(ctx, repo.getExec(exec),
		`UPDATE student_fee SET paid_amount = :paid_amount, outstanding_amount = :outstanding_amount,
		status = :status, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return fee.StudentFee{}, errors.Wrap(err, "updating student fee")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fee.StudentFee{}, fee.ErrStudentFeeNotFound
	}
	return row.toDomain(), nil
}

// Payments

func (repo feeRepository) NextReceiptSequence(ctx context.Context, exec ...core.DBExecutor) (int64, error) {
	var seq int64
	if err := repo.getExec(exec).QueryRowContext(ctx, `SELECT nextval('fee_receipt_seq')`).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "reading receipt sequence")
	}
	return seq, nil
}

func (repo feeRepository) CreatePayment(ctx context.Context, p fee.FeePayment, exec ...core.DBExecutor) (fee.FeePayment, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	row := fromPayment(p)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO fee_payment (`+paymentColumns+`)
		VALUES (:id, :student_fee_id, :amount, :payment_date, :payment_method, :transaction_id, :receipt_number,
			:status, :remarks, :recorded_by, :created_at)`,
		row,
	)
	if err != nil {
		return fee.FeePayment{}, errors.Wrap(err, "inserting payment")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (fee.FeePayment, error) {
	if !isUUID(id) {
		return fee.FeePayment{}, fee.ErrPaymentNotFound
	}
	row, err := getRow[paymentRow](ctx, repo.getExec(exec), `SELECT `+paymentColumns+` FROM fee_payment WHERE id = :id`, map[string]interface{}{"id": id})
	if err != nil {
		return fee.FeePayment{}, trapNoRowsErr(err, fee.ErrPaymentNotFound, "finding payment")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) GetPaymentByReceipt(ctx context.Context, receiptNumber string, exec ...core.DBExecutor) (fee.FeePayment, error) {
	row, err := getRow[paymentRow](ctx, repo.getExec(exec),
		`SELECT `+paymentColumns+` FROM fee_payment WHERE receipt_number = :receipt_number`,
		map[string]interface{}{"receipt_number": receiptNumber},
	)
	if err != nil {
		return fee.FeePayment{}, trapNoRowsErr(err, fee.ErrPaymentNotFound, "finding payment by receipt")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) QueryPayments(ctx context.Context, filter *fee.PaymentFilter, exec ...core.DBExecutor) ([]fee.FeePayment, error) {
	var where whereClause
	args := make(map[string]interface{})

	if filter != nil {
		if filter.StudentID != "" {
			if !isUUID(filter.StudentID) {
				return []fee.FeePayment{}, nil
			}
			where = append(where, "student_fee_id IN (SELECT id FROM student_fee WHERE student_id = :student_id)")
			args["student_id"] = filter.StudentID
		}
		if filter.StudentFeeID != "" {
			if !isUUID(filter.StudentFeeID) {
				return []fee.FeePayment{}, nil
			}
			where = append(where, "student_fee_id = :student_fee_id")
			args["student_fee_id"] = filter.StudentFeeID
		}
		if len(filter.Methods) > 0 {
			methods := make(pq.StringArray, 0, len(filter.Methods))
			for _, m := range filter.Methods {
				methods = append(methods, string(m))
			}
			where = append(where, "payment_method = ANY(:methods)")
			args["methods"] = methods
		}
		if !filter.From.IsZero() {
			where = append(where, "payment_date >= :from")
			args["from"] = core.TruncateDay(filter.From)
		}
		if !filter.To.IsZero() {
			where = append(where, "payment_date <= :to")
			args["to"] = core.TruncateDay(filter.To)
		}
	}

	rows, err := selectRows[paymentRow](ctx, repo.getExec(exec),
		`SELECT `+paymentColumns+` FROM fee_payment`+where.String()+` ORDER BY created_at`,
		args,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	pmts := make([]fee.FeePayment, 0, len(rows))
	for _, row := range rows {
		pmts = append(pmts, row.toDomain())
	}
	return pmts, nil
}

// Gateway orders

func (repo feeRepository) CreateGatewayOrder(ctx context.Context, order fee.GatewayOrder, exec ...core.DBExecutor) (fee.GatewayOrder, error) {
	row := fromGatewayOrder(order)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO gateway_order (`+gatewayOrderColumns+`)
		VALUES (:reference, :student_fee_id, :amount, :status, :token, :redirect_url, :payment_id, :transaction_id,
			:created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return fee.GatewayOrder{}, errors.Wrap(err, "inserting gateway order")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) LockGatewayOrder(ctx context.Context, reference string, exec ...core.DBExecutor) (fee.GatewayOrder, error) {
	row, err := getRow[gatewayOrderRow](ctx, repo.getExec(exec),
		`SELECT `+gatewayOrderColumns+` FROM gateway_order WHERE reference = :reference FOR UPDATE`,
		map[string]interface{}{"reference": reference},
	)
	if err != nil {
		return fee.GatewayOrder{}, trapNoRowsErr(err, fee.ErrOrderNotFound, "finding gateway order")
	}
	return row.toDomain(), nil
}

func (repo feeRepository) UpdateGatewayOrder(ctx context.Context, order fee.GatewayOrder, exec ...core.DBExecutor) (fee.GatewayOrder, error) {
	row := fromGatewayOrder(order)
	res, err := execNamed(ctx, repo.getExec(exec),
		`UPDATE gateway_order SET status = :status, payment_id = :payment_id, transaction_id = :transaction_id,
		updated_at = :updated_at
		WHERE reference = :reference`,
		row,
	)
	if err != nil {
		return fee.GatewayOrder{}, errors.Wrap(err, "updating gateway order")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fee.GatewayOrder{}, fee.ErrOrderNotFound
	}
	return row.toDomain(), nil
}

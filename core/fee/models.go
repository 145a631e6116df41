package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
)

type (
	Status        string
	PaymentMethod string
	PaymentStatus string
	Frequency     string
	OrderStatus   string
)

// StudentFee statuses
const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// Payment methods
const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodUPI          PaymentMethod = "upi"
	MethodNetBanking   PaymentMethod = "net_banking"
	MethodCheque       PaymentMethod = "cheque"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	// MethodOnline is only set on payments confirmed by the payment gateway.
	MethodOnline PaymentMethod = "online"
)

// FeePayment statuses
const (
	PaymentSuccess PaymentStatus = "success"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

const (
	FrequencyOneTime   Frequency = "one_time"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyTermly    Frequency = "termly"
	FrequencyAnnually  Frequency = "annually"
)

// GatewayOrder statuses
const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

var (
	// ManualMethods may be used when recording a payment by hand.
	ManualMethods = []PaymentMethod{MethodCash, MethodCard, MethodUPI, MethodNetBanking, MethodCheque, MethodBankTransfer}
	Frequencies   = []Frequency{FrequencyOneTime, FrequencyMonthly, FrequencyQuarterly, FrequencyTermly, FrequencyAnnually}
)

func (m PaymentMethod) IsManual() bool {
	for _, mm := range ManualMethods {
		if m == mm {
			return true
		}
	}
	return false
}

func (f Frequency) IsValid() bool {
	for _, ff := range Frequencies {
		if f == ff {
			return true
		}
	}
	return false
}

// ComputeOutstanding returns final - paid, never below zero.
func ComputeOutstanding(final, paid decimal.Decimal) decimal.Decimal {
	out := final.Sub(paid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// DeriveStatus returns the StudentFee status matching the amounts:
// paid once nothing is outstanding (including a fully discounted fee), pending while nothing is paid,
// partial otherwise.
func DeriveStatus(final, paid decimal.Decimal) Status {
	switch {
	case ComputeOutstanding(final, paid).IsZero():
		return StatusPaid
	case !paid.IsPositive():
		return StatusPending
	default:
		return StatusPartial
	}
}

type FeeHead struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FeeStructure is the fee a program is charged for a fee head during an academic session.
type FeeStructure struct {
	ID              string          `json:"id"`
	Program         string          `json:"program"`
	FeeHeadID       string          `json:"fee_head_id"`
	AcademicSession string          `json:"academic_session"`
	Amount          decimal.Decimal `json:"amount"`
	Frequency       Frequency       `json:"frequency"`
	DueDate         time.Time       `json:"due_date"`
	LateFee         decimal.Decimal `json:"late_fee"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StudentFee is a fee obligation assigned to one student from one FeeStructure.
type StudentFee struct {
	ID                string          `json:"id"`
	StudentID         string          `json:"student_id"`
	FeeStructureID    string          `json:"fee_structure_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	FinalAmount       decimal.Decimal `json:"final_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	Status            Status          `json:"status"`
	DueDate           time.Time       `json:"due_date"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Recalculate derives FinalAmount, OutstandingAmount & Status from the total, discount & paid amounts.
func (sf *StudentFee) Recalculate() {
	sf.FinalAmount = sf.TotalAmount.Sub(sf.DiscountAmount)
	sf.OutstandingAmount = ComputeOutstanding(sf.FinalAmount, sf.PaidAmount)
	sf.Status = DeriveStatus(sf.FinalAmount, sf.PaidAmount)
}

func (sf StudentFee) IsOverdue(today time.Time) bool {
	return sf.OutstandingAmount.IsPositive() && core.TruncateDay(sf.DueDate).Before(core.TruncateDay(today))
}

type FeePayment struct {
	ID            string          `json:"id"`
	StudentFeeID  string          `json:"student_fee_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	Method        PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	ReceiptNumber string          `json:"receipt_number"`
	Status        PaymentStatus   `json:"status"`
	Remarks       string          `json:"remarks,omitempty"`
	RecordedBy    string          `json:"recorded_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GatewayOrder is an online checkout started with the payment gateway.
// It becomes a FeePayment once the gateway confirms it.
type GatewayOrder struct {
	Reference     string          `json:"reference"`
	StudentFeeID  string          `json:"student_fee_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        OrderStatus     `json:"status"`
	Token         string          `json:"token,omitempty"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	PaymentID     string          `json:"payment_id,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Receipt is the outcome of a recorded payment.
type Receipt struct {
	Payment    FeePayment `json:"payment"`
	StudentFee StudentFee `json:"student_fee"`
}

// NewPayment contains information needed to record a payment against a StudentFee.
type NewPayment struct {
	StudentFeeID  string          `json:"student_fee_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	PaymentDate   time.Time       `json:"payment_date" validate:"notfuture"`
	Method        PaymentMethod   `json:"payment_method" validate:"required,paymentmethod"`
	TransactionID string          `json:"transaction_id" validate:"max=100"`
	Remarks       string          `json:"remarks" validate:"max=500"`
	RecordedBy    string          `json:"-"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentFeeID = core.CleanString(np.StudentFeeID)
	np.Method = PaymentMethod(core.CleanString(string(np.Method), true /* lower */))
	np.TransactionID = core.CleanString(np.TransactionID)
	np.Remarks = core.CleanString(np.Remarks)
	if np.PaymentDate.IsZero() {
		np.PaymentDate = core.Today()
	}
	return validate.Struct(np)
}

// ExternalPayment is a payment confirmation received from the payment gateway.
type ExternalPayment struct {
	OrderReference string
	TransactionID  string
	Amount         decimal.Decimal
}

type NewCheckout struct {
	StudentFeeID string          `json:"student_fee_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"money"`
}

func (nc *NewCheckout) Validate(validate *validator.Validate) error {
	nc.StudentFeeID = core.CleanString(nc.StudentFeeID)
	return validate.Struct(nc)
}

type NewFeeHead struct {
	Name        string `json:"name" yaml:"name" validate:"required,max=100"`
	Description string `json:"description" yaml:"description"`
}

func (nh *NewFeeHead) Validate(validate *validator.Validate) error {
	nh.Name = core.CleanString(nh.Name)
	nh.Description = core.CleanString(nh.Description)
	return validate.Struct(nh)
}

type NewFeeStructure struct {
	Program         string          `json:"program" validate:"required,max=50"`
	FeeHeadID       string          `json:"fee_head_id" validate:"required"`
	AcademicSession string          `json:"academic_session" validate:"required,max=20"`
	Amount          decimal.Decimal `json:"amount" validate:"money"`
	Frequency       Frequency       `json:"frequency" validate:"required,frequency"`
	DueDate         time.Time       `json:"due_date" validate:"required"`
	LateFee         decimal.Decimal `json:"late_fee" validate:"money0"`
}

func (ns *NewFeeStructure) Validate(validate *validator.Validate) error {
	ns.Program = core.CleanString(ns.Program)
	ns.FeeHeadID = core.CleanString(ns.FeeHeadID)
	ns.AcademicSession = core.CleanString(ns.AcademicSession)
	ns.Frequency = Frequency(core.CleanString(string(ns.Frequency), true /* lower */))
	return validate.Struct(ns)
}

// UpdateFeeStructure defines what may change on an existing FeeStructure.
// Only IsActive may change once the structure has been assigned to students.
type UpdateFeeStructure struct {
	Amount    *decimal.Decimal `json:"amount" validate:"omitempty,money"`
	Frequency *Frequency       `json:"frequency" validate:"omitempty,frequency"`
	DueDate   *time.Time       `json:"due_date"`
	LateFee   *decimal.Decimal `json:"late_fee" validate:"omitempty,money0"`
	IsActive  *bool            `json:"is_active"`
}

func (us UpdateFeeStructure) changesTerms() bool {
	return us.Amount != nil || us.Frequency != nil || us.DueDate != nil || us.LateFee != nil
}

type StudentAssignment struct {
	StudentID string          `json:"student_id" yaml:"student_id" validate:"required"`
	Discount  decimal.Decimal `json:"discount" yaml:"discount" validate:"money0"`
}

// AssignFees assigns a FeeStructure to students.
// When Students is empty, every active student of the structure's program is assigned.
type AssignFees struct {
	FeeStructureID string              `json:"fee_structure_id" validate:"required"`
	Students       []StudentAssignment `json:"students" validate:"dive"`
}

func (af *AssignFees) Validate(validate *validator.Validate) error {
	af.FeeStructureID = core.CleanString(af.FeeStructureID)
	for i := range af.Students {
		af.Students[i].StudentID = core.CleanString(af.Students[i].StudentID)
	}
	return validate.Struct(af)
}

type AssignResult struct {
	Created []StudentFee `json:"created"`
	Skipped []string     `json:"skipped"` // IDs of students already assigned
}

type StructureFilter struct {
	Program         string `query:"program"`
	AcademicSession string `query:"academic_session"`
	FeeHeadID       string `query:"fee_head_id"`
	IsActive        *bool  `query:"is_active"`
}

func (sf *StructureFilter) Clean() {
	sf.Program = core.CleanString(sf.Program)
	sf.AcademicSession = core.CleanString(sf.AcademicSession)
	sf.FeeHeadID = core.CleanString(sf.FeeHeadID)
}

type StudentFeeFilter struct {
	StudentID      string   `query:"student_id"`
	FeeStructureID string   `query:"fee_structure_id"`
	Statuses       []Status `query:"status"`
	// Overdue only keeps fees with an outstanding amount past their due date.
	Overdue bool `query:"overdue"`
}

func (sf *StudentFeeFilter) Clean() {
	sf.StudentID = core.CleanString(sf.StudentID)
	sf.FeeStructureID = core.CleanString(sf.FeeStructureID)
}

type PaymentFilter struct {
	StudentID    string          `query:"student_id"`
	StudentFeeID string          `query:"student_fee_id"`
	Methods      []PaymentMethod `query:"method"`
	// From & To bound the payment date, both inclusive
	From time.Time
	To   time.Time
}

func (pf *PaymentFilter) Clean() {
	pf.StudentID = core.CleanString(pf.StudentID)
	pf.StudentFeeID = core.CleanString(pf.StudentFeeID)
}

// Statement summarises the fees & payments of one student.
type Statement struct {
	StudentID        string          `json:"student_id"`
	StudentName      string          `json:"student_name"`
	Program          string          `json:"program"`
	Fees             []StudentFee    `json:"fees"`
	Payments         []FeePayment    `json:"payments"`
	TotalFinal       decimal.Decimal `json:"total_final"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	OverdueCount     int             `json:"overdue_count"`
}

// LedgerEntry is a StudentFee with the names needed to present it.
type LedgerEntry struct {
	StudentFee
	StudentName     string `json:"student_name"`
	Program         string `json:"program"`
	FeeHead         string `json:"fee_head"`
	AcademicSession string `json:"academic_session"`
}

// ReceiptDocument holds everything printed on a payment receipt.
type ReceiptDocument struct {
	SchoolName      string
	Currency        string
	Payment         FeePayment
	StudentFee      StudentFee
	StudentName     string
	Program         string
	FeeHead         string
	AcademicSession string
}

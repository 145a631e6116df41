package fee

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/user"
)

var (
	// errors
	ErrFeeHeadNotFound      = core.NewNotFoundError("fee head")
	ErrFeeStructureNotFound = core.NewNotFoundError("fee structure")
	ErrStudentFeeNotFound   = core.NewNotFoundError("student fee")
	ErrPaymentNotFound      = core.NewNotFoundError("payment")
	ErrOrderNotFound        = core.NewNotFoundError("gateway order")

	ErrExceedsOutstanding   = errors.New("payment exceeds outstanding amount")
	ErrAmountMismatch       = errors.New("confirmed amount does not match the order amount")
	ErrOrderClosed          = errors.New("gateway order is no longer open")
	ErrGatewayDisabled      = errors.New("online payments are not enabled")
	ErrFeeHeadExists        = errors.New("a fee head with this name already exists")
	ErrStructureExists      = errors.New("a fee structure for this program, fee head and session already exists")
	ErrStructureInUse       = errors.New("fee structure is already assigned to students, only is_active can change")
	ErrStructureInactive    = errors.New("fee structure is not active")
	ErrDiscountExceedsTotal = errors.New("discount cannot exceed the fee amount")
	ErrNotAStudent          = errors.New("user is not an active student of this program")
)

type (
	Repository interface {
		CreateFeeHead(ctx context.Context, head FeeHead, exec ...core.DBExecutor) (FeeHead, error)
		GetFeeHead(ctx context.Context, id string, exec ...core.DBExecutor) (FeeHead, error)
		QueryFeeHeads(ctx context.Context, exec ...core.DBExecutor) ([]FeeHead, error)

		CreateFeeStructure(ctx context.Context, fs FeeStructure, exec ...core.DBExecutor) (FeeStructure, error)
		GetFeeStructure(ctx context.Context, id string, exec ...core.DBExecutor) (FeeStructure, error)
		// LockFeeStructure fetches a FeeStructure and locks it until the enclosing transaction ends.
		LockFeeStructure(ctx context.Context, id string, exec ...core.DBExecutor) (FeeStructure, error)
		QueryFeeStructures(ctx context.Context, filter *StructureFilter, exec ...core.DBExecutor) ([]FeeStructure, error)
		UpdateFeeStructure(ctx context.Context, fs FeeStructure, exec ...core.DBExecutor) (FeeStructure, error)
		CountStudentFees(ctx context.Context, structureID string, exec ...core.DBExecutor) (int, error)

		CreateStudentFee(ctx context.Context, sf StudentFee, exec ...core.DBExecutor) (StudentFee, error)
		GetStudentFee(ctx context.Context, id string, exec ...core.DBExecutor) (StudentFee, error)
		// LockStudentFee fetches a StudentFee and locks it until the enclosing transaction ends.
		LockStudentFee(ctx context.Context, id string, exec ...core.DBExecutor) (StudentFee, error)
		StudentFeeExists(ctx context.Context, studentID, structureID string, exec ...core.DBExecutor) (bool, error)
		QueryStudentFees(ctx context.Context, filter *StudentFeeFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]StudentFee, error)
		// UpdateStudentFeeAmounts persists the paid, outstanding & status columns.
		UpdateStudentFeeAmounts(ctx context.Context, sf StudentFee, exec ...core.DBExecutor) (StudentFee, error)

		NextReceiptSequence(ctx context.Context, exec ...core.DBExecutor) (int64, error)
		CreatePayment(ctx context.Context, p FeePayment, exec ...core.DBExecutor) (FeePayment, error)
		GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (FeePayment, error)
		GetPaymentByReceipt(ctx context.Context, receiptNumber string, exec ...core.DBExecutor) (FeePayment, error)
		QueryPayments(ctx context.Context, filter *PaymentFilter, exec ...core.DBExecutor) ([]FeePayment, error)

		CreateGatewayOrder(ctx context.Context, order GatewayOrder, exec ...core.DBExecutor) (GatewayOrder, error)
		// LockGatewayOrder fetches a GatewayOrder and locks it until the enclosing transaction ends.
		LockGatewayOrder(ctx context.Context, reference string, exec ...core.DBExecutor) (GatewayOrder, error)
		UpdateGatewayOrder(ctx context.Context, order GatewayOrder, exec ...core.DBExecutor) (GatewayOrder, error)
	}

	// StudentDirectory looks up the students fees are assigned to.
	StudentDirectory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		QueryStudents(ctx context.Context, program string) ([]user.User, error)
	}

	// Checkout is what the payer needs to complete an online payment.
	Checkout struct {
		Token       string
		RedirectURL string
	}

	// Gateway is any online payment provider.
	Gateway interface {
		CreateCheckout(ctx context.Context, order GatewayOrder, student user.User) (Checkout, error)
	}

	// ReceiptRenderer renders a printable receipt (e.g. PDF).
	ReceiptRenderer interface {
		RenderReceipt(doc ReceiptDocument) ([]byte, error)
		ContentType() string
	}

	// Recorder collects ledger metrics.
	Recorder interface {
		PaymentRecorded(method PaymentMethod, amount decimal.Decimal)
		PaymentRejected(reason string)
		GatewayNotification(outcome string)
		FeesAssigned(count int)
	}

	Deps struct {
		Conf     *core.Config
		Logger   core.Logger
		TxRunner core.TxRunner
		Repo     Repository
		Students StudentDirectory
		Validate *validator.Validate

		// optional
		MailSvc  core.EmailService
		Gateway  Gateway
		Receipts ReceiptRenderer
		Recorder Recorder
	}

	Service struct {
		conf     *core.Config
		logger   core.Logger
		txr      core.TxRunner
		repo     Repository
		students StudentDirectory
		validate *validator.Validate
		mailSvc  core.EmailService
		gateway  Gateway
		receipts ReceiptRenderer
		recorder Recorder
	}
)

func NewService(deps Deps) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.TxRunner, "TxRunner"),
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Students, "Students"),
		vala.IsNotNil(deps.Validate, "Validate"),
	).Check()
	if err != nil {
		return nil, err
	}

	svc := &Service{
		conf:     deps.Conf,
		logger:   deps.Logger,
		txr:      deps.TxRunner,
		repo:     deps.Repo,
		students: deps.Students,
		validate: deps.Validate,
		mailSvc:  deps.MailSvc,
		gateway:  deps.Gateway,
		receipts: deps.Receipts,
		recorder: deps.Recorder,
	}
	if svc.recorder == nil {
		svc.recorder = nopRecorder{}
	}
	return svc, nil
}

type nopRecorder struct{}

func (nopRecorder) PaymentRecorded(PaymentMethod, decimal.Decimal) {}
func (nopRecorder) PaymentRejected(string)                         {}
func (nopRecorder) GatewayNotification(string)                     {}
func (nopRecorder) FeesAssigned(int)                               {}

// rejectReason buckets a RecordPayment error for metrics.
func rejectReason(err error) string {
	switch {
	case core.IsNotFound(err):
		return "not_found"
	case isValidationErr(err):
		return "invalid"
	default:
		return "error"
	}
}

func isValidationErr(err error) bool {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	var fErrs validator.ValidationErrors
	return errors.As(err, &fErrs)
}

func fieldErr(err error, field string) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

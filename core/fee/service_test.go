package fee_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	emailsvc "github.com/trezcool/masomo-fees/services/email"
	exportsvc "github.com/trezcool/masomo-fees/services/export"
	"github.com/trezcool/masomo-fees/storage/database/dummy"
	"github.com/trezcool/masomo-fees/tests"
)

type recorderMock struct {
	mu            sync.Mutex
	recorded      int
	rejected      map[string]int
	notifications map[string]int
	assigned      int
}

func newRecorderMock() *recorderMock {
	return &recorderMock{rejected: make(map[string]int), notifications: make(map[string]int)}
}

func (r *recorderMock) PaymentRecorded(fee.PaymentMethod, decimal.Decimal) {
	r.mu.Lock()
	r.recorded++
	r.mu.Unlock()
}

func (r *recorderMock) PaymentRejected(reason string) {
	r.mu.Lock()
	r.rejected[reason]++
	r.mu.Unlock()
}

func (r *recorderMock) GatewayNotification(outcome string) {
	r.mu.Lock()
	r.notifications[outcome]++
	r.mu.Unlock()
}

func (r *recorderMock) FeesAssigned(count int) {
	r.mu.Lock()
	r.assigned += count
	r.mu.Unlock()
}

type gatewayMock struct {
	err    error
	orders []fee.GatewayOrder
}

func (g *gatewayMock) CreateCheckout(_ context.Context, order fee.GatewayOrder, _ user.User) (fee.Checkout, error) {
	if g.err != nil {
		return fee.Checkout{}, g.err
	}
	g.orders = append(g.orders, order)
	return fee.Checkout{Token: "tok-" + order.Reference, RedirectURL: "https://pay.test/" + order.Reference}, nil
}

// hookedTxRunner runs `before` ahead of every transaction, standing in for a concurrent writer.
type hookedTxRunner struct {
	core.TxRunner
	before func()
}

func (r hookedTxRunner) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	r.before()
	return r.TxRunner.RunInTx(ctx, fn)
}

type fixture struct {
	db       *dummydb.DB
	repo     fee.Repository
	usrRepo  user.Repository
	svc      *fee.Service
	mailSvc  *emailsvc.ConsoleServiceMock
	gateway  *gatewayMock
	recorder *recorderMock
}

func setup(t *testing.T) *fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	validate, _ := testutil.NewValidator()
	core.ParseEmailTemplates(conf, logger)

	db := dummydb.Open()
	f := &fixture{
		db:       db,
		repo:     dummydb.NewFeeRepository(db),
		usrRepo:  dummydb.NewUserRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
		gateway:  &gatewayMock{},
		recorder: newRecorderMock(),
	}

	svc, err := fee.NewService(fee.Deps{
		Conf:     conf,
		Logger:   logger,
		TxRunner: db,
		Repo:     f.repo,
		Students: user.NewService(f.usrRepo),
		Validate: validate,
		MailSvc:  f.mailSvc,
		Gateway:  f.gateway,
		Receipts: exportsvc.NewPDFReceipts(),
		Recorder: f.recorder,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// studentFee creates a student of BSc with a fee of `amount`.
func (f *fixture) studentFee(t *testing.T, amount string) (user.User, fee.StudentFee) {
	student := testutil.CreateStudent(t, f.usrRepo, "Asha Rao", "asha", "BSc")
	fs := testutil.CreateFeeStructure(t, f.repo, "BSc", "Tuition", amount)
	return student, testutil.CreateStudentFee(t, f.repo, student.ID, fs, "0")
}

func cash(sfID, amount string) fee.NewPayment {
	return fee.NewPayment{StudentFeeID: sfID, Amount: decimal.RequireFromString(amount), Method: fee.MethodCash}
}

func fieldErrors(t *testing.T, err error) map[string]bool {
	t.Helper()
	fields := make(map[string]bool)

	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		for _, f := range vErr.Fields {
			fields[f.Field] = true
		}
		return fields
	}
	var fErrs validator.ValidationErrors
	require.True(t, errors.As(err, &fErrs), "not a validation error: %v", err)
	for _, fe := range fErrs {
		fields[fe.Field()] = true
	}
	return fields
}

func TestNewService(t *testing.T) {
	_, err := fee.NewService(fee.Deps{})
	assert.Error(t, err)
}

func TestService_RecordPayment_Scenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "5000")

	assert.Equal(t, fee.StatusPending, sf.Status)
	testutil.AssertDecimal(t, "5000", sf.OutstandingAmount)

	// partial
	rcpt, err := f.svc.RecordPayment(ctx, cash(sf.ID, "2000"))
	require.NoError(t, err)
	assert.Equal(t, fee.StatusPartial, rcpt.StudentFee.Status)
	testutil.AssertDecimal(t, "2000", rcpt.StudentFee.PaidAmount)
	testutil.AssertDecimal(t, "3000", rcpt.StudentFee.OutstandingAmount)
	assert.Equal(t, fee.PaymentSuccess, rcpt.Payment.Status)
	assert.Equal(t, core.Today(), rcpt.Payment.PaymentDate)
	first := rcpt.Payment.ReceiptNumber

	// paid
	upi := fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.RequireFromString("3000"), Method: fee.MethodUPI, TransactionID: "UPI-1"}
	rcpt, err = f.svc.RecordPayment(ctx, upi)
	require.NoError(t, err)
	assert.Equal(t, fee.StatusPaid, rcpt.StudentFee.Status)
	testutil.AssertDecimal(t, "5000", rcpt.StudentFee.PaidAmount)
	testutil.AssertDecimal(t, "0", rcpt.StudentFee.OutstandingAmount)
	assert.NotEqual(t, first, rcpt.Payment.ReceiptNumber)
	assert.Equal(t, "UPI-1", rcpt.Payment.TransactionID)

	// nothing left to pay
	_, err = f.svc.RecordPayment(ctx, cash(sf.ID, "1"))
	require.Error(t, err)
	assert.Equal(t, fee.ErrExceedsOutstanding, errors.Cause(err).(*core.ValidationError).Err)
	assert.True(t, fieldErrors(t, err)["amount"])

	stored, err := f.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "5000", stored.PaidAmount)
	assert.Equal(t, fee.StatusPaid, stored.Status)

	pmts, err := f.svc.QueryPayments(ctx, &fee.PaymentFilter{StudentFeeID: sf.ID})
	require.NoError(t, err)
	assert.Len(t, pmts, 2)

	assert.Equal(t, 2, f.recorder.recorded)
	assert.Equal(t, 1, f.recorder.rejected["invalid"])

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "asha@masomo.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, first)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "application/pdf", sent[0].Attachments[0].ContentType)
}

func TestService_RecordPayment_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "5000")

	tests := []struct {
		name      string
		np        fee.NewPayment
		wantField string
	}{
		{"zero amount", cash(sf.ID, "0"), "amount"},
		{"negative amount", cash(sf.ID, "-10"), "amount"},
		{"too many decimals", cash(sf.ID, "10.001"), "amount"},
		{"above maximum", cash(sf.ID, "10000000"), "amount"},
		{"future date", fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(10), Method: fee.MethodCash, PaymentDate: core.Today().AddDate(0, 0, 1)}, "payment_date"},
		{"unknown method", fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(10), Method: "crypto"}, "payment_method"},
		{"online by hand", fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(10), Method: fee.MethodOnline, TransactionID: "x"}, "payment_method"},
		{"card without transaction", fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(10), Method: fee.MethodCard}, "transaction_id"},
		{"missing student fee", cash("", "10"), "student_fee_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordPayment(ctx, tt.np)
			require.Error(t, err)
			assert.True(t, fieldErrors(t, err)[tt.wantField], "want error on %s, got %v", tt.wantField, err)
		})
	}

	t.Run("unknown student fee", func(t *testing.T) {
		_, err := f.svc.RecordPayment(ctx, cash("nope", "10"))
		assert.True(t, core.IsNotFound(err))
		assert.Equal(t, 1, f.recorder.rejected["not_found"])
	})

	t.Run("method is case-insensitive", func(t *testing.T) {
		rcpt, err := f.svc.RecordPayment(ctx, fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(10), Method: " CASH "})
		require.NoError(t, err)
		assert.Equal(t, fee.MethodCash, rcpt.Payment.Method)
	})

	t.Run("past date", func(t *testing.T) {
		date := core.Today().AddDate(0, 0, -3)
		rcpt, err := f.svc.RecordPayment(ctx, fee.NewPayment{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(10), Method: fee.MethodCash, PaymentDate: date})
		require.NoError(t, err)
		assert.Equal(t, date, rcpt.Payment.PaymentDate)
	})
}

func TestService_RecordPayment_Outstanding(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "5000")
	_, err := f.svc.RecordPayment(ctx, cash(sf.ID, "2000"))
	require.NoError(t, err)

	tests := []struct {
		name            string
		amount          string
		wantErr         error
		wantPaid        string
		wantOutstanding string
		wantStatus      fee.Status
	}{
		{"one cent over", "3000.01", fee.ErrExceedsOutstanding, "2000", "3000", fee.StatusPartial},
		{"exact outstanding", "3000", nil, "5000", "0", fee.StatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordPayment(ctx, cash(sf.ID, tt.amount))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, errors.Cause(err).(*core.ValidationError).Err)
				assert.True(t, fieldErrors(t, err)["amount"])
			} else {
				require.NoError(t, err)
			}

			stored, err := f.svc.GetStudentFee(ctx, sf.ID)
			require.NoError(t, err)
			testutil.AssertDecimal(t, tt.wantPaid, stored.PaidAmount)
			testutil.AssertDecimal(t, tt.wantOutstanding, stored.OutstandingAmount)
			assert.Equal(t, tt.wantStatus, stored.Status)
		})
	}

	pmts, err := f.svc.QueryPayments(ctx, &fee.PaymentFilter{StudentFeeID: sf.ID})
	require.NoError(t, err)
	assert.Len(t, pmts, 2)
}

func TestService_RecordPayment_Concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "3000")

	const n = 2
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.RecordPayment(ctx, cash(sf.ID, "3000"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, 1)
	assert.Equal(t, fee.ErrExceedsOutstanding, errors.Cause(failures[0]).(*core.ValidationError).Err)

	stored, err := f.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "3000", stored.PaidAmount)
	testutil.AssertDecimal(t, "0", stored.OutstandingAmount)
	assert.Equal(t, fee.StatusPaid, stored.Status)

	pmts, err := f.svc.QueryPayments(ctx, &fee.PaymentFilter{StudentFeeID: sf.ID})
	require.NoError(t, err)
	assert.Len(t, pmts, 1)
}

func TestService_RecordPayment_ReceiptsUnique(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "1000")

	var wg sync.WaitGroup
	receipts := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rcpt, err := f.svc.RecordPayment(ctx, cash(sf.ID, "100"))
			if assert.NoError(t, err) {
				receipts <- rcpt.Payment.ReceiptNumber
			}
		}()
	}
	wg.Wait()
	close(receipts)

	seen := make(map[string]bool)
	for r := range receipts {
		assert.False(t, seen[r], "duplicate receipt %s", r)
		assert.True(t, strings.HasPrefix(r, "RCP-"))
		seen[r] = true
	}
	assert.Len(t, seen, 10)
}

func TestService_RecordPaymentTx(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "5000")

	// the caller's transaction fails after the payment: nothing is kept
	errAbort := errors.New("abort")
	err := f.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		rcpt, err := f.svc.RecordPaymentTx(ctx, exec, cash(sf.ID, "2000"))
		require.NoError(t, err)
		assert.Equal(t, fee.StatusPartial, rcpt.StudentFee.Status)
		return errAbort
	})
	assert.Equal(t, errAbort, err)

	stored, err := f.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "0", stored.PaidAmount)
	assert.Equal(t, fee.StatusPending, stored.Status)

	pmts, err := f.svc.QueryPayments(ctx, &fee.PaymentFilter{StudentFeeID: sf.ID})
	require.NoError(t, err)
	assert.Empty(t, pmts)
	assert.Empty(t, f.mailSvc.SentMessages())

	// two payments in one transaction see each other
	err = f.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := f.svc.RecordPaymentTx(ctx, exec, cash(sf.ID, "4000")); err != nil {
			return err
		}
		_, err := f.svc.RecordPaymentTx(ctx, exec, cash(sf.ID, "1001"))
		return err
	})
	require.Error(t, err)
	stored, err = f.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "0", stored.PaidAmount)
}

func TestService_StudentStatement(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	student, sf := f.studentFee(t, "5000")

	fs := testutil.CreateFeeStructure(t, f.repo, "BSc", "Library", "800")
	lib := testutil.CreateStudentFee(t, f.repo, student.ID, fs, "300")
	_, err := f.svc.RecordPayment(ctx, cash(sf.ID, "1500"))
	require.NoError(t, err)

	stmt, err := f.svc.StudentStatement(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", stmt.StudentName)
	assert.Len(t, stmt.Fees, 2)
	assert.Len(t, stmt.Payments, 1)
	testutil.AssertDecimal(t, "5500", stmt.TotalFinal)
	testutil.AssertDecimal(t, "1500", stmt.TotalPaid)
	testutil.AssertDecimal(t, "4000", stmt.TotalOutstanding)
	assert.Equal(t, 0, stmt.OverdueCount)
	testutil.AssertDecimal(t, "500", lib.FinalAmount)

	_, err = f.svc.StudentStatement(ctx, "nope")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Ledger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "5000")
	_, err := f.svc.RecordPayment(ctx, cash(sf.ID, "5000"))
	require.NoError(t, err)

	entries, err := f.svc.Ledger(ctx, &fee.StudentFeeFilter{Statuses: []fee.Status{fee.StatusPaid}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Asha Rao", entries[0].StudentName)
	assert.Equal(t, "Tuition", entries[0].FeeHead)
	assert.Equal(t, "BSc", entries[0].Program)

	entries, err = f.svc.Ledger(ctx, &fee.StudentFeeFilter{Statuses: []fee.Status{fee.StatusPending}})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_RenderReceipt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sf := f.studentFee(t, "5000")
	rcpt, err := f.svc.RecordPayment(ctx, cash(sf.ID, "2000"))
	require.NoError(t, err)

	doc, err := f.svc.ReceiptDocument(ctx, rcpt.Payment.ReceiptNumber)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", doc.StudentName)
	assert.Equal(t, "Tuition", doc.FeeHead)
	assert.Equal(t, "INR", doc.Currency)

	content, ct, err := f.svc.RenderReceipt(ctx, rcpt.Payment.ReceiptNumber)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
	assert.True(t, strings.HasPrefix(string(content), "%PDF-"))

	_, _, err = f.svc.RenderReceipt(ctx, "RCP-0000-000000")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Gateway(t *testing.T) {
	ctx := context.Background()

	t.Run("checkout & confirm", func(t *testing.T) {
		f := setup(t)
		student, sf := f.studentFee(t, "5000")

		order, err := f.svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(2000)}, student)
		require.NoError(t, err)
		assert.Equal(t, fee.OrderCreated, order.Status)
		assert.True(t, strings.HasPrefix(order.Reference, "ORD-"))
		assert.Equal(t, "tok-"+order.Reference, order.Token)

		ep := fee.ExternalPayment{OrderReference: order.Reference, TransactionID: "mt-1", Amount: decimal.RequireFromString("2000.00")}
		rcpt, err := f.svc.ConfirmExternalPayment(ctx, ep)
		require.NoError(t, err)
		assert.Equal(t, fee.MethodOnline, rcpt.Payment.Method)
		assert.Equal(t, "mt-1", rcpt.Payment.TransactionID)
		assert.Equal(t, fee.StatusPartial, rcpt.StudentFee.Status)

		// redelivered notification
		again, err := f.svc.ConfirmExternalPayment(ctx, ep)
		require.NoError(t, err)
		assert.Equal(t, rcpt.Payment.ID, again.Payment.ID)
		testutil.AssertDecimal(t, "2000", again.StudentFee.PaidAmount)

		assert.Equal(t, 1, f.recorder.notifications["confirmed"])
		assert.Equal(t, 1, f.recorder.notifications["duplicate"])

		// a paid order cannot fail
		failed, err := f.svc.FailExternalPayment(ctx, order.Reference)
		require.NoError(t, err)
		assert.Equal(t, fee.OrderPaid, failed.Status)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		f := setup(t)
		student, sf := f.studentFee(t, "5000")
		order, err := f.svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(2000)}, student)
		require.NoError(t, err)

		_, err = f.svc.ConfirmExternalPayment(ctx, fee.ExternalPayment{OrderReference: order.Reference, Amount: decimal.NewFromInt(1)})
		assert.True(t, fieldErrors(t, err)["amount"])
		assert.Equal(t, 1, f.recorder.notifications["rejected"])
	})

	t.Run("outstanding shrank since checkout", func(t *testing.T) {
		f := setup(t)
		student, sf := f.studentFee(t, "5000")
		order, err := f.svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(5000)}, student)
		require.NoError(t, err)
		_, err = f.svc.RecordPayment(ctx, cash(sf.ID, "1"))
		require.NoError(t, err)

		_, err = f.svc.ConfirmExternalPayment(ctx, fee.ExternalPayment{OrderReference: order.Reference, Amount: decimal.NewFromInt(5000)})
		require.Error(t, err)
		assert.Equal(t, fee.ErrExceedsOutstanding, errors.Cause(err).(*core.ValidationError).Err)
	})

	t.Run("failed order", func(t *testing.T) {
		f := setup(t)
		student, sf := f.studentFee(t, "5000")
		order, err := f.svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(100)}, student)
		require.NoError(t, err)

		failed, err := f.svc.FailExternalPayment(ctx, order.Reference)
		require.NoError(t, err)
		assert.Equal(t, fee.OrderFailed, failed.Status)

		_, err = f.svc.ConfirmExternalPayment(ctx, fee.ExternalPayment{OrderReference: order.Reference, Amount: decimal.NewFromInt(100)})
		require.Error(t, err)
		assert.Equal(t, fee.ErrOrderClosed, errors.Cause(err).(*core.ValidationError).Err)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.ConfirmExternalPayment(ctx, fee.ExternalPayment{OrderReference: "ORD-x", Amount: decimal.NewFromInt(1)})
		assert.True(t, core.IsNotFound(err))
		_, err = f.svc.FailExternalPayment(ctx, "ORD-x")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("other student's fee", func(t *testing.T) {
		f := setup(t)
		_, sf := f.studentFee(t, "5000")
		other := testutil.CreateStudent(t, f.usrRepo, "Ben Okafor", "ben", "BSc")

		_, err := f.svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(100)}, other)
		assert.True(t, core.IsNotFound(err))
		assert.Empty(t, f.gateway.orders)
	})

	t.Run("above outstanding", func(t *testing.T) {
		f := setup(t)
		student, sf := f.studentFee(t, "5000")
		_, err := f.svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(5001)}, student)
		assert.True(t, fieldErrors(t, err)["amount"])
	})

	t.Run("gateway disabled", func(t *testing.T) {
		f := setup(t)
		validate, _ := testutil.NewValidator()
		svc, err := fee.NewService(fee.Deps{
			Conf:     testutil.NewConfig(),
			Logger:   testutil.NewLogger(),
			TxRunner: f.db,
			Repo:     f.repo,
			Students: user.NewService(f.usrRepo),
			Validate: validate,
		})
		require.NoError(t, err)
		student, sf := f.studentFee(t, "5000")

		_, err = svc.StartCheckout(ctx, fee.NewCheckout{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(100)}, student)
		require.Error(t, err)
		assert.Equal(t, fee.ErrGatewayDisabled, errors.Cause(err).(*core.ValidationError).Err)
	})
}

func TestService_FeeStructures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	head, err := f.svc.CreateFeeHead(ctx, fee.NewFeeHead{Name: " Tuition "})
	require.NoError(t, err)
	assert.Equal(t, "Tuition", head.Name)

	_, err = f.svc.CreateFeeHead(ctx, fee.NewFeeHead{Name: "tuition"})
	assert.True(t, fieldErrors(t, err)["name"])

	ns := fee.NewFeeStructure{
		Program:         "BSc",
		FeeHeadID:       head.ID,
		AcademicSession: "2026-27",
		Amount:          decimal.NewFromInt(5000),
		Frequency:       "Annually",
		DueDate:         time.Date(2026, 12, 31, 10, 0, 0, 0, time.UTC),
	}
	fs, err := f.svc.CreateFeeStructure(ctx, ns)
	require.NoError(t, err)
	assert.True(t, fs.IsActive)
	assert.Equal(t, fee.FrequencyAnnually, fs.Frequency)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), fs.DueDate)

	_, err = f.svc.CreateFeeStructure(ctx, ns)
	require.Error(t, err)
	assert.Equal(t, fee.ErrStructureExists, errors.Cause(err).(*core.ValidationError).Err)

	bad := ns
	bad.FeeHeadID = "nope"
	bad.AcademicSession = "2027-28"
	_, err = f.svc.CreateFeeStructure(ctx, bad)
	assert.True(t, fieldErrors(t, err)["fee_head_id"])

	bad = ns
	bad.Frequency = "weekly"
	_, err = f.svc.CreateFeeStructure(ctx, bad)
	assert.True(t, fieldErrors(t, err)["frequency"])

	// terms may change until the structure is assigned
	amount := decimal.NewFromInt(5500)
	fs, err = f.svc.UpdateFeeStructure(ctx, fs.ID, fee.UpdateFeeStructure{Amount: &amount})
	require.NoError(t, err)
	testutil.AssertDecimal(t, "5500", fs.Amount)

	student := testutil.CreateStudent(t, f.usrRepo, "Asha Rao", "asha", "BSc")
	_, err = f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: fs.ID, Students: []fee.StudentAssignment{{StudentID: student.ID}}})
	require.NoError(t, err)

	amount = decimal.NewFromInt(6000)
	_, err = f.svc.UpdateFeeStructure(ctx, fs.ID, fee.UpdateFeeStructure{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, fee.ErrStructureInUse, errors.Cause(err).(*core.ValidationError).Err)

	inactive := false
	fs, err = f.svc.UpdateFeeStructure(ctx, fs.ID, fee.UpdateFeeStructure{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, fs.IsActive)
	testutil.AssertDecimal(t, "5500", fs.Amount)

	_, err = f.svc.UpdateFeeStructure(ctx, "nope", fee.UpdateFeeStructure{IsActive: &inactive})
	assert.True(t, core.IsNotFound(err))

	structures, err := f.svc.QueryFeeStructures(ctx, &fee.StructureFilter{Program: "bsc"})
	require.NoError(t, err)
	assert.Len(t, structures, 1)
}

func TestService_AssignFees(t *testing.T) {
	ctx := context.Background()

	t.Run("whole program", func(t *testing.T) {
		f := setup(t)
		testutil.CreateStudent(t, f.usrRepo, "Asha Rao", "asha", "BSc")
		testutil.CreateStudent(t, f.usrRepo, "Ben Okafor", "ben", "BSc")
		testutil.CreateStudent(t, f.usrRepo, "Chen Li", "chen", "MA")
		fs := testutil.CreateFeeStructure(t, f.repo, "BSc", "Tuition", "5000")

		res, err := f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: fs.ID})
		require.NoError(t, err)
		assert.Len(t, res.Created, 2)
		assert.Empty(t, res.Skipped)
		for _, sf := range res.Created {
			assert.Equal(t, fee.StatusPending, sf.Status)
			testutil.AssertDecimal(t, "5000", sf.OutstandingAmount)
		}
		assert.Equal(t, 2, f.recorder.assigned)

		// assigning again skips everyone
		res, err = f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: fs.ID})
		require.NoError(t, err)
		assert.Empty(t, res.Created)
		assert.Len(t, res.Skipped, 2)
	})

	t.Run("discounts", func(t *testing.T) {
		f := setup(t)
		asha := testutil.CreateStudent(t, f.usrRepo, "Asha Rao", "asha", "BSc")
		ben := testutil.CreateStudent(t, f.usrRepo, "Ben Okafor", "ben", "BSc")
		fs := testutil.CreateFeeStructure(t, f.repo, "BSc", "Tuition", "5000")

		res, err := f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: fs.ID, Students: []fee.StudentAssignment{
			{StudentID: asha.ID, Discount: decimal.NewFromInt(1000)},
			{StudentID: ben.ID, Discount: decimal.NewFromInt(5000)},
		}})
		require.NoError(t, err)
		require.Len(t, res.Created, 2)
		testutil.AssertDecimal(t, "4000", res.Created[0].FinalAmount)
		assert.Equal(t, fee.StatusPending, res.Created[0].Status)
		testutil.AssertDecimal(t, "0", res.Created[1].FinalAmount)
		assert.Equal(t, fee.StatusPaid, res.Created[1].Status)
	})

	t.Run("invalid assignments", func(t *testing.T) {
		f := setup(t)
		asha := testutil.CreateStudent(t, f.usrRepo, "Asha Rao", "asha", "BSc")
		chen := testutil.CreateStudent(t, f.usrRepo, "Chen Li", "chen", "MA")
		fs := testutil.CreateFeeStructure(t, f.repo, "BSc", "Tuition", "5000")

		_, err := f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: fs.ID, Students: []fee.StudentAssignment{
			{StudentID: asha.ID, Discount: decimal.NewFromInt(5001)},
		}})
		assert.True(t, fieldErrors(t, err)["students[0].discount"])

		_, err = f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: fs.ID, Students: []fee.StudentAssignment{
			{StudentID: asha.ID}, {StudentID: chen.ID},
		}})
		assert.True(t, fieldErrors(t, err)["students[1].student_id"])

		// nothing was created
		fees, err := f.svc.QueryStudentFees(ctx, &fee.StudentFeeFilter{FeeStructureID: fs.ID}, nil)
		require.NoError(t, err)
		assert.Empty(t, fees)

		_, err = f.svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: "nope"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("structure changed before the transaction", func(t *testing.T) {
		tests := []struct {
			name       string
			change     func(st *fee.FeeStructure)
			wantErr    error
			wantAmount string
		}{
			{"deactivated", func(st *fee.FeeStructure) { st.IsActive = false }, fee.ErrStructureInactive, ""},
			{"amount updated", func(st *fee.FeeStructure) { st.Amount = decimal.NewFromInt(6000) }, nil, "6000"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := setup(t)
				testutil.CreateStudent(t, f.usrRepo, "Asha Rao", "asha", "BSc")
				structure := testutil.CreateFeeStructure(t, f.repo, "BSc", "Tuition", "5000")

				validate, _ := testutil.NewValidator()
				svc, err := fee.NewService(fee.Deps{
					Conf:   testutil.NewConfig(),
					Logger: testutil.NewLogger(),
					TxRunner: &hookedTxRunner{TxRunner: f.db, before: func() {
						changed := structure
						tt.change(&changed)
						_, err := f.repo.UpdateFeeStructure(ctx, changed)
						require.NoError(t, err)
					}},
					Repo:     f.repo,
					Students: user.NewService(f.usrRepo),
					Validate: validate,
				})
				require.NoError(t, err)

				res, err := svc.AssignFees(ctx, fee.AssignFees{FeeStructureID: structure.ID})
				if tt.wantErr != nil {
					require.Error(t, err)
					assert.Equal(t, tt.wantErr, errors.Cause(err).(*core.ValidationError).Err)
					assert.True(t, fieldErrors(t, err)["fee_structure_id"])

					fees, err := f.svc.QueryStudentFees(ctx, &fee.StudentFeeFilter{FeeStructureID: structure.ID}, nil)
					require.NoError(t, err)
					assert.Empty(t, fees)
					return
				}
				require.NoError(t, err)
				require.Len(t, res.Created, 1)
				testutil.AssertDecimal(t, tt.wantAmount, res.Created[0].TotalAmount)
				testutil.AssertDecimal(t, tt.wantAmount, res.Created[0].OutstandingAmount)
			})
		}
	})
}

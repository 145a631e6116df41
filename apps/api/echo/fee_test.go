package echoapi_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/services/export"
	"github.com/trezcool/masomo-fees/tests"
)

func Test_paymentApi_record(t *testing.T) {
	app := setup(t)
	bursar := testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@masomo.test", "", []string{user.RoleAdminBursar}, true)
	clerk := testutil.CreateUser(t, app.usrRepo, "Clerk", "clerk", "clerk@masomo.test", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateStudent(t, app.usrRepo, "Asha Rao", "asha", "BSc")
	fs := testutil.CreateFeeStructure(t, app.feeRepo, "BSc", "Tuition", "5000")
	sf := testutil.CreateStudentFee(t, app.feeRepo, student.ID, fs, "0")
	token := app.getToken(t, bursar)

	pay := func(amount string, status fee.Status, outstanding string) fee.Receipt {
		t.Helper()
		body := []byte(`{"student_fee_id":"` + sf.ID + `","amount":"` + amount + `","payment_method":"cash"}`)
		rec := app.do(http.MethodPost, "/v1/payments", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var rcpt fee.Receipt
		unmarshall(t, rec, &rcpt)
		assert.Equal(t, status, rcpt.StudentFee.Status)
		testutil.AssertDecimal(t, outstanding, rcpt.StudentFee.OutstandingAmount)
		assert.Equal(t, bursar.ID, rcpt.Payment.RecordedBy)
		return rcpt
	}

	first := pay("2000", fee.StatusPartial, "3000")
	second := pay("3000", fee.StatusPaid, "0")
	assert.NotEqual(t, first.Payment.ReceiptNumber, second.Payment.ReceiptNumber)

	runHTTPTests(t, app, []httpTest{
		{
			name: "overpayment", method: http.MethodPost, path: "/v1/payments", token: token,
			body:     []byte(`{"student_fee_id":"` + sf.ID + `","amount":"1","payment_method":"cash"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"amount":"payment exceeds outstanding amount"}`),
		},
		{
			name: "transaction_id required", method: http.MethodPost, path: "/v1/payments", token: token,
			body:     []byte(`{"student_fee_id":"` + sf.ID + `","amount":"1","payment_method":"upi"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"transaction_id":"transaction_id is required for non-cash payments"}`),
		},
		{
			name: "unknown student fee", method: http.MethodPost, path: "/v1/payments", token: token,
			body:     []byte(`{"student_fee_id":"nope","amount":"1","payment_method":"cash"}`),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "student fee not found"}),
		},
		{
			name: "students cannot record", method: http.MethodPost, path: "/v1/payments", token: app.getToken(t, student),
			body: []byte(`{}`), wantCode: http.StatusForbidden,
		},
		{
			name: "plain admins cannot record", method: http.MethodPost, path: "/v1/payments", token: app.getToken(t, clerk),
			body: []byte(`{}`), wantCode: http.StatusForbidden,
		},
	})

	// both receipts were emailed to the student
	assert.Len(t, app.mailSvc.SentMessages(), 2)

	t.Run("student sees own payments", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/payments?student_id=someone-else", app.getToken(t, student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var pmts []fee.FeePayment
		unmarshall(t, rec, &pmts)
		assert.Len(t, pmts, 2)
	})

	t.Run("filter by date", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/payments?from=2001-01-01&to=2001-12-31", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`[]`)}, rec)

		rec = app.do(http.MethodGet, "/v1/payments?from=yesterday", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"from":"must be a date formatted as YYYY-MM-DD"}`)}, rec)
	})

	t.Run("receipt pdf", func(t *testing.T) {
		path := "/v1/payments/" + first.Payment.ReceiptNumber + "/pdf"

		rec := app.do(http.MethodGet, path, app.getToken(t, student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

		other := testutil.CreateStudent(t, app.usrRepo, "Ben Okafor", "ben", "BSc")
		rec = app.do(http.MethodGet, path, app.getToken(t, other))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `masomo_fees_payments_total{method="cash"} 2`)
	})
}

func Test_feeApi_studentFees(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@masomo.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@masomo.test", "", []string{user.RoleTeacher}, true)
	asha := testutil.CreateStudent(t, app.usrRepo, "Asha Rao", "asha", "BSc")
	ben := testutil.CreateStudent(t, app.usrRepo, "Ben Okafor", "ben", "BSc")
	fs := testutil.CreateFeeStructure(t, app.feeRepo, "BSc", "Tuition", "5000")
	ashaFee := testutil.CreateStudentFee(t, app.feeRepo, asha.ID, fs, "500")
	benFee := testutil.CreateStudentFee(t, app.feeRepo, ben.ID, fs, "0")
	ashaToken := app.getToken(t, asha)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/student-fees", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "teachers cannot list", path: "/v1/student-fees", token: app.getToken(t, teacher), wantCode: http.StatusForbidden},
		{name: "student lists own", path: "/v1/student-fees", token: ashaToken, wantCode: http.StatusOK, wantData: marshallObj(t, []fee.StudentFee{ashaFee})},
		{name: "student gets own", path: "/v1/student-fees/" + ashaFee.ID, token: ashaToken, wantCode: http.StatusOK, wantData: marshallObj(t, ashaFee)},
		{name: "student cannot get others", path: "/v1/student-fees/" + benFee.ID, token: ashaToken, wantCode: http.StatusNotFound},
		{name: "admin gets any", path: "/v1/student-fees/" + benFee.ID, token: app.getToken(t, admin), wantCode: http.StatusOK, wantData: marshallObj(t, benFee)},
		{name: "bad overdue", path: "/v1/student-fees?overdue=maybe", token: ashaToken, wantCode: http.StatusBadRequest},
		{name: "student cannot export", path: "/v1/student-fees/export", token: ashaToken, wantCode: http.StatusForbidden},
		{name: "statement of someone else", path: "/v1/students/" + ben.ID + "/statement", token: ashaToken, wantCode: http.StatusNotFound},
	})

	t.Run("admin filters by status", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/student-fees?status=pending&ordering=-created_at", app.getToken(t, admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var fees []fee.StudentFee
		unmarshall(t, rec, &fees)
		assert.Len(t, fees, 2)
	})

	t.Run("statement", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/students/"+asha.ID+"/statement", ashaToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stmt fee.Statement
		unmarshall(t, rec, &stmt)
		assert.Equal(t, "Asha Rao", stmt.StudentName)
		testutil.AssertDecimal(t, "4500", stmt.TotalOutstanding)
		assert.Empty(t, stmt.Payments)
	})

	t.Run("export", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/student-fees/export", app.getToken(t, admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, exportsvc.XLSXContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"ledger-")
		assert.NotEmpty(t, rec.Body.Bytes())
	})
}

func Test_feeApi_structures(t *testing.T) {
	app := setup(t)
	bursar := testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@masomo.test", "", []string{user.RoleAdminBursar}, true)
	clerk := testutil.CreateUser(t, app.usrRepo, "Clerk", "clerk", "clerk@masomo.test", "", []string{user.RoleAdmin}, true)
	asha := testutil.CreateStudent(t, app.usrRepo, "Asha Rao", "asha", "BSc")
	_ = testutil.CreateStudent(t, app.usrRepo, "Ben Okafor", "ben", "BSc")
	_ = testutil.CreateStudent(t, app.usrRepo, "Chen Wei", "chen", "MBA")
	token := app.getToken(t, bursar)

	rec := app.do(http.MethodPost, "/v1/fee-heads", token, []byte(`{"name":"Library"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var head fee.FeeHead
	unmarshall(t, rec, &head)

	rec = app.do(http.MethodPost, "/v1/fee-heads", app.getToken(t, clerk), []byte(`{"name":"Sports"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body := []byte(`{"program":"BSc","fee_head_id":"` + head.ID + `","academic_session":"2026-27","amount":"1200",` +
		`"frequency":"annually","due_date":"2026-12-31T00:00:00Z","late_fee":"0"}`)
	rec = app.do(http.MethodPost, "/v1/fee-structures", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var fs fee.FeeStructure
	unmarshall(t, rec, &fs)
	assert.True(t, fs.IsActive)

	rec = app.do(http.MethodGet, "/v1/fee-structures?program=BSc&is_active=true", app.getToken(t, clerk))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var structures []fee.FeeStructure
	unmarshall(t, rec, &structures)
	assert.Len(t, structures, 1)

	// every active BSc student, with a discount for one of them
	rec = app.do(http.MethodPost, "/v1/fee-structures/"+fs.ID+"/assign", token,
		[]byte(`{"students":[{"student_id":"`+asha.ID+`","discount":"200"}]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res fee.AssignResult
	unmarshall(t, rec, &res)
	require.Len(t, res.Created, 1)
	assert.True(t, res.Created[0].FinalAmount.Equal(decimal.NewFromInt(1000)))

	rec = app.do(http.MethodPost, "/v1/fee-structures/"+fs.ID+"/assign", token, []byte(`{}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	unmarshall(t, rec, &res)
	assert.Len(t, res.Created, 1) // ben
	assert.Equal(t, []string{asha.ID}, res.Skipped)

	// terms are frozen once assigned
	rec = app.do(http.MethodPatch, "/v1/fee-structures/"+fs.ID, token, []byte(`{"amount":"1500"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPatch, "/v1/fee-structures/"+fs.ID, token, []byte(`{"is_active":false}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &fs)
	assert.False(t, fs.IsActive)

	rec = app.do(http.MethodGet, "/v1/fee-structures/nope", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package scholarship_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/scholarship"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/storage/database/dummy"
	"github.com/trezcool/masomo-fees/tests"
)

func setup(t *testing.T) (*scholarship.Service, *dummydb.DB) {
	validate, _ := testutil.NewValidator()
	db := dummydb.Open()
	return scholarship.NewService(db, dummydb.NewScholarshipRepository(db), validate), db
}

func validationErr(t *testing.T, err error) *core.ValidationError {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "not a ValidationError: %v", err)
	return vErr
}

func TestService_Create(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	sch, err := svc.Create(ctx, scholarship.NewScholarship{Name: " Merit ", Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, "Merit", sch.Name)
	assert.True(t, sch.IsActive)
	assert.NotEmpty(t, sch.ID)

	_, err = svc.Create(ctx, scholarship.NewScholarship{Name: "MERIT", Amount: decimal.NewFromInt(500)})
	assert.Equal(t, scholarship.ErrScholarshipExists, validationErr(t, err).Err)

	_, err = svc.Create(ctx, scholarship.NewScholarship{Name: "Need based"})
	assert.Error(t, err) // zero amount

	closed, err := svc.SetActive(ctx, sch.ID, false)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)

	all, err := svc.Query(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	active, err := svc.Query(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.SetActive(ctx, "nope", true)
	assert.True(t, core.IsNotFound(err))
}

func TestService_ApplyAndReview(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	usrRepo := dummydb.NewUserRepository(db)
	feeRepo := dummydb.NewFeeRepository(db)

	student := testutil.CreateStudent(t, usrRepo, "Asha Rao", "asha", "BSc")
	bursar := testutil.CreateUser(t, usrRepo, "Bursar", "bursar", "bursar@masomo.test", "", []string{user.RoleAdminBursar}, true)
	fs := testutil.CreateFeeStructure(t, feeRepo, "BSc", "Tuition", "5000")
	sf := testutil.CreateStudentFee(t, feeRepo, student.ID, fs, "0")

	sch, err := svc.Create(ctx, scholarship.NewScholarship{Name: "Merit", Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: sch.ID, Reason: "top of class"}, bursar)
	assert.Equal(t, scholarship.ErrNotAStudent, validationErr(t, err).Err)

	_, err = svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: sch.ID}, student)
	assert.Error(t, err) // reason required

	app, err := svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: sch.ID, Reason: "top of class"}, student)
	require.NoError(t, err)
	assert.Equal(t, scholarship.StatusPending, app.Status)
	assert.Equal(t, student.ID, app.StudentID)
	assert.Nil(t, app.ReviewedAt)

	_, err = svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: sch.ID, Reason: "again"}, student)
	assert.Equal(t, scholarship.ErrAlreadyApplied, validationErr(t, err).Err)

	app, err = svc.Review(ctx, app.ID, scholarship.Review{Approve: true, ReviewerID: bursar.ID})
	require.NoError(t, err)
	assert.Equal(t, scholarship.StatusApproved, app.Status)
	assert.Equal(t, bursar.ID, app.ReviewedBy)
	require.NotNil(t, app.ReviewedAt)

	_, err = svc.Review(ctx, app.ID, scholarship.Review{Approve: false, ReviewerID: bursar.ID})
	assert.Equal(t, scholarship.ErrAlreadyReviewed, validationErr(t, err).Err)

	// approval leaves the fees alone
	stored, err := feeRepo.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, stored.DiscountAmount.IsZero())
	assert.True(t, stored.FinalAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, fee.StatusPending, stored.Status)

	// once reviewed, a new application may be filed
	_, err = svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: sch.ID, Reason: "second year"}, student)
	require.NoError(t, err)

	apps, err := svc.QueryApplications(ctx, &scholarship.ApplicationFilter{StudentID: student.ID, Statuses: []scholarship.Status{scholarship.StatusPending}})
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	_, err = svc.Review(ctx, "nope", scholarship.Review{Approve: true})
	assert.True(t, core.IsNotFound(err))
}

func TestService_Apply_Closed(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, dummydb.NewUserRepository(db), "Asha Rao", "asha", "BSc")

	sch, err := svc.Create(ctx, scholarship.NewScholarship{Name: "Sports", Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, sch.ID, false)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: sch.ID, Reason: "captain"}, student)
	assert.Equal(t, scholarship.ErrScholarshipInactive, validationErr(t, err).Err)

	_, err = svc.Apply(ctx, scholarship.NewApplication{ScholarshipID: "nope", Reason: "captain"}, student)
	assert.True(t, core.IsNotFound(err))
}

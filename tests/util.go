package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	logsvc "github.com/trezcool/masomo-fees/services/logger"
)

// NewConfig returns the configuration used by tests, without reading the environment.
func NewConfig() *core.Config {
	conf := &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Masomo",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: "noreply@masomo.test",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Server.DisableRequestLogs = true
	conf.Ledger.ReceiptPrefix = "RCP"
	conf.Ledger.Currency = "INR"
	return conf
}

func NewLogger() core.Logger {
	return logsvc.NewDiscardLogger()
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent creates an active student enrolled in `program`.
func CreateStudent(t *testing.T, repo user.Repository, name, uname, program string) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     uname + "@masomo.test",
		Program:   program,
		Roles:     []string{user.RoleStudent},
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return usr
}

// CreateFeeStructure creates a fee head named `head` and an active structure charging `amount` to `program`.
func CreateFeeStructure(t *testing.T, repo fee.Repository, program, head, amount string) fee.FeeStructure {
	t.Helper()
	ctx := context.Background()

	fh, err := repo.CreateFeeHead(ctx, fee.FeeHead{Name: head})
	if err != nil {
		t.Fatalf("CreateFeeStructure() failed: %v", err)
	}

	now := time.Now().UTC()
	fs, err := repo.CreateFeeStructure(ctx, fee.FeeStructure{
		Program:         program,
		FeeHeadID:       fh.ID,
		AcademicSession: "2026-27",
		Amount:          decimal.RequireFromString(amount),
		Frequency:       fee.FrequencyAnnually,
		DueDate:         core.Today().AddDate(0, 1, 0),
		LateFee:         decimal.Zero,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateFeeStructure() failed: %v", err)
	}
	return fs
}

// CreateStudentFee assigns `fs` to the student, less `discount`.
func CreateStudentFee(t *testing.T, repo fee.Repository, studentID string, fs fee.FeeStructure, discount string) fee.StudentFee {
	t.Helper()

	now := time.Now().UTC()
	sf := fee.StudentFee{
		StudentID:      studentID,
		FeeStructureID: fs.ID,
		TotalAmount:    fs.Amount,
		DiscountAmount: decimal.RequireFromString(discount),
		PaidAmount:     decimal.Zero,
		DueDate:        fs.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sf.Recalculate()

	sf, err := repo.CreateStudentFee(context.Background(), sf)
	if err != nil {
		t.Fatalf("CreateStudentFee() failed: %v", err)
	}
	return sf
}

// AssertDecimal fails the test when `got` is not numerically equal to `want`.
func AssertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("decimal = %s; want %s %v", got, want, msgAndArgs)
	}
}

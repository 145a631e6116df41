package scholarship

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("scholarship")
	ErrApplicationNotFound = core.NewNotFoundError("scholarship application")

	ErrScholarshipExists   = errors.New("a scholarship with this name already exists")
	ErrScholarshipInactive = errors.New("scholarship is not open for applications")
	ErrAlreadyApplied      = errors.New("an application for this scholarship is already pending")
	ErrAlreadyReviewed     = errors.New("application has already been reviewed")
	ErrNotAStudent         = errors.New("only students can apply for scholarships")
)

type (
	Repository interface {
		CreateScholarship(ctx context.Context, sch Scholarship, exec ...core.DBExecutor) (Scholarship, error)
		GetScholarship(ctx context.Context, id string, exec ...core.DBExecutor) (Scholarship, error)
		QueryScholarships(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]Scholarship, error)
		UpdateScholarship(ctx context.Context, sch Scholarship, exec ...core.DBExecutor) (Scholarship, error)

		CreateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		// LockApplication fetches an Application and locks it until the enclosing transaction ends.
		LockApplication(ctx context.Context, id string, exec ...core.DBExecutor) (Application, error)
		QueryApplications(ctx context.Context, filter *ApplicationFilter, exec ...core.DBExecutor) ([]Application, error)
		UpdateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
	}

	Service struct {
		txr      core.TxRunner
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(txr core.TxRunner, repo Repository, validate *validator.Validate) *Service {
	return &Service{txr: txr, repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, ns NewScholarship) (Scholarship, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Scholarship{}, err
	}

	existing, err := svc.repo.QueryScholarships(ctx, false)
	if err != nil {
		return Scholarship{}, errors.Wrap(err, "querying scholarships")
	}
	for _, sch := range existing {
		if strings.EqualFold(sch.Name, ns.Name) {
			return Scholarship{}, core.NewValidationError(ErrScholarshipExists, core.FieldError{Field: "name", Error: ErrScholarshipExists.Error()})
		}
	}

	return svc.repo.CreateScholarship(ctx, Scholarship{
		ID:          uuid.New().String(),
		Name:        ns.Name,
		Description: ns.Description,
		Amount:      ns.Amount,
		IsActive:    true,
		CreatedAt:   core.NowFunc().UTC(),
	})
}

func (svc *Service) Query(ctx context.Context, activeOnly bool) ([]Scholarship, error) {
	return svc.repo.QueryScholarships(ctx, activeOnly)
}

// SetActive opens or closes a Scholarship to new applications.
func (svc *Service) SetActive(ctx context.Context, id string, active bool) (Scholarship, error) {
	sch, err := svc.repo.GetScholarship(ctx, core.CleanString(id))
	if err != nil {
		return Scholarship{}, err
	}
	sch.IsActive = active
	return svc.repo.UpdateScholarship(ctx, sch)
}

func (svc *Service) QueryApplications(ctx context.Context, filter *ApplicationFilter) ([]Application, error) {
	return svc.repo.QueryApplications(ctx, filter)
}

// Apply files a pending Application for the student. A student may only have one pending application per scholarship.
func (svc *Service) Apply(ctx context.Context, na NewApplication, student user.User) (Application, error) {
	if !student.IsStudent() {
		return Application{}, core.NewValidationError(ErrNotAStudent)
	}
	if err := na.Validate(svc.validate); err != nil {
		return Application{}, err
	}
	na.StudentID = student.ID

	sch, err := svc.repo.GetScholarship(ctx, na.ScholarshipID)
	if err != nil {
		return Application{}, err
	}
	if !sch.IsActive {
		return Application{}, core.NewValidationError(ErrScholarshipInactive)
	}

	pending, err := svc.repo.QueryApplications(ctx, &ApplicationFilter{
		ScholarshipID: sch.ID,
		StudentID:     student.ID,
		Statuses:      []Status{StatusPending},
	})
	if err != nil {
		return Application{}, errors.Wrap(err, "querying applications")
	}
	if len(pending) > 0 {
		return Application{}, core.NewValidationError(ErrAlreadyApplied)
	}

	return svc.repo.CreateApplication(ctx, Application{
		ID:            uuid.New().String(),
		ScholarshipID: sch.ID,
		StudentID:     student.ID,
		Reason:        na.Reason,
		Status:        StatusPending,
		CreatedAt:     core.NowFunc().UTC(),
	})
}

// Review approves or rejects a pending Application.
// Approval is recorded only: no discount is applied to the student's fees.
func (svc *Service) Review(ctx context.Context, id string, rvw Review) (Application, error) {
	var app Application
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if app, err = svc.repo.LockApplication(ctx, core.CleanString(id), exec); err != nil {
			return err
		}
		if !app.IsPending() {
			return core.NewValidationError(ErrAlreadyReviewed)
		}

		app.Status = StatusRejected
		if rvw.Approve {
			app.Status = StatusApproved
		}
		now := core.NowFunc().UTC()
		app.ReviewedAt = &now
		app.ReviewedBy = rvw.ReviewerID

		app, err = svc.repo.UpdateApplication(ctx, app, exec)
		return errors.Wrap(err, "updating application")
	})
	if err != nil {
		return Application{}, err
	}
	return app, nil
}

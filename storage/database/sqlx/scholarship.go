package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/scholarship"
)

const (
	scholarshipColumns = `id, name, description, amount, is_active, created_at`
	applicationColumns = `id, scholarship_id, student_id, reason, status, reviewed_by, reviewed_at, created_at`
)

type (
	scholarshipRow struct {
		ID          string          `db:"id"`
		Name        string          `db:"name"`
		Description string          `db:"description"`
		Amount      decimal.Decimal `db:"amount"`
		IsActive    bool            `db:"is_active"`
		CreatedAt   time.Time       `db:"created_at"`
	}

	applicationRow struct {
		ID            string      `db:"id"`
		ScholarshipID string      `db:"scholarship_id"`
		StudentID     string      `db:"student_id"`
		Reason        string      `db:"reason"`
		Status        string      `db:"status"`
		ReviewedBy    null.String `db:"reviewed_by"`
		ReviewedAt    null.Time   `db:"reviewed_at"`
		CreatedAt     time.Time   `db:"created_at"`
	}
)

func (row applicationRow) toDomain() scholarship.Application {
	return scholarship.Application{
		ID:            row.ID,
		ScholarshipID: row.ScholarshipID,
		StudentID:     row.StudentID,
		Reason:        row.Reason,
		Status:        scholarship.Status(row.Status),
		ReviewedBy:    row.ReviewedBy.String,
		ReviewedAt:    row.ReviewedAt.Ptr(),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func fromApplication(app scholarship.Application) applicationRow {
	return applicationRow{
		ID:            app.ID,
		ScholarshipID: app.ScholarshipID,
		StudentID:     app.StudentID,
		Reason:        app.Reason,
		Status:        string(app.Status),
		ReviewedBy:    nullString(app.ReviewedBy),
		ReviewedAt:    null.TimeFromPtr(app.ReviewedAt),
		CreatedAt:     app.CreatedAt.UTC(),
	}
}

type scholarshipRepository struct {
	repository
}

var _ scholarship.Repository = (*scholarshipRepository)(nil) // interface compliance check

func NewScholarshipRepository(exec core.DBExecutor) *scholarshipRepository {
	return &scholarshipRepository{repository{exec: exec}}
}

func (repo scholarshipRepository) CreateScholarship(ctx context.Context, sch scholarship.Scholarship, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	if sch.ID == "" {
		sch.ID = newID()
	}
	row := scholarshipRow(sch)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO scholarship (`+scholarshipColumns+`) VALUES (:id, :name, :description, :amount, :is_active, :created_at)`,
		row,
	)
	if err != nil {
		return scholarship.Scholarship{}, errors.Wrap(err, "inserting scholarship")
	}
	return sch, nil
}

func (repo scholarshipRepository) GetScholarship(ctx context.Context, id string, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	if !isUUID(id) {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	row, err := getRow[scholarshipRow](ctx, repo.getExec(exec),
		`SELECT `+scholarshipColumns+` FROM scholarship WHERE id = :id`,
		map[string]interface{}{"id": id},
	)
	if err != nil {
		return scholarship.Scholarship{}, trapNoRowsErr(err, scholarship.ErrNotFound, "finding scholarship")
	}
	return scholarship.Scholarship(row), nil
}

func (repo scholarshipRepository) QueryScholarships(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]scholarship.Scholarship, error) {
	query := `SELECT ` + scholarshipColumns + ` FROM scholarship`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := selectRows[scholarshipRow](ctx, repo.getExec(exec), query+` ORDER BY name`, map[string]interface{}{})
	if err != nil {
		return nil, errors.Wrap(err, "querying scholarships")
	}
	schs := make([]scholarship.Scholarship, 0, len(rows))
	for _, row := range rows {
		schs = append(schs, scholarship.Scholarship(row))
	}
	return schs, nil
}

func (repo scholarshipRepository) UpdateScholarship(ctx context.Context, sch scholarship.Scholarship, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	if !isUUID(sch.ID) {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	res, err := execNamed(ctx, repo.getExec(exec),
		`UPDATE scholarship SET name = :name, description = :description, amount = :amount, is_active = :is_active WHERE id = :id`,
		scholarshipRow(sch),
	)
	if err != nil {
		return scholarship.Scholarship{}, errors.Wrap(err, "updating scholarship")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	return sch, nil
}

func (repo scholarshipRepository) CreateApplication(ctx context.Context, app scholarship.Application, exec ...core.DBExecutor) (scholarship.Application, error) {
	if app.ID == "" {
		app.ID = newID()
	}
	row := fromApplication(app)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO scholarship_application (`+applicationColumns+`)
		VALUES (:id, :scholarship_id, :student_id, :reason, :status, :reviewed_by, :reviewed_at, :created_at)`,
		row,
	)
	if err != nil {
		return scholarship.Application{}, errors.Wrap(err, "inserting scholarship application")
	}
	return row.toDomain(), nil
}

func (repo scholarshipRepository) LockApplication(ctx context.Context, id string, exec ...core.DBExecutor) (scholarship.Application, error) {
	if !isUUID(id) {
		return scholarship.Application{}, scholarship.ErrApplicationNotFound
	}
	row, err := getRow[applicationRow](ctx, repo.getExec(exec),
		`SELECT `+applicationColumns+` FROM scholarship_application WHERE id = :id FOR UPDATE`,
		map[string]interface{}{"id": id},
	)
	if err != nil {
		return scholarship.Application{}, trapNoRowsErr(err, scholarship.ErrApplicationNotFound, "finding scholarship application")
	}
	return row.toDomain(), nil
}

func (repo scholarshipRepository) QueryApplications(ctx context.Context, filter *scholarship.ApplicationFilter, exec ...core.DBExecutor) ([]scholarship.Application, error) {
	var where whereClause
	args := make(map[string]interface{})

	if filter != nil {
		if filter.ScholarshipID != "" {
			if !isUUID(filter.ScholarshipID) {
				return []scholarship.Application{}, nil
			}
			where = append(where, "scholarship_id = :scholarship_id")
			args["scholarship_id"] = filter.ScholarshipID
		}
		if filter.StudentID != "" {
			if !isUUID(filter.StudentID) {
				return []scholarship.Application{}, nil
			}
			where = append(where, "student_id = :student_id")
			args["student_id"] = filter.StudentID
		}
		if len(filter.Statuses) > 0 {
			statuses := make(pq.StringArray, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			where = append(where, "status = ANY(:statuses)")
			args["statuses"] = statuses
		}
	}

	rows, err := selectRows[applicationRow](ctx, repo.getExec(exec),
		`SELECT `+applicationColumns+` FROM scholarship_application`+where.String()+` ORDER BY created_at`,
		args,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying scholarship applications")
	}
	apps := make([]scholarship.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toDomain())
	}
	return apps, nil
}

func (repo scholarshipRepository) UpdateApplication(ctx context.Context, app scholarship.Application, exec ...core.DBExecutor) (scholarship.Application, error) {
	row := fromApplication(app)
	res, err := execNamed(ctx, repo.getExec(exec),
		`UPDATE scholarship_application SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return scholarship.Application{}, errors.Wrap(err, "updating scholarship application")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return scholarship.Application{}, scholarship.ErrApplicationNotFound
	}
	return row.toDomain(), nil
}

package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/scholarship"
)

type scholarshipRepository struct {
	db *DB
}

var _ scholarship.Repository = (*scholarshipRepository)(nil) // interface compliance check

func NewScholarshipRepository(db *DB) scholarship.Repository {
	return &scholarshipRepository{db: db}
}

func (repo *scholarshipRepository) CreateScholarship(_ context.Context, sch scholarship.Scholarship, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	put(exec, repo.db.scholarship, sch.ID, sch)
	return sch, nil
}

func (repo *scholarshipRepository) GetScholarship(_ context.Context, id string, _ ...core.DBExecutor) (scholarship.Scholarship, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sch, ok := repo.db.scholarship[id]; ok {
		return sch, nil
	}
	return scholarship.Scholarship{}, scholarship.ErrNotFound
}

func (repo *scholarshipRepository) QueryScholarships(_ context.Context, activeOnly bool, _ ...core.DBExecutor) ([]scholarship.Scholarship, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	schs := make([]scholarship.Scholarship, 0, len(repo.db.scholarship))
	for _, sch := range repo.db.scholarship {
		if activeOnly && !sch.IsActive {
			continue
		}
		schs = append(schs, sch)
	}
	sort.Slice(schs, func(i, j int) bool { return schs[i].Name < schs[j].Name })
	return schs, nil
}

func (repo *scholarshipRepository) UpdateScholarship(_ context.Context, sch scholarship.Scholarship, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.scholarship[sch.ID]; !ok {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	put(exec, repo.db.scholarship, sch.ID, sch)
	return sch, nil
}

func (repo *scholarshipRepository) CreateApplication(_ context.Context, app scholarship.Application, exec ...core.DBExecutor) (scholarship.Application, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	put(exec, repo.db.application, app.ID, app)
	return app, nil
}

// LockApplication is a plain read: DB.RunInTx already runs transactions one at a time.
func (repo *scholarshipRepository) LockApplication(_ context.Context, id string, _ ...core.DBExecutor) (scholarship.Application, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if app, ok := repo.db.application[id]; ok {
		return app, nil
	}
	return scholarship.Application{}, scholarship.ErrApplicationNotFound
}

func (repo *scholarshipRepository) QueryApplications(_ context.Context, filter *scholarship.ApplicationFilter, _ ...core.DBExecutor) ([]scholarship.Application, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	apps := make([]scholarship.Application, 0)
	for _, app := range repo.db.application {
		if filter != nil {
			if filter.ScholarshipID != "" && app.ScholarshipID != filter.ScholarshipID {
				continue
			}
			if filter.StudentID != "" && app.StudentID != filter.StudentID {
				continue
			}
			if len(filter.Statuses) > 0 && !hasAppStatus(filter.Statuses, app.Status) {
				continue
			}
		}
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].ID < apps[j].ID
	})
	return apps, nil
}

func hasAppStatus(statuses []scholarship.Status, status scholarship.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (repo *scholarshipRepository) UpdateApplication(_ context.Context, app scholarship.Application, exec ...core.DBExecutor) (scholarship.Application, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.application[app.ID]; !ok {
		return scholarship.Application{}, scholarship.ErrApplicationNotFound
	}
	put(exec, repo.db.application, app.ID, app)
	return app, nil
}

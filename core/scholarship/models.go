package scholarship

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
)

type Status string

// ScholarshipApplication statuses
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Scholarship struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Application is a student's request for a Scholarship.
// Approving it does not change any of the student's fees.
type Application struct {
	ID            string     `json:"id"`
	ScholarshipID string     `json:"scholarship_id"`
	StudentID     string     `json:"student_id"`
	Reason        string     `json:"reason"`
	Status        Status     `json:"status"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (app Application) IsPending() bool {
	return app.Status == StatusPending
}

type NewScholarship struct {
	Name        string          `json:"name" validate:"required,max=150"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" validate:"money"`
}

func (ns *NewScholarship) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

type NewApplication struct {
	ScholarshipID string `json:"scholarship_id" validate:"required"`
	StudentID     string `json:"-"`
	Reason        string `json:"reason" validate:"required,max=2000"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.ScholarshipID = core.CleanString(na.ScholarshipID)
	na.Reason = core.CleanString(na.Reason)
	return validate.Struct(na)
}

// Review is the decision taken on a pending Application.
type Review struct {
	Approve    bool   `json:"approve"`
	ReviewerID string `json:"-"`
}

type ApplicationFilter struct {
	ScholarshipID string   `query:"scholarship_id"`
	StudentID     string   `query:"student_id"`
	Statuses      []Status `query:"status"`
}

func (af *ApplicationFilter) Clean() {
	af.ScholarshipID = core.CleanString(af.ScholarshipID)
	af.StudentID = core.CleanString(af.StudentID)
}

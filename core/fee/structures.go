package fee

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/user"
)

func (svc *Service) CreateFeeHead(ctx context.Context, nh NewFeeHead) (FeeHead, error) {
	if err := nh.Validate(svc.validate); err != nil {
		return FeeHead{}, err
	}

	heads, err := svc.repo.QueryFeeHeads(ctx)
	if err != nil {
		return FeeHead{}, errors.Wrap(err, "querying fee heads")
	}
	for _, head := range heads {
		if strings.EqualFold(head.Name, nh.Name) {
			return FeeHead{}, fieldErr(ErrFeeHeadExists, "name")
		}
	}

	return svc.repo.CreateFeeHead(ctx, FeeHead{
		ID:          uuid.New().String(),
		Name:        nh.Name,
		Description: nh.Description,
	})
}

func (svc *Service) QueryFeeHeads(ctx context.Context) ([]FeeHead, error) {
	return svc.repo.QueryFeeHeads(ctx)
}

func (svc *Service) CreateFeeStructure(ctx context.Context, ns NewFeeStructure) (FeeStructure, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return FeeStructure{}, err
	}

	if _, err := svc.repo.GetFeeHead(ctx, ns.FeeHeadID); err != nil {
		if core.IsNotFound(err) {
			return FeeStructure{}, fieldErr(err, "fee_head_id")
		}
		return FeeStructure{}, errors.Wrap(err, "finding fee head")
	}

	existing, err := svc.repo.QueryFeeStructures(ctx, &StructureFilter{
		Program:         ns.Program,
		AcademicSession: ns.AcademicSession,
		FeeHeadID:       ns.FeeHeadID,
	})
	if err != nil {
		return FeeStructure{}, errors.Wrap(err, "querying fee structures")
	}
	if len(existing) > 0 {
		return FeeStructure{}, core.NewValidationError(ErrStructureExists)
	}

	now := core.NowFunc().UTC()
	return svc.repo.CreateFeeStructure(ctx, FeeStructure{
		ID:              uuid.New().String(),
		Program:         ns.Program,
		FeeHeadID:       ns.FeeHeadID,
		AcademicSession: ns.AcademicSession,
		Amount:          ns.Amount,
		Frequency:       ns.Frequency,
		DueDate:         core.TruncateDay(ns.DueDate),
		LateFee:         ns.LateFee,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (svc *Service) GetFeeStructure(ctx context.Context, id string) (FeeStructure, error) {
	return svc.repo.GetFeeStructure(ctx, core.CleanString(id))
}

func (svc *Service) QueryFeeStructures(ctx context.Context, filter *StructureFilter) ([]FeeStructure, error) {
	return svc.repo.QueryFeeStructures(ctx, filter)
}

// UpdateFeeStructure applies `us` to the FeeStructure `id`.
// Once a structure has been assigned to a student, only IsActive may change.
func (svc *Service) UpdateFeeStructure(ctx context.Context, id string, us UpdateFeeStructure) (FeeStructure, error) {
	if err := svc.validate.Struct(us); err != nil {
		return FeeStructure{}, err
	}

	var fs FeeStructure
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if fs, err = svc.repo.LockFeeStructure(ctx, core.CleanString(id), exec); err != nil {
			return err
		}

		if us.changesTerms() {
			count, err := svc.repo.CountStudentFees(ctx, fs.ID, exec)
			if err != nil {
				return errors.Wrap(err, "counting student fees")
			}
			if count > 0 {
				return core.NewValidationError(ErrStructureInUse)
			}
		}

		if us.Amount != nil {
			fs.Amount = *us.Amount
		}
		if us.Frequency != nil {
			fs.Frequency = *us.Frequency
		}
		if us.DueDate != nil {
			fs.DueDate = core.TruncateDay(*us.DueDate)
		}
		if us.LateFee != nil {
			fs.LateFee = *us.LateFee
		}
		if us.IsActive != nil {
			fs.IsActive = *us.IsActive
		}
		fs.UpdatedAt = core.NowFunc().UTC()

		fs, err = svc.repo.UpdateFeeStructure(ctx, fs, exec)
		return errors.Wrap(err, "updating fee structure")
	})
	if err != nil {
		return FeeStructure{}, err
	}
	return fs, nil
}

// AssignFees creates one StudentFee per student for an active FeeStructure, in a single transaction.
// Students already assigned the structure are skipped.
func (svc *Service) AssignFees(ctx context.Context, af AssignFees) (AssignResult, error) {
	if err := af.Validate(svc.validate); err != nil {
		return AssignResult{}, err
	}

	fs, err := svc.repo.GetFeeStructure(ctx, af.FeeStructureID)
	if err != nil {
		return AssignResult{}, err
	}
	if !fs.IsActive {
		return AssignResult{}, fieldErr(ErrStructureInactive, "fee_structure_id")
	}

	assignments, err := svc.resolveAssignments(ctx, fs, af.Students)
	if err != nil {
		return AssignResult{}, err
	}

	result := AssignResult{Created: []StudentFee{}, Skipped: []string{}}
	err = svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		// the structure may have changed since it was first read
		var err error
		if fs, err = svc.repo.LockFeeStructure(ctx, fs.ID, exec); err != nil {
			return err
		}
		if !fs.IsActive {
			return fieldErr(ErrStructureInactive, "fee_structure_id")
		}

		now := core.NowFunc().UTC()
		for _, sa := range assignments {
			exists, err := svc.repo.StudentFeeExists(ctx, sa.StudentID, fs.ID, exec)
			if err != nil {
				return errors.Wrap(err, "checking student fee")
			}
			if exists {
				result.Skipped = append(result.Skipped, sa.StudentID)
				continue
			}

			sf := StudentFee{
				ID:             uuid.New().String(),
				StudentID:      sa.StudentID,
				FeeStructureID: fs.ID,
				TotalAmount:    fs.Amount,
				DiscountAmount: sa.Discount,
				PaidAmount:     decimal.Zero,
				DueDate:        fs.DueDate,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			sf.Recalculate()
			if sf, err = svc.repo.CreateStudentFee(ctx, sf, exec); err != nil {
				return errors.Wrap(err, "creating student fee")
			}
			result.Created = append(result.Created, sf)
		}
		return nil
	})
	if err != nil {
		return AssignResult{}, err
	}

	svc.recorder.FeesAssigned(len(result.Created))
	svc.logger.Info(fmt.Sprintf(
		"fee structure %s assigned to %d student(s), %d skipped",
		fs.ID, len(result.Created), len(result.Skipped),
	))
	return result, nil
}

// resolveAssignments checks every student is an active student of the structure's program.
// An empty list assigns the structure to every active student of the program.
func (svc *Service) resolveAssignments(ctx context.Context, fs FeeStructure, students []StudentAssignment) ([]StudentAssignment, error) {
	if len(students) == 0 {
		usrs, err := svc.students.QueryStudents(ctx, fs.Program)
		if err != nil {
			return nil, errors.Wrap(err, "querying students")
		}
		assignments := make([]StudentAssignment, 0, len(usrs))
		for _, usr := range usrs {
			assignments = append(assignments, StudentAssignment{StudentID: usr.ID, Discount: decimal.Zero})
		}
		return assignments, nil
	}

	seen := make(map[string]bool, len(students))
	assignments := make([]StudentAssignment, 0, len(students))
	for i, sa := range students {
		field := fmt.Sprintf("students[%d]", i)
		if seen[sa.StudentID] {
			continue
		}
		seen[sa.StudentID] = true

		if sa.Discount.GreaterThan(fs.Amount) {
			return nil, fieldErr(ErrDiscountExceedsTotal, field+".discount")
		}

		usr, err := svc.students.GetByID(ctx, sa.StudentID)
		if err != nil && !core.IsNotFound(err) {
			return nil, errors.Wrap(err, "finding student")
		}
		if err != nil || !isStudentOf(usr, fs.Program) {
			return nil, fieldErr(ErrNotAStudent, field+".student_id")
		}
		assignments = append(assignments, sa)
	}
	return assignments, nil
}

func isStudentOf(usr user.User, program string) bool {
	return usr.Active() && usr.IsStudent() && strings.EqualFold(usr.Program, program)
}

package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
)

// mirrors the UNIQUE constraint on fee_payment.receipt_number
var errDuplicateReceipt = errors.New("duplicate receipt number")

type feeRepository struct {
	db *DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{db: db}
}

// Fee heads

func (repo *feeRepository) CreateFeeHead(_ context.Context, head fee.FeeHead, exec ...core.DBExecutor) (fee.FeeHead, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if head.ID == "" {
		head.ID = uuid.New().String()
	}
	put(exec, repo.db.feeHead, head.ID, head)
	return head, nil
}

func (repo *feeRepository) GetFeeHead(_ context.Context, id string, _ ...core.DBExecutor) (fee.FeeHead, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if head, ok := repo.db.feeHead[id]; ok {
		return head, nil
	}
	return fee.FeeHead{}, fee.ErrFeeHeadNotFound
}

func (repo *feeRepository) QueryFeeHeads(_ context.Context, _ ...core.DBExecutor) ([]fee.FeeHead, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	heads := make([]fee.FeeHead, 0, len(repo.db.feeHead))
	for _, head := range repo.db.feeHead {
		heads = append(heads, head)
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].Name < heads[j].Name })
	return heads, nil
}

// Fee structures

func (repo *feeRepository) CreateFeeStructure(_ context.Context, fs fee.FeeStructure, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if fs.ID == "" {
		fs.ID = uuid.New().String()
	}
	put(exec, repo.db.feeStructure, fs.ID, fs)
	return fs, nil
}

func (repo *feeRepository) GetFeeStructure(_ context.Context, id string, _ ...core.DBExecutor) (fee.FeeStructure, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if fs, ok := repo.db.feeStructure[id]; ok {
		return fs, nil
	}
	return fee.FeeStructure{}, fee.ErrFeeStructureNotFound
}

// LockFeeStructure is a plain read: DB.RunInTx already runs transactions one at a time.
func (repo *feeRepository) LockFeeStructure(ctx context.Context, id string, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	return repo.GetFeeStructure(ctx, id, exec...)
}

func (repo *feeRepository) QueryFeeStructures(_ context.Context, filter *fee.StructureFilter, _ ...core.DBExecutor) ([]fee.FeeStructure, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	structures := make([]fee.FeeStructure, 0, len(repo.db.feeStructure))
	for _, fs := range repo.db.feeStructure {
		if filter != nil {
			if filter.Program != "" && !strings.EqualFold(fs.Program, filter.Program) {
				continue
			}
			if filter.AcademicSession != "" && fs.AcademicSession != filter.AcademicSession {
				continue
			}
			if filter.FeeHeadID != "" && fs.FeeHeadID != filter.FeeHeadID {
				continue
			}
			if filter.IsActive != nil && fs.IsActive != *filter.IsActive {
				continue
			}
		}
		structures = append(structures, fs)
	}

	sort.Slice(structures, func(i, j int) bool {
		a, b := structures[i], structures[j]
		if a.AcademicSession != b.AcademicSession {
			return a.AcademicSession > b.AcademicSession
		}
		if a.Program != b.Program {
			return a.Program < b.Program
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return structures, nil
}

func (repo *feeRepository) UpdateFeeStructure(_ context.Context, fs fee.FeeStructure, exec ...core.DBExecutor) (fee.FeeStructure, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.feeStructure[fs.ID]; !ok {
		return fee.FeeStructure{}, fee.ErrFeeStructureNotFound
	}
	put(exec, repo.db.feeStructure, fs.ID, fs)
	return fs, nil
}

func (repo *feeRepository) CountStudentFees(_ context.Context, structureID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var count int
	for _, sf := range repo.db.studentFee {
		if sf.FeeStructureID == structureID {
			count++
		}
	}
	return count, nil
}

// Student fees

func (repo *feeRepository) CreateStudentFee(_ context.Context, sf fee.StudentFee, exec ...core.DBExecutor) (fee.StudentFee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if sf.ID == "" {
		sf.ID = uuid.New().String()
	}
	put(exec, repo.db.studentFee, sf.ID, sf)
	return sf, nil
}

func (repo *feeRepository) GetStudentFee(_ context.Context, id string, _ ...core.DBExecutor) (fee.StudentFee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sf, ok := repo.db.studentFee[id]; ok {
		return sf, nil
	}
	return fee.StudentFee{}, fee.ErrStudentFeeNotFound
}

// LockStudentFee is a plain read: DB.RunInTx already runs transactions one at a time.
func (repo *feeRepository) LockStudentFee(ctx context.Context, id string, exec ...core.DBExecutor) (fee.StudentFee, error) {
	return repo.GetStudentFee(ctx, id, exec...)
}

func (repo *feeRepository) StudentFeeExists(_ context.Context, studentID, structureID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sf := range repo.db.studentFee {
		if sf.StudentID == studentID && sf.FeeStructureID == structureID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *feeRepository) QueryStudentFees(_ context.Context, filter *fee.StudentFeeFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]fee.StudentFee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	today := core.Today()
	fees := make([]fee.StudentFee, 0)
	for _, sf := range repo.db.studentFee {
		if filter != nil {
			if filter.StudentID != "" && sf.StudentID != filter.StudentID {
				continue
			}
			if filter.FeeStructureID != "" && sf.FeeStructureID != filter.FeeStructureID {
				continue
			}
			if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, sf.Status) {
				continue
			}
			if filter.Overdue && !sf.IsOverdue(today) {
				continue
			}
		}
		fees = append(fees, sf)
	}

	sortStudentFees(fees, ordering)
	return fees, nil
}

func hasStatus(statuses []fee.Status, status fee.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortStudentFees(fees []fee.StudentFee, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(fees, func(i, j int) bool {
		a, b := fees[i], fees[j]
		for _, ord := range ordering {
			var c int
			switch ord.Field {
			case "due_date":
				c = a.DueDate.Compare(b.DueDate)
			case "created_at":
				c = a.CreatedAt.Compare(b.CreatedAt)
			case "outstanding_amount":
				c = a.OutstandingAmount.Cmp(b.OutstandingAmount)
			case "status":
				c = strings.Compare(string(a.Status), string(b.Status))
			}
			if c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return a.ID < b.ID
	})
}

func (repo *feeRepository) UpdateStudentFeeAmounts(_ context.Context, sf fee.StudentFee, exec ...core.DBExecutor) (fee.StudentFee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.studentFee[sf.ID]
	if !ok {
		return fee.StudentFee{}, fee.ErrStudentFeeNotFound
	}
	orig.PaidAmount = sf.PaidAmount
	orig.OutstandingAmount = sf.OutstandingAmount
	orig.Status = sf.Status
	orig.UpdatedAt = sf.UpdatedAt
	put(exec, repo.db.studentFee, sf.ID, orig)
	return orig, nil
}

// Payments

func (repo *feeRepository) NextReceiptSequence(_ context.Context, _ ...core.DBExecutor) (int64, error) {
	return repo.db.nextReceiptSeq(), nil
}

func (repo *feeRepository) CreatePayment(_ context.Context, p fee.FeePayment, exec ...core.DBExecutor) (fee.FeePayment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	for _, existing := range repo.db.payment {
		if existing.ReceiptNumber == p.ReceiptNumber {
			return fee.FeePayment{}, errDuplicateReceipt
		}
	}
	put(exec, repo.db.payment, p.ID, p)
	return p, nil
}

func (repo *feeRepository) GetPayment(_ context.Context, id string, _ ...core.DBExecutor) (fee.FeePayment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.payment[id]; ok {
		return p, nil
	}
	return fee.FeePayment{}, fee.ErrPaymentNotFound
}

func (repo *feeRepository) GetPaymentByReceipt(_ context.Context, receiptNumber string, _ ...core.DBExecutor) (fee.FeePayment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.payment {
		if p.ReceiptNumber == receiptNumber {
			return p, nil
		}
	}
	return fee.FeePayment{}, fee.ErrPaymentNotFound
}

func (repo *feeRepository) QueryPayments(_ context.Context, filter *fee.PaymentFilter, _ ...core.DBExecutor) ([]fee.FeePayment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	pmts := make([]fee.FeePayment, 0)
	for _, p := range repo.db.payment {
		if filter != nil {
			if filter.StudentID != "" && repo.db.studentFee[p.StudentFeeID].StudentID != filter.StudentID {
				continue
			}
			if filter.StudentFeeID != "" && p.StudentFeeID != filter.StudentFeeID {
				continue
			}
			if len(filter.Methods) > 0 && !hasMethod(filter.Methods, p.Method) {
				continue
			}
			if !filter.From.IsZero() && p.PaymentDate.Before(core.TruncateDay(filter.From)) {
				continue
			}
			if !filter.To.IsZero() && p.PaymentDate.After(core.TruncateDay(filter.To)) {
				continue
			}
		}
		pmts = append(pmts, p)
	}

	sort.Slice(pmts, func(i, j int) bool {
		if !pmts[i].CreatedAt.Equal(pmts[j].CreatedAt) {
			return pmts[i].CreatedAt.Before(pmts[j].CreatedAt)
		}
		return pmts[i].ReceiptNumber < pmts[j].ReceiptNumber
	})
	return pmts, nil
}

func hasMethod(methods []fee.PaymentMethod, method fee.PaymentMethod) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// Gateway orders

func (repo *feeRepository) CreateGatewayOrder(_ context.Context, order fee.GatewayOrder, exec ...core.DBExecutor) (fee.GatewayOrder, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	put(exec, repo.db.gatewayOrder, order.Reference, order)
	return order, nil
}

func (repo *feeRepository) LockGatewayOrder(_ context.Context, reference string, _ ...core.DBExecutor) (fee.GatewayOrder, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if order, ok := repo.db.gatewayOrder[reference]; ok {
		return order, nil
	}
	return fee.GatewayOrder{}, fee.ErrOrderNotFound
}

func (repo *feeRepository) UpdateGatewayOrder(_ context.Context, order fee.GatewayOrder, exec ...core.DBExecutor) (fee.GatewayOrder, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.gatewayOrder[order.Reference]; !ok {
		return fee.GatewayOrder{}, fee.ErrOrderNotFound
	}
	put(exec, repo.db.gatewayOrder, order.Reference, order)
	return order, nil
}

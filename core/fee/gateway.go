package fee

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/user"
)

const orderRefPrefix = "ORD-"

// StartCheckout opens a GatewayOrder for `nc` and asks the payment gateway for a checkout.
// Students may only pay their own fees.
func (svc *Service) StartCheckout(ctx context.Context, nc NewCheckout, requester user.User) (GatewayOrder, error) {
	if svc.gateway == nil {
		return GatewayOrder{}, core.NewValidationError(ErrGatewayDisabled)
	}
	if err := nc.Validate(svc.validate); err != nil {
		return GatewayOrder{}, err
	}

	sf, err := svc.repo.GetStudentFee(ctx, nc.StudentFeeID)
	if err != nil {
		return GatewayOrder{}, err
	}
	if requester.IsStudent() && !requester.IsAdmin() && sf.StudentID != requester.ID {
		return GatewayOrder{}, ErrStudentFeeNotFound
	}
	if nc.Amount.GreaterThan(sf.OutstandingAmount) {
		return GatewayOrder{}, fieldErr(ErrExceedsOutstanding, "amount")
	}

	student, err := svc.students.GetByID(ctx, sf.StudentID)
	if err != nil {
		return GatewayOrder{}, errors.Wrap(err, "finding student")
	}

	now := core.NowFunc().UTC()
	order := GatewayOrder{
		Reference:    orderRefPrefix + uuid.New().String(),
		StudentFeeID: sf.ID,
		Amount:       nc.Amount,
		Status:       OrderCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	checkout, err := svc.gateway.CreateCheckout(ctx, order, student)
	if err != nil {
		return GatewayOrder{}, errors.Wrap(err, "creating gateway checkout")
	}
	order.Token = checkout.Token
	order.RedirectURL = checkout.RedirectURL

	if order, err = svc.repo.CreateGatewayOrder(ctx, order); err != nil {
		return GatewayOrder{}, errors.Wrap(err, "creating gateway order")
	}
	svc.logger.Info(fmt.Sprintf("gateway order %s of %s opened on student fee %s", order.Reference, order.Amount, sf.ID))
	return order, nil
}

// ConfirmExternalPayment records the payment of a GatewayOrder the gateway reported as settled.
// Confirming an order that is already paid returns its existing receipt.
func (svc *Service) ConfirmExternalPayment(ctx context.Context, ep ExternalPayment) (Receipt, error) {
	var (
		rcpt    Receipt
		created bool
	)
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		order, err := svc.repo.LockGatewayOrder(ctx, core.CleanString(ep.OrderReference), exec)
		if err != nil {
			return err
		}

		switch order.Status {
		case OrderPaid:
			pmt, err := svc.repo.GetPayment(ctx, order.PaymentID, exec)
			if err != nil {
				return errors.Wrap(err, "finding order payment")
			}
			sf, err := svc.repo.GetStudentFee(ctx, order.StudentFeeID, exec)
			if err != nil {
				return errors.Wrap(err, "finding order student fee")
			}
			rcpt = Receipt{Payment: pmt, StudentFee: sf}
			return nil
		case OrderFailed:
			return core.NewValidationError(ErrOrderClosed)
		}

		if !ep.Amount.Equal(order.Amount) {
			return fieldErr(ErrAmountMismatch, "amount")
		}

		// method `online` is not a manual method, so the payment skips NewPayment validation
		rcpt, err = svc.applyPayment(ctx, exec, NewPayment{
			StudentFeeID:  order.StudentFeeID,
			Amount:        order.Amount,
			PaymentDate:   core.Today(),
			Method:        MethodOnline,
			TransactionID: core.CleanString(ep.TransactionID),
			Remarks:       "gateway order " + order.Reference,
		})
		if err != nil {
			return err
		}

		order.Status = OrderPaid
		order.PaymentID = rcpt.Payment.ID
		order.TransactionID = rcpt.Payment.TransactionID
		order.UpdatedAt = core.NowFunc().UTC()
		if _, err = svc.repo.UpdateGatewayOrder(ctx, order, exec); err != nil {
			return errors.Wrap(err, "updating gateway order")
		}
		created = true
		return nil
	})
	if err != nil {
		svc.recorder.GatewayNotification("rejected")
		svc.logger.Warn(fmt.Sprintf("confirming gateway order %s: %v", ep.OrderReference, err))
		return Receipt{}, err
	}

	if created {
		svc.recorder.GatewayNotification("confirmed")
		svc.paymentRecorded(ctx, rcpt)
	} else {
		svc.recorder.GatewayNotification("duplicate")
	}
	return rcpt, nil
}

// FailExternalPayment closes a GatewayOrder the gateway reported as denied, cancelled or expired.
// Paid orders are left untouched.
func (svc *Service) FailExternalPayment(ctx context.Context, orderReference string) (GatewayOrder, error) {
	var order GatewayOrder
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if order, err = svc.repo.LockGatewayOrder(ctx, core.CleanString(orderReference), exec); err != nil {
			return err
		}
		if order.Status != OrderCreated {
			return nil
		}
		order.Status = OrderFailed
		order.UpdatedAt = core.NowFunc().UTC()
		order, err = svc.repo.UpdateGatewayOrder(ctx, order, exec)
		return errors.Wrap(err, "updating gateway order")
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	svc.recorder.GatewayNotification("failed")
	return order, nil
}

package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/services/gateway"
)

type paymentApi struct {
	svc     *fee.Service
	usrSvc  *user.Service
	gateway *gatewaysvc.Midtrans
	logger  core.Logger
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentApi{
		svc:     deps.FeeSvc,
		usrSvc:  deps.UserSvc,
		gateway: deps.Gateway,
		logger:  deps.Logger,
	}

	pg := g.Group("/payments")

	// called by the payment gateway, authenticated by the notification signature
	pg.POST("/webhook", api.webhook)

	ag := pg.Group("", jwt)
	ag.GET("", api.query)
	ag.POST("", api.record, financeMiddleware())
	ag.POST("/checkout", api.checkout)
	ag.GET("/:receipt/pdf", api.receiptPDF)
}

func (api *paymentApi) record(ctx echo.Context) error {
	var data fee.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data.RecordedBy = ctxUsr.ID

	rcpt, err := api.svc.RecordPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *paymentApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var dates DateRange
	if err = dates.Bind(ctx); err != nil {
		return err
	}
	filter := &fee.PaymentFilter{
		StudentID:    ctx.QueryParam("student_id"),
		StudentFeeID: ctx.QueryParam("student_fee_id"),
		From:         dates.From,
		To:           dates.To,
	}
	for _, m := range ctx.QueryParams()["method"] {
		filter.Methods = append(filter.Methods, fee.PaymentMethod(strings.ToLower(strings.TrimSpace(m))))
	}
	filter.Clean()

	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsStudent():
		filter.StudentID = ctxUsr.ID
	default:
		return errHttpForbidden
	}

	pmts, err := api.svc.QueryPayments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []fee.FeePayment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *paymentApi) receiptPDF(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()

	pmt, err := api.svc.GetPaymentByReceipt(rctx, ctx.Param("receipt"))
	if err != nil {
		return errors.Wrap(err, "finding payment")
	}
	if !ctxUsr.IsAdmin() {
		sf, err := api.svc.GetStudentFee(rctx, pmt.StudentFeeID)
		if err != nil {
			return errors.Wrap(err, "finding student fee")
		}
		if sf.StudentID != ctxUsr.ID {
			return errHttpNotFound
		}
	}

	content, contentType, err := api.svc.RenderReceipt(rctx, pmt.ReceiptNumber)
	if err != nil {
		return errors.Wrap(err, "rendering receipt")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", pmt.ReceiptNumber+".pdf"))
	return ctx.Blob(http.StatusOK, contentType, content)
}

func (api *paymentApi) checkout(ctx echo.Context) error {
	var data fee.NewCheckout
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckout")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !(ctxUsr.IsStudent() || ctxUsr.IsAdmin()) {
		return errHttpForbidden
	}

	order, err := api.svc.StartCheckout(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "starting checkout")
	}
	return ctx.JSON(http.StatusCreated, order)
}

type webhookResponse struct {
	Outcome string       `json:"outcome"`
	Receipt *fee.Receipt `json:"receipt,omitempty"`
}

func (api *paymentApi) webhook(ctx echo.Context) error {
	if api.gateway == nil {
		return errHttpNotFound
	}

	var n gatewaysvc.Notification
	if err := ctx.Bind(&n); err != nil {
		return errors.Wrap(err, "binding to Notification")
	}
	if !api.gateway.VerifySignature(n) {
		api.logger.Warn(fmt.Sprintf("webhook: invalid signature for order %q", n.OrderID))
		return errInvalidSignature
	}

	outcome := n.Outcome()
	resp := webhookResponse{Outcome: outcome.String()}
	rctx := ctx.Request().Context()

	switch outcome {
	case gatewaysvc.OutcomeConfirm:
		ep, err := n.ExternalPayment()
		if err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "gross_amount", Error: err.Error()})
		}
		rcpt, err := api.svc.ConfirmExternalPayment(rctx, ep)
		if err != nil {
			return errors.Wrap(err, "confirming external payment")
		}
		resp.Receipt = &rcpt
	case gatewaysvc.OutcomeFail:
		if _, err := api.svc.FailExternalPayment(rctx, n.OrderID); err != nil {
			return errors.Wrap(err, "failing external payment")
		}
	default:
		api.logger.Info(fmt.Sprintf("webhook: ignoring %q notification for order %q", n.TransactionStatus, n.OrderID))
	}
	return ctx.JSON(http.StatusOK, resp)
}

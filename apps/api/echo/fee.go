package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/services/export"
)

type feeApi struct {
	conf   *core.Config
	svc    *fee.Service
	usrSvc *user.Service
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := feeApi{
		conf:   deps.Conf,
		svc:    deps.FeeSvc,
		usrSvc: deps.UserSvc,
	}

	hg := g.Group("/fee-heads", jwt, adminMiddleware())
	hg.GET("", api.queryFeeHeads)
	hg.POST("", api.createFeeHead, financeMiddleware())

	sg := g.Group("/fee-structures", jwt, adminMiddleware())
	sg.GET("", api.queryFeeStructures)
	sg.POST("", api.createFeeStructure, financeMiddleware())
	sg.GET("/:id", api.retrieveFeeStructure)
	sg.PATCH("/:id", api.updateFeeStructure, financeMiddleware())
	sg.POST("/:id/assign", api.assignFees, financeMiddleware())

	fg := g.Group("/student-fees", jwt)
	fg.GET("", api.queryStudentFees)
	fg.GET("/export", api.exportLedger, adminMiddleware())
	fg.GET("/:id", api.retrieveStudentFee)

	g.GET("/students/:id/statement", api.statement, jwt, selfOrAdminMiddleware(api.usrSvc, "id"))
}

// Fee heads & structures

func (api *feeApi) createFeeHead(ctx echo.Context) error {
	var data fee.NewFeeHead
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeHead")
	}
	head, err := api.svc.CreateFeeHead(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee head")
	}
	return ctx.JSON(http.StatusCreated, head)
}

func (api *feeApi) queryFeeHeads(ctx echo.Context) error {
	heads, err := api.svc.QueryFeeHeads(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying fee heads")
	}
	if heads == nil {
		heads = []fee.FeeHead{}
	}
	return ctx.JSON(http.StatusOK, heads)
}

func (api *feeApi) createFeeStructure(ctx echo.Context) error {
	var data fee.NewFeeStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeStructure")
	}
	fs, err := api.svc.CreateFeeStructure(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee structure")
	}
	return ctx.JSON(http.StatusCreated, fs)
}

func (api *feeApi) queryFeeStructures(ctx echo.Context) error {
	filter := &fee.StructureFilter{
		Program:         ctx.QueryParam("program"),
		AcademicSession: ctx.QueryParam("academic_session"),
		FeeHeadID:       ctx.QueryParam("fee_head_id"),
	}
	if val := ctx.QueryParam("is_active"); val != "" {
		active, err := strconv.ParseBool(val)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "must be true or false"})
		}
		filter.IsActive = &active
	}
	filter.Clean()

	structures, err := api.svc.QueryFeeStructures(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fee structures")
	}
	if structures == nil {
		structures = []fee.FeeStructure{}
	}
	return ctx.JSON(http.StatusOK, structures)
}

func (api *feeApi) retrieveFeeStructure(ctx echo.Context) error {
	fs, err := api.svc.GetFeeStructure(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee structure")
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *feeApi) updateFeeStructure(ctx echo.Context) error {
	var data fee.UpdateFeeStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeStructure")
	}
	fs, err := api.svc.UpdateFeeStructure(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee structure")
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *feeApi) assignFees(ctx echo.Context) error {
	var data fee.AssignFees
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignFees")
	}
	data.FeeStructureID = ctx.Param("id")

	res, err := api.svc.AssignFees(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning fees")
	}
	if res.Created == nil {
		res.Created = []fee.StudentFee{}
	}
	if res.Skipped == nil {
		res.Skipped = []string{}
	}
	return ctx.JSON(http.StatusCreated, res)
}

// Student fees

// studentFeeFilter binds the student fee query params.
// Students only ever see their own fees, whatever they ask for.
func (api *feeApi) studentFeeFilter(ctx echo.Context) (*fee.StudentFeeFilter, error) {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return nil, errors.Wrap(err, "getting context user")
	}

	filter := &fee.StudentFeeFilter{
		StudentID:      ctx.QueryParam("student_id"),
		FeeStructureID: ctx.QueryParam("fee_structure_id"),
	}
	for _, s := range ctx.QueryParams()["status"] {
		filter.Statuses = append(filter.Statuses, fee.Status(strings.ToLower(strings.TrimSpace(s))))
	}
	if val := ctx.QueryParam("overdue"); val != "" {
		if filter.Overdue, err = strconv.ParseBool(val); err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "overdue", Error: "must be true or false"})
		}
	}
	filter.Clean()

	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsStudent():
		filter.StudentID = ctxUsr.ID
	default:
		return nil, errHttpForbidden
	}
	return filter, nil
}

func (api *feeApi) queryStudentFees(ctx echo.Context) error {
	filter, err := api.studentFeeFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	fees, err := api.svc.QueryStudentFees(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying student fees")
	}
	if fees == nil {
		fees = []fee.StudentFee{}
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *feeApi) retrieveStudentFee(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sf, err := api.svc.GetStudentFee(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student fee")
	}
	if !ctxUsr.IsAdmin() && sf.StudentID != ctxUsr.ID {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, sf)
}

func (api *feeApi) exportLedger(ctx echo.Context) error {
	filter, err := api.studentFeeFilter(ctx)
	if err != nil {
		return err
	}

	entries, err := api.svc.Ledger(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "building ledger")
	}
	content, err := exportsvc.LedgerXLSX(entries, api.conf.Ledger.Currency)
	if err != nil {
		return errors.Wrap(err, "exporting ledger")
	}

	filename := fmt.Sprintf("ledger-%s.xlsx", core.Today().Format("20060102"))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, exportsvc.XLSXContentType, content)
}

func (api *feeApi) statement(ctx echo.Context) error {
	stmt, err := api.svc.StudentStatement(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building statement")
	}
	return ctx.JSON(http.StatusOK, stmt)
}

package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core/scholarship"
	"github.com/trezcool/masomo-fees/core/user"
)

type scholarshipApi struct {
	svc    *scholarship.Service
	usrSvc *user.Service
}

func registerScholarshipAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := scholarshipApi{
		svc:    deps.ScholarshipSvc,
		usrSvc: deps.UserSvc,
	}

	sg := g.Group("/scholarships", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create, financeMiddleware())
	sg.PATCH("/:id", api.setActive, financeMiddleware())
	sg.POST("/:id/apply", api.apply)

	ag := g.Group("/scholarship-applications", jwt)
	ag.GET("", api.queryApplications)
	ag.POST("/:id/review", api.review, financeMiddleware())
}

func (api *scholarshipApi) create(ctx echo.Context) error {
	var data scholarship.NewScholarship
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScholarship")
	}
	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating scholarship")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

// query lists the scholarships; only admins see the closed ones.
func (api *scholarshipApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	scholarships, err := api.svc.Query(ctx.Request().Context(), !claims.IsAdmin)
	if err != nil {
		return errors.Wrap(err, "querying scholarships")
	}
	if scholarships == nil {
		scholarships = []scholarship.Scholarship{}
	}
	return ctx.JSON(http.StatusOK, scholarships)
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (api *scholarshipApi) setActive(ctx echo.Context) error {
	var data setActiveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to setActiveRequest")
	}
	sch, err := api.svc.SetActive(ctx.Request().Context(), ctx.Param("id"), data.IsActive)
	if err != nil {
		return errors.Wrap(err, "updating scholarship")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scholarshipApi) apply(ctx echo.Context) error {
	var data scholarship.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	data.ScholarshipID = ctx.Param("id")

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	app, err := api.svc.Apply(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "applying for scholarship")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *scholarshipApi) queryApplications(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := &scholarship.ApplicationFilter{
		ScholarshipID: ctx.QueryParam("scholarship_id"),
		StudentID:     ctx.QueryParam("student_id"),
	}
	for _, s := range ctx.QueryParams()["status"] {
		filter.Statuses = append(filter.Statuses, scholarship.Status(strings.ToLower(strings.TrimSpace(s))))
	}
	filter.Clean()

	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsStudent():
		filter.StudentID = ctxUsr.ID
	default:
		return errHttpForbidden
	}

	apps, err := api.svc.QueryApplications(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []scholarship.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *scholarshipApi) review(ctx echo.Context) error {
	var data scholarship.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data.ReviewerID = ctxUsr.ID

	app, err := api.svc.Review(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing application")
	}
	return ctx.JSON(http.StatusOK, app)
}

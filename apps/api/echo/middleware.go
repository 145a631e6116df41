package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core/user"
)

// adminMiddleware only lets admins through; when roles are given, the admin must hold one of them.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// financeMiddleware restricts ledger writes to the bursar, principal & owner.
func financeMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.FinanceRoles...)
}

// selfOrAdminMiddleware lets through admins and the user whose ID is the `param` path parameter.
func selfOrAdminMiddleware(svc *user.Service, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if ctx.Param(param) == ctxUsr.ID || ctxUsr.IsAdmin() {
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

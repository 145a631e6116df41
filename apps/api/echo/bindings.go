package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-fees/core"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// DateRange binds the `from` & `to` query params, given as YYYY-MM-DD.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (dr *DateRange) Bind(ctx echo.Context) error {
	var flds []core.FieldError
	for param, dst := range map[string]*time.Time{"from": &dr.From, "to": &dr.To} {
		val := strings.TrimSpace(ctx.QueryParam(param))
		if val == "" {
			continue
		}
		t, err := time.Parse(dateLayout, val)
		if err != nil {
			flds = append(flds, core.FieldError{Field: param, Error: "must be a date formatted as YYYY-MM-DD"})
			continue
		}
		*dst = t
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

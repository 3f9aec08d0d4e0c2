package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/schoolfees/core"
)

const orderingParam = "ordering"

// bindOrdering reads `?ordering=-remaining_fees,academic_year` ("-" for descending).
// Blank and repeated fields are dropped; unknown ones are left to the repositories.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	raw := ctx.QueryParam(orderingParam)
	if raw == "" {
		return nil
	}

	var orderings []core.DBOrdering
	seen := make(map[string]bool)
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// Graph permissions as carried in the "permissions" JWT claim.
const (
	PermGraphCreate = "graph.create"
	PermGraphDelete = "graph.delete"
	PermGraphView   = "graph.view"
	// PermGraphAll grants every graph permission.
	PermGraphAll = "graph.*"
)

var allPermissions = []string{
	PermGraphCreate,
	PermGraphDelete,
	PermGraphView,
}

// CanAccessGraph reports whether user holds at least one of perms, either
// directly or through PermGraphAll.
func CanAccessGraph(user *AppUser, perms ...string) bool {
	if user == nil {
		return false
	}
	for _, held := range user.Permissions {
		if held == PermGraphAll && slices.ContainsFunc(perms, isGraphPermission) {
			return true
		}
		if slices.Contains(perms, held) {
			return true
		}
	}
	return false
}

func isGraphPermission(p string) bool {
	return strings.HasPrefix(p, "graph.")
}

// RequireGraphAccess guards a graph route. Requests without a user get 401,
// users holding none of perms get 403.
func RequireGraphAccess(perms ...string) echo.MiddlewareFunc {
	denied := map[string]string{"error": "Forbidden: missing permission " + strings.Join(perms, " or ")}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := c.(*AppContext)
			if !ok || ac.User == nil {
				return unauthorized(c)
			}
			if !CanAccessGraph(ac.User, perms...) {
				return c.JSON(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}

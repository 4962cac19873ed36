package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCanAccessGraph(t *testing.T) {
	tests := []struct {
		name  string
		user  *AppUser
		perms []string
		want  bool
	}{
		{"no user", nil, []string{PermGraphView}, false},
		{"held", &AppUser{Permissions: []string{PermGraphView}}, []string{PermGraphView}, true},
		{"other permission", &AppUser{Permissions: []string{PermGraphCreate}}, []string{PermGraphDelete}, false},
		{"any of several", &AppUser{Permissions: []string{PermGraphCreate}}, []string{PermGraphCreate, PermGraphView}, true},
		{"wildcard", &AppUser{Permissions: []string{PermGraphAll}}, []string{PermGraphDelete}, true},
		{"wildcard outside graph", &AppUser{Permissions: []string{PermGraphAll}}, []string{"user.admin"}, false},
		{"empty permissions", &AppUser{}, []string{PermGraphView}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccessGraph(tt.user, tt.perms...); got != tt.want {
				t.Errorf("CanAccessGraph() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireGraphAccess(t *testing.T) {
	tests := []struct {
		name     string
		wrap     bool
		user     *AppUser
		wantCode int
		wantBody string
	}{
		{"plain context", false, nil, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"no user", true, nil, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"missing permission", true, &AppUser{Permissions: []string{PermGraphCreate}}, http.StatusForbidden,
			`{"error":"Forbidden: missing permission graph.view or graph.delete"}`},
		{"allowed", true, &AppUser{Permissions: []string{PermGraphDelete}}, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			var c echo.Context = e.NewContext(httptest.NewRequest(http.MethodDelete, "/api/graphs/g1", nil), rec)
			if tt.wrap {
				c = &AppContext{Context: c, App: &App{}, User: tt.user}
			}

			h := RequireGraphAccess(PermGraphView, PermGraphDelete)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})
			if err := h(c); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Body.String(); got != tt.wantBody && got != tt.wantBody+"\n" {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

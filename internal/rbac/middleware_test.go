package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"booking-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(t *testing.T, org, role string, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", org, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })

	r := gin.New()
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serveAs(t, "o", RoleSuperAdmin, RequireOrganization(), RequireAnyRole(Managers...)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_StaffCannotManage(t *testing.T) {
	if code := serveAs(t, "o", RoleStaff, RequireOrganization(), RequireAnyRole(Managers...)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveAs(t, "o", RoleStaff, RequireOrganization(), RequireAnyRole(Operators...)); code != 200 {
		t.Fatalf("expected staff to operate, got %d", code)
	}
}

func TestRequireOrganization_Required(t *testing.T) {
	if code := serveAs(t, "", RoleOwner, RequireOrganization(), RequireAnyRole(RoleOwner)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

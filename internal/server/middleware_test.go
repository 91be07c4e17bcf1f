package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	holdingdomain "github.com/smallbiznis/reserva/internal/holding/domain"
	pointsdomain "github.com/smallbiznis/reserva/internal/points/domain"
)

func newTenantTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.Use(TenantRequired())
	r.GET("/echo", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantFromContext(c).String()})
	})
	return r
}

func TestTenantRequiredRejectsMissingHeader(t *testing.T) {
	r := newTenantTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant header, got %d", w.Code)
	}
}

func TestTenantRequiredRejectsMalformedHeader(t *testing.T) {
	r := newTenantTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderTenant, "not-a-number")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed tenant header, got %d", w.Code)
	}
}

func TestTenantRequiredPassesValidHeader(t *testing.T) {
	r := newTenantTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderTenant, "1234567890")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid tenant header, got %d", w.Code)
	}
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", pointsdomain.ErrInvalidAmount, http.StatusBadRequest},
		{"conflict", holdingdomain.ErrHoldingExists, http.StatusConflict},
		{"consistency", holdingdomain.ErrConsistency, http.StatusConflict},
		{"key reused", holdingdomain.ErrKeyReused, http.StatusConflict},
		{"not found", holdingdomain.ErrNotFound, http.StatusNotFound},
		{"entry not found", holdingdomain.ErrEntryNotFound, http.StatusNotFound},
		{"unknown", errTestSentinel, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			if status != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, status)
			}
		})
	}
}

var errTestSentinel = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }

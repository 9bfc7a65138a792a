package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestAdminRequestsCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminRequests(zerolog.Nop(), "mw-test"))
	r.GET("/items/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, path := range []string{"/items/1", "/items/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", "/items/:id", "204")); got != 2 {
		t.Fatalf("matched route count=%v want 2", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count=%v want 1", got)
	}
}

package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		v, _ := c.Get("request_id")
		seen, _ = v.(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen == "" {
		t.Fatalf("expected a generated request id to be stashed in context")
	}
	if w.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected response header to echo the stashed request id")
	}
}

func TestRequestID_PreservesIncomingHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "incoming-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get(requestIDHeader) != "incoming-id" {
		t.Fatalf("expected the incoming request id to be preserved, got %q", w.Header().Get(requestIDHeader))
	}
}

func TestRequestLogger_DoesNotAlterResponse(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusTeapot, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Fatalf("expected the logger to pass through the handler's status, got %d", w.Code)
	}
}

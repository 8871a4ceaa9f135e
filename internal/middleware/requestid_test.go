package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestRequestIDGenerated(t *testing.T) {
	router := newTestRouter()
	router.Use(RequestIDMiddleware())

	var seen string
	router.GET("/x", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	router.ServeHTTP(w, req)

	if seen == "" {
		t.Error("no request ID stored in context")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q, want %q", got, seen)
	}
}

func TestRequestIDPreserved(t *testing.T) {
	router := newTestRouter()
	router.Use(RequestIDMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "edge-assigned-id")
	router.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "edge-assigned-id" {
		t.Errorf("upstream request ID not preserved, got %q", got)
	}
}

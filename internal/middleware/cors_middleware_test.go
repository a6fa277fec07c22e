package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"listed origin", []string{"http://localhost:5173"}, "http://localhost:5173", "http://localhost:5173"},
		{"trailing slash in config", []string{"http://localhost:5173/"}, "http://localhost:5173", "http://localhost:5173"},
		{"unlisted origin", []string{"http://localhost:5173"}, "http://evil.test", ""},
		{"wildcard", []string{"*"}, "http://anything.test", "*"},
		{"no origin header", []string{"*"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(CORS(tt.allowed))
			engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Fatalf("allow-origin = %q, want %q", got, tt.want)
			}
		})
	}
}

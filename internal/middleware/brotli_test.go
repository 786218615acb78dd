package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func brotliEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 64, Skipper: SkipPathSuffix("/export")}))

	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/chunks", func(c *gin.Context) {
		c.Status(http.StatusOK)
		_, _ = c.Writer.WriteString(strings.Repeat("a", 100))
		_, _ = c.Writer.WriteString("tail")
	})
	r.GET("/results/export", func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("x", 200)) })
	return r
}

func TestBrotli(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		acceptBr     bool
		wantEncoding string
		wantBody     string
	}{
		{"short body stays plain", "/small", true, "", "ok"},
		{"later small chunk stays in stream", "/chunks", true, "br", strings.Repeat("a", 100) + "tail"},
		{"client without brotli", "/chunks", false, "", strings.Repeat("a", 100) + "tail"},
		{"skipped path", "/results/export", true, "", strings.Repeat("x", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptBr {
				req.Header.Set("Accept-Encoding", "gzip, br")
			}
			w := httptest.NewRecorder()
			brotliEngine().ServeHTTP(w, req)

			if got := w.Header().Get("Content-Encoding"); got != tt.wantEncoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.wantEncoding)
			}

			var body io.Reader = w.Body
			if tt.wantEncoding == "br" {
				body = brotli.NewReader(w.Body)
			}
			got, err := io.ReadAll(body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(got) != tt.wantBody {
				t.Fatalf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

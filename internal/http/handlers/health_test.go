package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

func TestReadyz(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name     string
		checks   map[string]handlers.Pinger
		wantCode int
	}{
		{name: "no checks", checks: nil, wantCode: http.StatusOK},
		{name: "nil pinger skipped", checks: map[string]handlers.Pinger{"db": nil}, wantCode: http.StatusOK},
		{name: "all up", checks: map[string]handlers.Pinger{
			"db":    func(context.Context) error { return nil },
			"redis": func(context.Context) error { return nil },
		}, wantCode: http.StatusOK},
		{name: "redis down", checks: map[string]handlers.Pinger{
			"db":    func(context.Context) error { return nil },
			"redis": func(context.Context) error { return down },
		}, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tt.checks)
			r := gin.New()
			r.GET("/readyz", h.Readyz)
			r.GET("/healthz", h.Healthz)

			if w := doRequest(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
				t.Fatalf("healthz = %d", w.Code)
			}

			w := doRequest(r, http.MethodGet, "/readyz", "")
			if w.Code != tt.wantCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestDocs(t *testing.T) {
	r := gin.New()
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	w := doRequest(r, http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("docs = %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/docs/openapi.yaml", "")
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("openapi = %d len=%d", w.Code, w.Body.Len())
	}
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/salehop/salehop-api/internal/config"
	"github.com/salehop/salehop-api/internal/domain/moderation"
	"github.com/salehop/salehop-api/internal/pkg/safety"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

func unconfiguredRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	provider := moderation.NewLazyProvider(func(ctx context.Context) (*moderation.Pipeline, func(), error) {
		return buildPipeline(ctx, cfg)
	})
	return newRouter(moderation.NewHandler(provider))
}

func TestRoutes(t *testing.T) {
	router := unconfiguredRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"events wrong method", http.MethodGet, "/moderation/events", "", http.StatusMethodNotAllowed},
		{"root wrong method", http.MethodPut, "/", "", http.StatusMethodNotAllowed},
		// Missing DATABASE_URL fails the invocation, not the process.
		{"events without database", http.MethodPost, "/moderation/events", `{"bucket":"b","name":"pending/x.jpg"}`, http.StatusInternalServerError},
		{"root without database", http.MethodPost, "/", `{"bucket":"b","name":"pending/x.jpg"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Fatal("expected X-Request-ID header")
			}
		})
	}
}

func TestBuildClassifier(t *testing.T) {
	store := storage.NewMemoryStore()

	c, err := buildClassifier(&config.Config{ClassifierProvider: "static", Env: "development"}, store)
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, ok := c.(safety.Static); !ok {
		t.Fatalf("expected safety.Static, got %T", c)
	}

	if _, err := buildClassifier(&config.Config{ClassifierProvider: "static", Env: "production"}, store); err == nil {
		t.Fatal("expected static classifier to be refused in production")
	}

	c, err = buildClassifier(&config.Config{ClassifierProvider: "vision", VisionEndpoint: "http://vision.local/v1/images:annotate"}, store)
	if err != nil {
		t.Fatalf("vision: %v", err)
	}
	if _, ok := c.(*safety.Vision); !ok {
		t.Fatalf("expected *safety.Vision, got %T", c)
	}

	if _, err := buildClassifier(&config.Config{ClassifierProvider: "tencent"}, store); err == nil {
		t.Fatal("expected missing tencent credentials to fail")
	}

	if _, err := buildClassifier(&config.Config{ClassifierProvider: "clarifai"}, store); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
}

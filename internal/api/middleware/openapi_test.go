package middleware

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/qrshare/internal/api/openapi"
)

func newTestValidator(t *testing.T) *OpenAPIValidator {
	t.Helper()
	v, err := NewOpenAPIValidator(openapi.Spec(), testLogger())
	if err != nil {
		t.Fatalf("NewOpenAPIValidator: %v", err)
	}
	return v
}

func TestNewOpenAPIValidator_InvalidDocument(t *testing.T) {
	if _, err := NewOpenAPIValidator([]byte("openapi: 3.0.3\npaths: 42\n"), testLogger()); err == nil {
		t.Error("ожидалась ошибка для некорректного документа")
	}
}

func TestOpenAPIValidator(t *testing.T) {
	v := newTestValidator(t)
	reached := func(t *testing.T) (http.Handler, *bool) {
		called := false
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			// тело JSON должно остаться доступным после проверки
			if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "application/json" {
				body, _ := io.ReadAll(r.Body)
				if len(body) == 0 {
					t.Error("тело запроса потеряно после валидации")
				}
			}
			w.WriteHeader(http.StatusOK)
		}), &called
	}

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		wantCode    int
		wantCalled  bool
	}{
		{"verify корректный", http.MethodPost, "/verify", "application/json", `{"fileId":"abc","password":""}`, http.StatusOK, true},
		{"verify без password", http.MethodPost, "/verify", "application/json", `{"fileId":"abc"}`, http.StatusBadRequest, false},
		{"verify не JSON", http.MethodPost, "/verify", "application/json", `{`, http.StatusBadRequest, false},
		{"verify пустой fileId", http.MethodPost, "/verify", "application/json", `{"fileId":"","password":"x"}`, http.StatusBadRequest, false},
		{"download с токеном", http.MethodGet, "/download/abc?token=t0k", "", "", http.StatusOK, true},
		{"download слишком длинный id", http.MethodGet, "/download/" + strings.Repeat("a", 129), "", "", http.StatusBadRequest, false},
		{"admin locked не bool", http.MethodGet, "/api/v1/admin/files?locked=maybe", "", "", http.StatusBadRequest, false},
		{"статика вне контракта", http.MethodGet, "/static/app.js", "", "", http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, called := reached(t)
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			v.Middleware()(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("статус: хотели %d, получили %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}
			if *called != tt.wantCalled {
				t.Errorf("вызов handler: хотели %v, получили %v", tt.wantCalled, *called)
			}
		})
	}
}

func TestOpenAPIValidator_MultipartNotConsumed(t *testing.T) {
	v := newTestValidator(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "a.txt")
	_, _ = fw.Write([]byte("hello"))
	_ = mw.Close()
	size := buf.Len()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if len(body) != size {
			t.Errorf("multipart тело прочитано валидатором: осталось %d из %d байт", len(body), size)
		}
	})).ServeHTTP(rec, req)
}

func TestRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = routePattern(req)
		})
	})
	r.Get("/download/{fileId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/download/abc123", nil))
	if got != "/download/{fileId}" {
		t.Errorf("ожидался шаблон /download/{fileId}, получен %q", got)
	}

	if p := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); p != unmatchedRoute {
		t.Errorf("без chi контекста: %q", p)
	}
}

func TestRequestID(t *testing.T) {
	handler := RequestID()(RequestLogger(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Error("request id отсутствует в контексте")
		}
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Header().Get(HeaderRequestID)) != 36 {
		t.Errorf("ожидался сгенерированный UUID, получен %q", rec.Header().Get(HeaderRequestID))
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "client-id-1")
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "client-id-1" {
		t.Errorf("X-Request-ID клиента должен сохраняться, получен %q", got)
	}
}

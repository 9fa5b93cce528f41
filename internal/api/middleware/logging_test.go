package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"успех", http.StatusOK, "INFO"},
		{"ошибка клиента", http.StatusForbidden, "WARN"},
		{"ошибка сервера", http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			})
			h := RequestID()(RequestLogger(logger)(next))

			req := httptest.NewRequest(http.MethodGet, "/download/abc?token=secret-token", nil)
			h.ServeHTTP(httptest.NewRecorder(), req)

			if strings.Contains(buf.String(), "secret-token") {
				t.Fatal("токен из query-строки не должен попадать в журнал")
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("разбор записи журнала: %v", err)
			}
			if entry["level"] != tt.level {
				t.Errorf("уровень: ожидался %s, получен %v", tt.level, entry["level"])
			}
			if entry["path"] != "/download/abc" {
				t.Errorf("path: %v", entry["path"])
			}
			if entry["status"] != float64(tt.status) || entry["bytes"] != float64(5) {
				t.Errorf("status/bytes: %v %v", entry["status"], entry["bytes"])
			}
			if id, _ := entry["request_id"].(string); id == "" {
				t.Error("request_id должен присутствовать")
			}
		})
	}
}

// health.go — обработчики health endpoints QR Share.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (каталог данных доступен на запись)
package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/bigkaa/qrshare/internal/config"
)

const serviceName = "qrshare"

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// StorageProber — проверка доступности хранилища blob'ов.
type StorageProber interface {
	Probe() error
}

// DependencyHealth — состояние внешних зависимостей (dephealth).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	storage StorageProber
	deps    DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// deps может быть nil, если административный API выключен.
func NewHealthHandler(storage StorageProber, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		deps:    deps,
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ liveness и readiness probe.
type healthResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe.
// Недоступное хранилище — fail (503); недоступный JWKS — degraded (200).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult),
	}

	statuses := make([]string, 0, 2)

	storage := healthCheckResult{Status: statusOK}
	if err := h.storage.Probe(); err != nil {
		storage = healthCheckResult{Status: statusFail, Message: err.Error()}
	}
	resp.Checks["storage"] = storage
	statuses = append(statuses, storage.Status)

	if h.deps != nil {
		health := h.deps.Health()
		names := make([]string, 0, len(health))
		for name := range health {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			check := healthCheckResult{Status: statusOK}
			if !health[name] {
				check = healthCheckResult{Status: statusDegraded, Message: "зависимость недоступна"}
			}
			resp.Checks[name] = check
			statuses = append(statuses, check.Status)
		}
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}

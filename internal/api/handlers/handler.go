// handler.go — основной обработчик API, реализующий contract.ServerInterface.
// Объединяет файловые, страничные и health-обработчики.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/qrshare/internal/api/contract"
	"github.com/bigkaa/qrshare/internal/server"
)

// APIHandler — основной обработчик QR Share.
// Реализует contract.ServerInterface, делегируя вызовы в отдельные handler'ы по доменам.
type APIHandler struct {
	files   *FilesHandler
	pages   *PagesHandler
	health  *HealthHandler
	metrics *server.MetricsHandler
	logger  *slog.Logger
}

// Проверка на этапе компиляции.
var (
	_ contract.ServerInterface      = (*APIHandler)(nil)
	_ contract.AdminServerInterface = (*AdminHandler)(nil)
)

// NewAPIHandler создаёт основной обработчик.
func NewAPIHandler(
	files *FilesHandler,
	pages *PagesHandler,
	health *HealthHandler,
	metrics *server.MetricsHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		files:   files,
		pages:   pages,
		health:  health,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// --- Страницы (делегируются в PagesHandler) ---

// GetIndexPage — форма загрузки.
func (h *APIHandler) GetIndexPage(w http.ResponseWriter, r *http.Request) {
	h.pages.GetIndexPage(w, r)
}

// GetSharePage — страница «поделиться».
func (h *APIHandler) GetSharePage(w http.ResponseWriter, r *http.Request, fileId contract.FileId) {
	h.pages.GetSharePage(w, r, fileId)
}

// SetLanguage — переключение языка.
func (h *APIHandler) SetLanguage(w http.ResponseWriter, r *http.Request, params contract.SetLanguageParams) {
	h.pages.SetLanguage(w, r, params)
}

// --- Файлы (делегируются в FilesHandler) ---

// UploadFile — загрузка файла.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	h.files.UploadFile(w, r)
}

// VerifyPassword — проверка пароля и выпуск токена.
func (h *APIHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	h.files.VerifyPassword(w, r)
}

// DownloadFile — скачивание или форма пароля.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request, fileId contract.FileId, params contract.DownloadFileParams) {
	h.files.DownloadFile(w, r, fileId, params)
}

// GetQRCode — PNG QR-кода.
func (h *APIHandler) GetQRCode(w http.ResponseWriter, r *http.Request, fileId contract.FileId) {
	h.files.GetQRCode(w, r, fileId)
}

// --- Health endpoints ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.GetMetrics(w, r)
}

// files.go — HTTP handlers файловых операций QR Share.
// Upload, Verify, Download, QR.
package handlers

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/bigkaa/qrshare/internal/api/contract"
	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
	"github.com/bigkaa/qrshare/internal/domain/model"
	"github.com/bigkaa/qrshare/internal/service"
	"github.com/bigkaa/qrshare/internal/storage/blobstore"
	"github.com/bigkaa/qrshare/internal/ui/pages"
)

// uploadOverhead — запас сверх MaxFileSize на заголовки multipart и поле password.
const uploadOverhead = 1 << 20

// maxVerifyBody — предел тела POST /verify.
const maxVerifyBody = 64 << 10

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	access      *service.AccessController
	blobs       *blobstore.BlobStore
	qr          *service.QRService
	pages       *pages.Renderer
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	access *service.AccessController,
	blobs *blobstore.BlobStore,
	qr *service.QRService,
	renderer *pages.Renderer,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		access:      access,
		blobs:       blobs,
		qr:          qr,
		pages:       renderer,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// UploadFile обрабатывает POST /upload.
// Multipart form: file (обязательно), password (опционально, до или после файла).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadSvc.MaxFileSize()+uploadOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "No file uploaded")
		return
	}

	res, uerr := h.uploadSvc.Upload(mr)
	if uerr != nil {
		apierrors.WriteError(w, uerr.StatusCode, uerr.Code, uerr.Message)
		return
	}

	qr, err := h.qr.DataURL(res.FileID)
	if err != nil {
		h.logger.Error("Ошибка генерации QR-кода",
			slog.String("file_id", res.FileID),
			slog.String("error", err.Error()),
		)
		h.discard(res.FileID)
		apierrors.InternalError(w, "Failed to process file")
		return
	}

	writeJSON(w, http.StatusOK, contract.UploadResponse{
		Success:           true,
		FileId:            res.FileID,
		Qr:                qr,
		ShareUrl:          h.qr.ShareURL(res.FileID),
		DownloadUrl:       h.qr.DownloadURL(res.FileID),
		FileName:          res.OriginalName,
		Size:              res.Size,
		PasswordProtected: res.PasswordProtected,
	})
}

// discard удаляет только что зарегистрированный файл.
func (h *FilesHandler) discard(fileID string) {
	rec, err := h.access.Forget(fileID)
	if err != nil {
		return
	}
	if err := h.blobs.Delete(rec.BlobLocation); err != nil {
		h.logger.Warn("Blob не удалён, будет удалён очисткой",
			slog.String("blob", rec.BlobLocation),
			slog.String("error", err.Error()),
		)
	}
}

// VerifyPassword обрабатывает POST /verify.
// Тело: {"fileId": "...", "password": "..."}.
func (h *FilesHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req contract.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: ожидается {\"fileId\", \"password\"}")
		return
	}
	if req.FileId == "" {
		apierrors.ValidationError(w, "Поле fileId обязательно")
		return
	}

	res, err := h.access.Verify(req.FileId, req.Password, h.access.Now())
	if err != nil {
		h.logger.Error("Ошибка проверки пароля",
			slog.String("file_id", req.FileId),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Failed to verify password")
		return
	}

	resp := contract.VerifyResponse{Success: res.Granted, Code: string(res.Reason)}
	status := http.StatusOK

	switch res.Reason {
	case model.ReasonGranted:
		expires := res.ExpiresAt
		resp.DownloadUrl = h.qr.TokenURL(res.FileID, res.Token)
		resp.ExpiresAt = &expires
	case model.ReasonNotFound:
		status = http.StatusNotFound
		resp.Message = "File not found"
	case model.ReasonRateLimited:
		status = http.StatusTooManyRequests
		resp.Message = "Please wait before trying again"
		retry := int(math.Ceil(res.RetryAfter.Seconds()))
		resp.RetryAfter = &retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	case model.ReasonLockedOut:
		status = http.StatusLocked
		resp.Message = "Too many attempts. Please try again later"
	case model.ReasonInvalidPassword:
		status = http.StatusForbidden
		resp.Message = "Invalid password"
	}

	writeJSON(w, status, resp)
}

// DownloadFile обрабатывает GET /download/{fileId}.
// Без токена — форма пароля, с токеном — содержимое файла.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request, fileId contract.FileId, params contract.DownloadFileParams) {
	token := ""
	if params.Token != nil {
		token = *params.Token
	}

	status, derr := h.downloadSvc.Serve(w, r, fileId, token)
	if derr != nil {
		apierrors.Negotiate(w, r, derr.StatusCode, derr.Code, derr.Message)
		return
	}
	if status != model.StatusNoTokenPresented {
		return
	}

	rec, err := h.access.Lookup(fileId)
	if err != nil {
		apierrors.Negotiate(w, r, http.StatusNotFound, apierrors.CodeNotFound, "File not found or expired")
		return
	}

	renderPage(w, r, h.pages, h.logger, pages.PageDownload, pages.DownloadData{
		FileID:            rec.FileID,
		Name:              displayName(rec),
		Size:              rec.Size,
		PasswordProtected: rec.PasswordProtected,
	})
}

// GetQRCode обрабатывает GET /qr/{fileId} — PNG со ссылкой на скачивание.
func (h *FilesHandler) GetQRCode(w http.ResponseWriter, r *http.Request, fileId contract.FileId) {
	if _, err := h.access.Lookup(fileId); err != nil {
		apierrors.Negotiate(w, r, http.StatusNotFound, apierrors.CodeNotFound, "File not found")
		return
	}

	data, err := h.qr.PNG(fileId)
	if err != nil {
		h.logger.Error("Ошибка генерации QR-кода",
			slog.String("file_id", fileId),
			slog.String("error", err.Error()),
		)
		apierrors.Negotiate(w, r, http.StatusInternalServerError, apierrors.CodeInternalError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// renderPage отрисовывает страницу; ошибка шаблона — 500.
func renderPage(w http.ResponseWriter, r *http.Request, renderer *pages.Renderer, logger *slog.Logger, page string, data any) {
	if err := renderer.Render(w, r, http.StatusOK, page, data); err != nil {
		logger.Error("Ошибка отрисовки страницы",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Failed to render page")
	}
}

// displayName — имя файла для страниц.
func displayName(rec model.FileRecord) string {
	if rec.OriginalName == "" {
		return "file"
	}
	return rec.OriginalName
}

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// admin.go — административный API: список файлов, снятие блокировки, удаление.
// Маршруты защищены JWT (scope shares:admin), subject пишется в журнал.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/bigkaa/qrshare/internal/api/contract"
	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
	"github.com/bigkaa/qrshare/internal/api/middleware"
	"github.com/bigkaa/qrshare/internal/domain/model"
	"github.com/bigkaa/qrshare/internal/service"
	"github.com/bigkaa/qrshare/internal/storage/blobstore"
	"github.com/bigkaa/qrshare/internal/storage/records"
)

// AdminHandler реализует contract.AdminServerInterface.
type AdminHandler struct {
	access    *service.AccessController
	blobs     *blobstore.BlobStore
	qr        *service.QRService
	retention time.Duration
	logger    *slog.Logger
}

// NewAdminHandler создаёт обработчик административного API.
func NewAdminHandler(
	access *service.AccessController,
	blobs *blobstore.BlobStore,
	qr *service.QRService,
	retention time.Duration,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		access:    access,
		blobs:     blobs,
		qr:        qr,
		retention: retention,
		logger:    logger.With(slog.String("component", "admin_handler")),
	}
}

// AdminListFiles обрабатывает GET /api/v1/admin/files[?locked=true|false].
// Записи упорядочены по времени загрузки, новые первыми.
func (h *AdminHandler) AdminListFiles(w http.ResponseWriter, r *http.Request, params contract.AdminListFilesParams) {
	recs := h.access.List()
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].UploadedAt.After(recs[j].UploadedAt)
	})

	now := h.access.Now()
	items := make([]contract.FileInfo, 0, len(recs))
	for _, rec := range recs {
		info := h.fileInfo(rec, now)
		if params.Locked != nil && info.LockedOut != *params.Locked {
			continue
		}
		items = append(items, info)
	}

	h.logger.Debug("Список файлов",
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
		slog.Int("total", len(items)),
	)
	writeJSON(w, http.StatusOK, contract.FileList{Items: items, Total: len(items)})
}

// AdminUnlockFile обрабатывает POST /api/v1/admin/files/{fileId}/unlock.
func (h *AdminHandler) AdminUnlockFile(w http.ResponseWriter, r *http.Request, fileId contract.FileId) {
	if err := h.access.Unlock(fileId); err != nil {
		h.writeLookupError(w, fileId, err)
		return
	}

	rec, err := h.access.Lookup(fileId)
	if err != nil {
		h.writeLookupError(w, fileId, err)
		return
	}

	h.logger.Info("Блокировка снята администратором",
		slog.String("file_id", fileId),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, h.fileInfo(rec, h.access.Now()))
}

// AdminDeleteFile обрабатывает DELETE /api/v1/admin/files/{fileId}.
// Запись удаляется раньше blob'а.
func (h *AdminHandler) AdminDeleteFile(w http.ResponseWriter, r *http.Request, fileId contract.FileId) {
	rec, err := h.access.Forget(fileId)
	if err != nil {
		h.writeLookupError(w, fileId, err)
		return
	}

	if err := h.blobs.Delete(rec.BlobLocation); err != nil {
		h.logger.Warn("Blob не удалён, будет удалён очисткой",
			slog.String("blob", rec.BlobLocation),
			slog.String("error", err.Error()),
		)
	}
	h.qr.Forget(fileId)

	h.logger.Info("Файл удалён администратором",
		slog.String("file_id", fileId),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// fileInfo переводит запись в представление API.
func (h *AdminHandler) fileInfo(rec model.FileRecord, now time.Time) contract.FileInfo {
	return contract.FileInfo{
		FileId:            rec.FileID,
		OriginalName:      rec.OriginalName,
		ContentType:       rec.ContentType,
		Size:              rec.Size,
		PasswordProtected: rec.PasswordProtected,
		Attempts:          rec.Attempts,
		LockedOut:         h.access.IsLockedOut(rec),
		TokenActive:       rec.HasToken() && !rec.TokenExpired(now),
		LastAttemptAt:     rec.LastAttemptAt,
		TokenExpiresAt:    rec.TokenExpiresAt,
		UploadedAt:        rec.UploadedAt,
		ExpiresAt:         rec.UploadedAt.Add(h.retention),
	}
}

func (h *AdminHandler) writeLookupError(w http.ResponseWriter, fileID string, err error) {
	if errors.Is(err, records.ErrNotFound) {
		apierrors.NotFound(w, "File not found")
		return
	}
	h.logger.Error("Ошибка административной операции",
		slog.String("file_id", fileID),
		slog.String("error", err.Error()),
	)
	apierrors.InternalError(w, "Internal error")
}

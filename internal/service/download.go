// download.go — сервис скачивания файлов по одноразовому токену.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
	"github.com/bigkaa/qrshare/internal/domain/model"
	"github.com/bigkaa/qrshare/internal/storage/blobstore"
)

// downloadsTotal — результаты скачиваний.
var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "qs_downloads_total",
	Help: "Общее количество скачиваний по результату",
}, []string{"result"})

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	access *AccessController
	blobs  *blobstore.BlobStore
	qr     *QRService
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
// qr может быть nil: тогда кэш QR-кодов не инвалидируется.
func NewDownloadService(
	access *AccessController,
	blobs *blobstore.BlobStore,
	qr *QRService,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		access: access,
		blobs:  blobs,
		qr:     qr,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve авторизует скачивание и отдаёт blob через http.ServeContent.
//
// Возвращает статус авторизации. Для StatusNoTokenPresented ничего не пишет:
// вызывающий код показывает форму пароля. Для остальных неуспешных
// исходов возвращает *Error, тело ответа пишет вызывающий код.
// Токен гасится только после передачи последнего байта без ошибок.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, fileID, token string) (model.DownloadStatus, *Error) {
	auth := s.access.AuthorizeDownload(fileID, token, s.access.Now())

	switch auth.Status {
	case model.StatusAuthorized:
	case model.StatusNoTokenPresented:
		return auth.Status, nil
	default:
		downloadsTotal.WithLabelValues(strings.ToLower(string(auth.Status))).Inc()
		return auth.Status, statusError(auth.Status)
	}

	rec := auth.Record

	// 1. Открываем blob
	file, err := s.blobs.Open(rec.BlobLocation)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			// Хранилище и запись разошлись, запись считается удалённой
			s.logger.Warn("Blob отсутствует, запись удалена",
				slog.String("file_id", fileID),
				slog.String("blob", rec.BlobLocation),
			)
			s.forget(fileID)
			downloadsTotal.WithLabelValues("blob_missing").Inc()
			return model.StatusNotFound, &Error{
				StatusCode: http.StatusNotFound,
				Code:       apierrors.CodeNotFound,
				Message:    "File no longer exists",
			}
		}
		s.logger.Error("Ошибка открытия blob",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		downloadsTotal.WithLabelValues("error").Inc()
		return auth.Status, internalDownloadError()
	}
	defer file.Close()

	// 2. Получаем информацию о файле для http.ServeContent
	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat blob",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		downloadsTotal.WithLabelValues("error").Inc()
		return auth.Status, internalDownloadError()
	}

	// 3. Заголовки
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Content-Disposition", ContentDisposition(rec.OriginalName))
	if rec.Checksum != "" {
		w.Header().Set("ETag", fmt.Sprintf("\"%s\"", rec.Checksum))
	}
	w.Header().Set("Cache-Control", "no-store")

	// 4. Отдача: Range, If-None-Match, Content-Length
	cw := &countingWriter{ResponseWriter: w}
	http.ServeContent(cw, r, rec.OriginalName, stat.ModTime(), file)

	// 5. Токен гасится только после полной передачи
	if r.Context().Err() != nil || cw.failed || cw.status >= http.StatusBadRequest {
		s.logger.Warn("Передача не завершена, токен сохранён",
			slog.String("file_id", fileID),
			slog.Int("status", cw.status),
		)
		downloadsTotal.WithLabelValues("aborted").Inc()
		return auth.Status, nil
	}
	if r.Method == http.MethodHead {
		return auth.Status, nil
	}
	if !deliveredToEnd(cw, w.Header(), stat.Size()) {
		s.logger.Debug("Отдана часть файла, токен сохранён",
			slog.String("file_id", fileID),
			slog.Int("status", cw.status),
			slog.Int64("bytes", cw.written),
		)
		downloadsTotal.WithLabelValues("partial").Inc()
		return auth.Status, nil
	}

	s.access.ConsumeAfterDownload(fileID, token)
	downloadsTotal.WithLabelValues("success").Inc()

	s.logger.Info("Файл скачан",
		slog.String("file_id", fileID),
		slog.String("filename", rec.OriginalName),
		slog.Int64("bytes", cw.written),
	)
	return auth.Status, nil
}

func (s *DownloadService) forget(fileID string) {
	_, _ = s.access.Forget(fileID)
	if s.qr != nil {
		s.qr.Forget(fileID)
	}
}

// statusError сопоставляет неуспешный статус авторизации с ошибкой ответа.
func statusError(status model.DownloadStatus) *Error {
	switch status {
	case model.StatusNotFound:
		return &Error{StatusCode: http.StatusNotFound, Code: apierrors.CodeNotFound, Message: "File not found or expired"}
	case model.StatusNotVerified:
		return &Error{StatusCode: http.StatusForbidden, Code: apierrors.CodeNotVerified, Message: "Please verify password first"}
	case model.StatusInvalidToken:
		return &Error{StatusCode: http.StatusForbidden, Code: apierrors.CodeInvalidToken, Message: "Invalid download token"}
	case model.StatusExpired:
		return &Error{StatusCode: http.StatusForbidden, Code: apierrors.CodeTokenExpired, Message: "Download token has expired. Please verify password again"}
	default:
		return internalDownloadError()
	}
}

func internalDownloadError() *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    "Error downloading file",
	}
}

// ContentDisposition формирует заголовок attachment с именем файла (RFC 6266).
// filename — ASCII-замена для старых клиентов, filename* — точное имя в UTF-8.
func ContentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s",
		fallback, encodeExtValue(name))
}

// encodeExtValue кодирует значение по RFC 8187: всё, кроме attr-char, — %XX.
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// deliveredToEnd сообщает, дошёл ли клиент до последнего байта blob.
// 200 — записан весь файл; 206 — единственный диапазон, заканчивающийся
// последним байтом. 304 и multipart/byteranges токен не гасят.
func deliveredToEnd(cw *countingWriter, h http.Header, size int64) bool {
	switch cw.status {
	case http.StatusOK:
		return cw.written == size
	case http.StatusPartialContent:
		var start, end, total int64
		if _, err := fmt.Sscanf(h.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
			return false
		}
		return total == size && end == size-1 && cw.written == end-start+1
	default:
		return false
	}
}

// countingWriter запоминает статус и количество записанных байт.
type countingWriter struct {
	http.ResponseWriter
	status  int
	written int64
	failed  bool
}

func (cw *countingWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *countingWriter) Write(b []byte) (int, error) {
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	n, err := cw.ResponseWriter.Write(b)
	cw.written += int64(n)
	if err != nil {
		cw.failed = true
	}
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (cw *countingWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// upload.go — сервис загрузки файлов.
// Содержимое части multipart "file" потоком пишется в Blob Store,
// без буферизации всего файла в памяти.
package service

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
	"github.com/bigkaa/qrshare/internal/storage/blobstore"
)

// sniffLen — сколько первых байт используется для определения MIME-типа.
const sniffLen = 3072

// maxNameBytes — предел длины отображаемого имени файла.
const maxNameBytes = 255

var (
	// uploadsTotal — результаты загрузок.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qs_uploads_total",
		Help: "Общее количество загрузок по результату",
	}, []string{"result"})

	// uploadBytesTotal — объём успешно загруженных данных.
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_upload_bytes_total",
		Help: "Общий объём загруженных данных в байтах",
	})
)

// UploadResult — результат загрузки файла.
type UploadResult struct {
	FileID            string
	OriginalName      string
	ContentType       string
	Size              int64
	PasswordProtected bool
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	blobs       *blobstore.BlobStore
	access      *AccessController
	maxFileSize int64
	logger      *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	blobs *blobstore.BlobStore,
	access *AccessController,
	maxFileSize int64,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		blobs:       blobs,
		access:      access,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "upload_service")),
	}
}

// MaxFileSize возвращает лимит размера файла.
func (s *UploadService) MaxFileSize() int64 {
	return s.maxFileSize
}

// Upload читает multipart-поток и регистрирует файл.
//
// Поток:
//  1. Перебор частей: "file" (первая) — в Blob Store, "password" — в память
//  2. Поле password может идти до или после файла
//  3. Регистрация в Access Controller
//
// При ошибке после записи blob'а blob удаляется.
func (s *UploadService) Upload(mr *multipart.Reader) (*UploadResult, *Error) {
	var (
		saved       *blobstore.SaveResult
		name        string
		contentType string
		password    string
	)

	fail := func(result string, e *Error) (*UploadResult, *Error) {
		if saved != nil {
			if err := s.blobs.Delete(saved.Location); err != nil {
				s.logger.Error("Ошибка удаления blob после неудачной загрузки",
					slog.String("blob", saved.Location),
					slog.String("error", err.Error()),
				)
			}
		}
		uploadsTotal.WithLabelValues(result).Inc()
		return nil, e
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isBodyTooLarge(err) {
				return fail("too_large", s.tooLarge())
			}
			return fail("invalid", &Error{
				StatusCode: http.StatusBadRequest,
				Code:       apierrors.CodeValidationError,
				Message:    "Некорректный multipart запрос",
			})
		}

		switch part.FormName() {
		case "file":
			if saved != nil {
				// принимается только первый файл
				_ = part.Close()
				continue
			}
			name = cleanFileName(part.FileName())
			if name == "" {
				_ = part.Close()
				return fail("invalid", noFile())
			}

			var storeErr error
			saved, contentType, storeErr = s.storePart(part, name)
			_ = part.Close()
			if storeErr != nil {
				if errors.Is(storeErr, blobstore.ErrTooLarge) || isBodyTooLarge(storeErr) {
					return fail("too_large", s.tooLarge())
				}
				s.logger.Error("Ошибка сохранения файла",
					slog.String("filename", name),
					slog.String("error", storeErr.Error()),
				)
				return fail("error", &Error{
					StatusCode: http.StatusInternalServerError,
					Code:       apierrors.CodeInternalError,
					Message:    "Failed to process file",
				})
			}

		case "password":
			raw, readErr := io.ReadAll(io.LimitReader(part, maxPasswordBytes+1))
			_ = part.Close()
			if readErr != nil {
				if isBodyTooLarge(readErr) {
					return fail("too_large", s.tooLarge())
				}
				return fail("invalid", &Error{
					StatusCode: http.StatusBadRequest,
					Code:       apierrors.CodeValidationError,
					Message:    "Ошибка чтения поля password",
				})
			}
			if len(raw) > maxPasswordBytes {
				return fail("invalid", passwordTooLong())
			}
			password = string(raw)

		default:
			_ = part.Close()
		}
	}

	if saved == nil {
		return fail("invalid", noFile())
	}

	fileID, err := s.access.Register(RegisterParams{
		BlobLocation: saved.Location,
		OriginalName: name,
		Password:     password,
		ContentType:  contentType,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
	})
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return fail("invalid", passwordTooLong())
		}
		s.logger.Error("Ошибка регистрации файла",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return fail("error", &Error{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Failed to process file",
		})
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(saved.Size))

	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID),
		slog.String("filename", name),
		slog.String("size", humanize.IBytes(uint64(saved.Size))),
		slog.String("content_type", contentType),
	)

	return &UploadResult{
		FileID:            fileID,
		OriginalName:      name,
		ContentType:       contentType,
		Size:              saved.Size,
		PasswordProtected: password != "",
	}, nil
}

// storePart определяет MIME-тип по первым байтам и пишет часть в Blob Store.
func (s *UploadService) storePart(part io.Reader, name string) (*blobstore.SaveResult, string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", err
	}
	head = head[:n]

	contentType := mimetype.Detect(head).String()

	saved, err := s.blobs.Store(io.MultiReader(bytes.NewReader(head), part), name, s.maxFileSize)
	if err != nil {
		return nil, "", err
	}
	return saved, contentType, nil
}

func (s *UploadService) tooLarge() *Error {
	return &Error{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    "File exceeds the maximum size of " + humanize.IBytes(uint64(s.maxFileSize)),
	}
}

func noFile() *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    "No file uploaded",
	}
}

func passwordTooLong() *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    "Password must not exceed 72 bytes",
	}
}

// isBodyTooLarge распознаёт срабатывание http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// cleanFileName оставляет только последний элемент пути из имени,
// присланного клиентом.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	if len(name) > maxNameBytes {
		name = strings.ToValidUTF8(name[:maxNameBytes], "")
	}
	return name
}

// Пакет blobstore — хранилище содержимого загруженных файлов.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// чтение, удаление, проверку существования и перечисление blob'ов.
// Работает поверх afero.Fs: на диске — afero.NewOsFs, в тестах — MemMapFs.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// tmpSuffix — суффикс временных файлов незавершённой записи.
const tmpSuffix = ".tmp"

var (
	// ErrNotFound — blob отсутствует в хранилище.
	ErrNotFound = errors.New("blob не найден")
	// ErrTooLarge — поток превысил допустимый размер.
	ErrTooLarge = errors.New("размер blob превышает лимит")
	// ErrInvalidLocation — location не является простым именем файла.
	ErrInvalidLocation = errors.New("некорректный location blob")
)

// BlobStore — управление blob'ами в директории dataDir.
type BlobStore struct {
	fs      afero.Fs
	dataDir string
}

// SaveResult — результат сохранения blob'а.
type SaveResult struct {
	// Location — имя blob'а в dataDir
	Location string
	// Size — количество записанных байт
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// BlobInfo — сведения о blob'е для сверки с записями.
type BlobInfo struct {
	Location string
	Size     int64
	ModTime  time.Time
}

// New создаёт BlobStore. Создаёт директорию, если её нет.
func New(fsys afero.Fs, dataDir string) (*BlobStore, error) {
	if info, err := fsys.Stat(dataDir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("%s не является директорией", dataDir)
		}
		return &BlobStore{fs: fsys, dataDir: dataDir}, nil
	}

	if err := fsys.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &BlobStore{fs: fsys, dataDir: dataDir}, nil
}

// NewOnDisk создаёт BlobStore на реальной файловой системе.
func NewOnDisk(dataDir string) (*BlobStore, error) {
	return New(afero.NewOsFs(), dataDir)
}

// Store записывает поток в новый blob.
// maxSize <= 0 — без ограничения размера.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При любой ошибке temp файл удаляется.
func (s *BlobStore) Store(reader io.Reader, originalName string, maxSize int64) (*SaveResult, error) {
	location := generateLocation(originalName)
	fullPath := filepath.Join(s.dataDir, location)
	tmpPath := fullPath + tmpSuffix

	f, err := s.fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := reader
	if maxSize > 0 {
		// +1 байт позволяет отличить "ровно лимит" от "больше лимита"
		src = io.LimitReader(reader, maxSize+1)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(src, hasher))
	if err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if maxSize > 0 && size > maxSize {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, ErrTooLarge
	}

	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpPath, fullPath); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Location: location,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает blob для чтения. Вызывающий код обязан закрыть файл.
// Отсутствующий blob возвращает ошибку, удовлетворяющую errors.Is(err, ErrNotFound).
func (s *BlobStore) Open(location string) (afero.File, error) {
	fullPath, err := s.resolve(location)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(fullPath)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("ошибка открытия blob %s: %w", location, err)
	}
	return f, nil
}

// Delete удаляет blob. Возвращает nil, если blob уже не существует.
func (s *BlobStore) Delete(location string) error {
	fullPath, err := s.resolve(location)
	if err != nil {
		return err
	}

	err = s.fs.Remove(fullPath)
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("ошибка удаления blob %s: %w", location, err)
	}
	return nil
}

// Exists проверяет существование blob'а.
func (s *BlobStore) Exists(location string) bool {
	fullPath, err := s.resolve(location)
	if err != nil {
		return false
	}
	_, err = s.fs.Stat(fullPath)
	return err == nil
}

// List перечисляет все blob'ы, включая незавершённые temp файлы.
func (s *BlobStore) List() ([]BlobInfo, error) {
	entries, err := afero.ReadDir(s.fs, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dataDir, err)
	}

	blobs := make([]BlobInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		blobs = append(blobs, BlobInfo{
			Location: e.Name(),
			Size:     e.Size(),
			ModTime:  e.ModTime(),
		})
	}
	return blobs, nil
}

// Purge удаляет все blob'ы. Возвращает количество удалённых и первую ошибку.
func (s *BlobStore) Purge() (int, error) {
	blobs, err := s.List()
	if err != nil {
		return 0, err
	}

	var firstErr error
	removed := 0
	for _, b := range blobs {
		if err := s.Delete(b.Location); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// Probe проверяет, что в директорию данных можно писать.
func (s *BlobStore) Probe() error {
	probe := filepath.Join(s.dataDir, ".health_check"+tmpSuffix)
	if err := afero.WriteFile(s.fs, probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("директория данных недоступна для записи: %w", err)
	}
	_ = s.fs.Remove(probe)
	return nil
}

// DataDir возвращает путь к директории данных.
func (s *BlobStore) DataDir() string {
	return s.dataDir
}

// resolve проверяет location и возвращает полный путь.
// Допускаются только простые имена файлов внутри dataDir.
func (s *BlobStore) resolve(location string) (string, error) {
	if location == "" || location != filepath.Base(location) || location == "." || location == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	return filepath.Join(s.dataDir, location), nil
}

// IsTemp сообщает, является ли location незавершённой записью.
func IsTemp(location string) bool {
	return strings.HasSuffix(location, tmpSuffix)
}

// generateLocation генерирует имя blob'а.
// Формат: {name}_{timestamp}_{uuid}.{ext}
// Пример: report_20260221150405_a1b2c3d4.pdf
func generateLocation(originalName string) string {
	ext := sanitizeExt(filepath.Ext(originalName))
	name := sanitize(strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName)))

	if len(name) > 50 {
		name = name[:50]
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]

	return fmt.Sprintf("%s_%s_%s%s", name, ts, uid, ext)
}

// sanitize оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// sanitizeExt нормализует расширение: только латиница и цифры, до 16 символов.
func sanitizeExt(ext string) string {
	var result strings.Builder
	for _, r := range strings.TrimPrefix(ext, ".") {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return ""
	}
	clean := result.String()
	if len(clean) > 16 {
		clean = clean[:16]
	}
	return "." + clean
}

// isNotExist — совместимость с ошибками afero, не оборачивающими fs.ErrNotExist.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

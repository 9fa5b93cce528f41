package blobstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// newMemStore создаёт BlobStore поверх MemMapFs.
func newMemStore(t *testing.T) (*BlobStore, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/data")
	if err != nil {
		t.Fatalf("ошибка создания BlobStore: %v", err)
	}
	return s, fsys
}

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	s, err := NewOnDisk(dir)
	if err != nil {
		t.Fatalf("ошибка создания BlobStore: %v", err)
	}
	if s.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, s.DataDir())
	}

	ok, err := afero.DirExists(afero.NewOsFs(), dir)
	if err != nil || !ok {
		t.Fatalf("директория не создана: %v", err)
	}
}

// TestNew_ReadOnlyExistingDir проверяет, что существующая директория не пересоздаётся.
func TestNew_ReadOnlyExistingDir(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/data", 0o750); err != nil {
		t.Fatal(err)
	}

	if _, err := New(afero.NewReadOnlyFs(base), "/data"); err != nil {
		t.Fatalf("read-only FS с существующей директорией: %v", err)
	}
	if _, err := New(afero.NewReadOnlyFs(base), "/missing"); err == nil {
		t.Fatal("ожидалась ошибка создания директории на read-only FS")
	}
}

// TestStore проверяет запись blob'а и подсчёт SHA-256.
func TestStore(t *testing.T) {
	s, fsys := newMemStore(t)
	content := []byte("Hello, World! Тестовые данные для проверки.")

	res, err := s.Store(bytes.NewReader(content), "report.pdf", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if res.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), res.Size)
	}

	sum := sha256.Sum256(content)
	if res.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum не совпадает: %s", res.Checksum)
	}

	if !strings.HasPrefix(res.Location, "report_") || !strings.HasSuffix(res.Location, ".pdf") {
		t.Errorf("неожиданный location: %s", res.Location)
	}

	data, err := afero.ReadFile(fsys, filepath.Join("/data", res.Location))
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое не совпадает")
	}

	if ok, _ := afero.Exists(fsys, filepath.Join("/data", res.Location)+tmpSuffix); ok {
		t.Error("temp файл не удалён")
	}
}

// TestStore_TooLarge проверяет ограничение размера.
func TestStore_TooLarge(t *testing.T) {
	s, _ := newMemStore(t)

	if _, err := s.Store(strings.NewReader("12345"), "a.txt", 5); err != nil {
		t.Fatalf("ровно лимит должен проходить: %v", err)
	}

	_, err := s.Store(strings.NewReader("123456"), "b.txt", 5)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}

	blobs, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 1 {
		t.Errorf("после отказа должен остаться 1 blob, получено %d", len(blobs))
	}
}

// failingReader возвращает ошибку после первых байт.
type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("обрыв соединения")
	}
	r.sent = true
	return copy(p, "partial"), nil
}

// TestStore_ReaderError проверяет удаление temp файла при обрыве потока.
func TestStore_ReaderError(t *testing.T) {
	s, _ := newMemStore(t)

	if _, err := s.Store(&failingReader{}, "x.bin", 0); err == nil {
		t.Fatal("ожидалась ошибка записи")
	}

	blobs, _ := s.List()
	if len(blobs) != 0 {
		t.Errorf("после ошибки не должно остаться файлов, получено %d", len(blobs))
	}
}

// TestOpenDeleteExists проверяет чтение, удаление и идемпотентность удаления.
func TestOpenDeleteExists(t *testing.T) {
	s, _ := newMemStore(t)
	res, err := s.Store(strings.NewReader("data"), "file.txt", 0)
	if err != nil {
		t.Fatal(err)
	}

	if !s.Exists(res.Location) {
		t.Fatal("blob должен существовать")
	}

	f, err := s.Open(res.Location)
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "data" {
		t.Errorf("содержимое: %q", data)
	}

	if err := s.Delete(res.Location); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if s.Exists(res.Location) {
		t.Error("blob не удалён")
	}
	if err := s.Delete(res.Location); err != nil {
		t.Errorf("повторное удаление должно быть no-op: %v", err)
	}

	if _, err := s.Open(res.Location); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestResolve_RejectsTraversal проверяет защиту от выхода за dataDir.
func TestResolve_RejectsTraversal(t *testing.T) {
	s, _ := newMemStore(t)

	for _, loc := range []string{"", "..", "../etc/passwd", "a/b", "."} {
		if _, err := s.Open(loc); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("location %q: ожидалась ErrInvalidLocation, получено %v", loc, err)
		}
		if s.Exists(loc) {
			t.Errorf("location %q не должен существовать", loc)
		}
	}
}

// TestDelete_ReadOnlyFails проверяет ошибку удаления на read-only FS.
func TestDelete_ReadOnlyFails(t *testing.T) {
	s, fsys := newMemStore(t)
	res, err := s.Store(strings.NewReader("data"), "file.txt", 0)
	if err != nil {
		t.Fatal(err)
	}

	ro, err := New(afero.NewReadOnlyFs(fsys), "/data")
	if err != nil {
		t.Fatal(err)
	}
	if err := ro.Delete(res.Location); err == nil {
		t.Error("ожидалась ошибка удаления на read-only FS")
	}
}

// TestPurge проверяет удаление всех blob'ов.
func TestPurge(t *testing.T) {
	s, _ := newMemStore(t)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := s.Store(strings.NewReader(name), name, 0); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Purge()
	if err != nil {
		t.Fatalf("ошибка purge: %v", err)
	}
	if n != 3 {
		t.Errorf("удалено: хотели 3, получили %d", n)
	}
	blobs, _ := s.List()
	if len(blobs) != 0 {
		t.Errorf("осталось %d blob'ов", len(blobs))
	}
}

// TestGenerateLocation проверяет нормализацию имени.
func TestGenerateLocation(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		wantSuffix string
	}{
		{"report.pdf", "report_", ".pdf"},
		{"../../evil.sh", "evil_", ".sh"},
		{"отчёт.docx", "отчёт_", ".docx"},
		{"README", "README_", ""},
		{"***.***", "file_", ""},
	}

	for _, tt := range tests {
		loc := generateLocation(tt.name)
		if !strings.HasPrefix(loc, tt.prefix) {
			t.Errorf("%q: location %q без префикса %q", tt.name, loc, tt.prefix)
		}
		if tt.wantSuffix != "" && !strings.HasSuffix(loc, tt.wantSuffix) {
			t.Errorf("%q: location %q без суффикса %q", tt.name, loc, tt.wantSuffix)
		}
		if strings.ContainsAny(loc, `/\`) {
			t.Errorf("%q: location %q содержит разделитель пути", tt.name, loc)
		}
	}
}

// TestProbe проверяет проверку доступности на запись.
func TestProbe(t *testing.T) {
	s, fsys := newMemStore(t)
	if err := s.Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	blobs, _ := s.List()
	if len(blobs) != 0 {
		t.Error("Probe не должен оставлять файлов")
	}

	ro, err := New(afero.NewReadOnlyFs(fsys), "/data")
	if err != nil {
		t.Fatal(err)
	}
	if err := ro.Probe(); err == nil {
		t.Error("ожидалась ошибка на read-only FS")
	}
}

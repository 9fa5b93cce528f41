// Пакет records — потокобезопасное in-memory хранилище записей о файлах.
//
// Store владеет всеми FileRecord процесса. Карта защищена sync.RWMutex
// только на время поиска/вставки/удаления ключа, изменяемые поля каждой
// записи защищены собственным mutex записи. Порядок захвата блокировок:
// сначала запись, затем карта.
//
// Не персистентный: при рестарте содержимое теряется.
package records

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/bigkaa/qrshare/internal/domain/model"
)

var (
	// ErrNotFound — записи с таким file_id нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrExists — запись с таким file_id уже есть.
	ErrExists = errors.New("запись уже существует")
)

// entry — запись вместе с её блокировкой.
// removed выставляется под mu при удалении: держатель устаревшего
// указателя на entry видит, что запись уже удалена.
type entry struct {
	mu      sync.Mutex
	rec     model.FileRecord
	removed bool
}

// Store — хранилище записей, ключ — file_id.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// New создаёт пустое хранилище.
func New(logger *slog.Logger) *Store {
	return &Store{
		entries: make(map[string]*entry),
		logger:  logger.With(slog.String("component", "records")),
	}
}

// Insert добавляет запись. Хранилище сохраняет копию.
func (s *Store) Insert(rec model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[rec.FileID]; ok {
		return ErrExists
	}
	s.entries[rec.FileID] = &entry{rec: rec.Clone()}

	s.logger.Debug("Запись добавлена", slog.String("file_id", rec.FileID))
	return nil
}

// Get возвращает копию записи.
func (s *Store) Get(fileID string) (model.FileRecord, error) {
	e := s.lookup(fileID)
	if e == nil {
		return model.FileRecord{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return model.FileRecord{}, ErrNotFound
	}
	return e.rec.Clone(), nil
}

// Update выполняет fn над записью под её блокировкой.
// fn получает рабочую копию; изменения применяются, только если fn вернула nil.
// Вся последовательность чтение → решение → запись атомарна для данного file_id.
func (s *Store) Update(fileID string, fn func(rec *model.FileRecord) error) error {
	e := s.lookup(fileID)
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrNotFound
	}

	work := e.rec.Clone()
	if err := fn(&work); err != nil {
		return err
	}
	work.FileID = e.rec.FileID
	e.rec = work
	return nil
}

// Delete удаляет запись и возвращает её последнее состояние.
func (s *Store) Delete(fileID string) (model.FileRecord, error) {
	rec, ok := s.DeleteIf(fileID, func(model.FileRecord) bool { return true })
	if !ok {
		return model.FileRecord{}, ErrNotFound
	}
	return rec, nil
}

// DeleteIf удаляет запись, если pred возвращает true.
// Предикат вычисляется под блокировкой записи, поэтому между проверкой
// и удалением запись не может измениться.
// Возвращает удалённую запись и true, либо false, если записи нет
// или предикат её не выбрал.
func (s *Store) DeleteIf(fileID string, pred func(rec model.FileRecord) bool) (model.FileRecord, bool) {
	e := s.lookup(fileID)
	if e == nil {
		return model.FileRecord{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !pred(e.rec) {
		return model.FileRecord{}, false
	}

	e.removed = true
	s.mu.Lock()
	if s.entries[fileID] == e {
		delete(s.entries, fileID)
	}
	s.mu.Unlock()

	s.logger.Debug("Запись удалена", slog.String("file_id", fileID))
	return e.rec.Clone(), true
}

// Keys возвращает снимок всех file_id. Порядок не определён.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for id := range s.entries {
		keys = append(keys, id)
	}
	return keys
}

// List возвращает копии всех записей, новые первыми.
func (s *Store) List() []model.FileRecord {
	keys := s.Keys()

	out := make([]model.FileRecord, 0, len(keys))
	for _, id := range keys {
		rec, err := s.Get(id)
		if err != nil {
			// удалена между снимком ключей и чтением
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out
}

// Len возвращает количество записей.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// lookup находит entry под разделяемой блокировкой карты.
func (s *Store) lookup(fileID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[fileID]
}

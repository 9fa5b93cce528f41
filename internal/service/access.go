// Пакет service — бизнес-логика QR Share.
// access.go — контроль доступа к файлам: регистрация, проверка пароля
// с cooldown и блокировкой, выпуск одноразовых токенов и авторизация скачивания.
package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/qrshare/internal/domain/model"
	"github.com/bigkaa/qrshare/internal/storage/records"
)

// maxPasswordBytes — предел длины пароля для bcrypt.
const maxPasswordBytes = 72

// maxIDRetries — число попыток при коллизии file_id.
const maxIDRetries = 3

// Prometheus метрики контроля доступа
var (
	// verifyTotal — результаты проверки пароля по reason.
	verifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qs_verify_total",
		Help: "Общее количество проверок пароля по результату",
	}, []string{"reason"})

	// authorizeTotal — результаты авторизации скачивания по статусу.
	authorizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qs_download_authorize_total",
		Help: "Общее количество авторизаций скачивания по статусу",
	}, []string{"status"})

	// registeredTotal — количество зарегистрированных файлов.
	registeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_files_registered_total",
		Help: "Общее количество зарегистрированных файлов",
	})
)

// AccessConfig — параметры контроля доступа.
type AccessConfig struct {
	// Cooldown — минимальный интервал между попытками verify для одного файла
	Cooldown time.Duration
	// MaxAttempts — после превышения verify возвращает LOCKED_OUT
	MaxAttempts int
	// TokenTTL — время жизни токена скачивания
	TokenTTL time.Duration
	// BcryptCost — стоимость bcrypt для хэша пароля
	BcryptCost int
}

// DefaultAccessConfig возвращает значения по умолчанию.
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		Cooldown:    2 * time.Second,
		MaxAttempts: 5,
		TokenTTL:    30 * time.Minute,
		BcryptCost:  bcrypt.DefaultCost,
	}
}

// RegisterParams — параметры регистрации загруженного файла.
type RegisterParams struct {
	BlobLocation string
	OriginalName string
	Password     string
	ContentType  string
	Size         int64
	Checksum     string
}

// VerifyResult — результат проверки пароля.
type VerifyResult struct {
	Granted bool
	Reason  model.VerifyReason
	FileID  string
	// Token и ExpiresAt заполнены только при Granted
	Token     string
	ExpiresAt time.Time
	// RetryAfter — остаток cooldown при RATE_LIMITED
	RetryAfter time.Duration
}

// AuthorizeResult — результат авторизации скачивания.
// Record заполнен только для StatusAuthorized.
type AuthorizeResult struct {
	Status model.DownloadStatus
	Record *model.FileRecord
}

// AccessOption — опция AccessController.
type AccessOption func(*AccessController)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) AccessOption {
	return func(a *AccessController) { a.now = now }
}

// WithIDGenerator подменяет генератор file_id.
func WithIDGenerator(gen func() (string, error)) AccessOption {
	return func(a *AccessController) { a.newID = gen }
}

// WithTokenGenerator подменяет генератор токенов.
func WithTokenGenerator(gen func() (string, error)) AccessOption {
	return func(a *AccessController) { a.newToken = gen }
}

// AccessController — единственный владелец изменяемых полей FileRecord.
type AccessController struct {
	store    *records.Store
	cfg      AccessConfig
	now      func() time.Time
	newID    func() (string, error)
	newToken func() (string, error)
	logger   *slog.Logger
}

// NewAccessController создаёт контроллер доступа поверх хранилища записей.
func NewAccessController(
	store *records.Store,
	cfg AccessConfig,
	logger *slog.Logger,
	opts ...AccessOption,
) *AccessController {
	a := &AccessController{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		newID:    NewFileID,
		newToken: NewToken,
		logger:   logger.With(slog.String("component", "access")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Now возвращает текущее время контроллера (UTC).
func (a *AccessController) Now() time.Time {
	return a.now().UTC()
}

// Config возвращает параметры контроллера.
func (a *AccessController) Config() AccessConfig {
	return a.cfg
}

// Register создаёт запись для загруженного blob'а и возвращает новый file_id.
// Пароль хранится как bcrypt-хэш; пустой пароль тоже хэшируется,
// поэтому пустой ввод совпадает только с пустым паролем.
func (a *AccessController) Register(p RegisterParams) (string, error) {
	if len(p.Password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), a.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("ошибка хэширования пароля: %w", err)
	}

	now := a.Now()
	for i := 0; i < maxIDRetries; i++ {
		fileID, err := a.newID()
		if err != nil {
			return "", err
		}

		rec := model.FileRecord{
			FileID:            fileID,
			BlobLocation:      p.BlobLocation,
			OriginalName:      p.OriginalName,
			ContentType:       p.ContentType,
			Size:              p.Size,
			Checksum:          p.Checksum,
			PasswordHash:      hash,
			PasswordProtected: p.Password != "",
			UploadedAt:        now,
		}

		err = a.store.Insert(rec)
		if errors.Is(err, records.ErrExists) {
			a.logger.Warn("Коллизия file_id, повторная генерация")
			continue
		}
		if err != nil {
			return "", err
		}

		registeredTotal.Inc()
		a.logger.Info("Файл зарегистрирован",
			slog.String("file_id", fileID),
			slog.String("filename", p.OriginalName),
			slog.Int64("size", p.Size),
			slog.Bool("password_protected", rec.PasswordProtected),
		)
		return fileID, nil
	}

	return "", fmt.Errorf("%w: исчерпаны попытки", ErrIDGeneration)
}

// Verify проверяет пароль к файлу.
//
// Порядок проверок (вся последовательность под блокировкой записи):
//  1. запись не найдена → NOT_FOUND
//  2. с прошлой попытки прошло меньше Cooldown → RATE_LIMITED, попытка не считается
//  3. attempts++, lastAttemptAt = now
//  4. attempts > MaxAttempts → LOCKED_OUT
//  5. пароль не совпал → INVALID_PASSWORD
//  6. новый токен (прежний отзывается), attempts = 0 → GRANTED
//
// Ошибка возвращается только при сбое генерации токена.
func (a *AccessController) Verify(fileID, password string, now time.Time) (VerifyResult, error) {
	res := VerifyResult{FileID: fileID}

	err := a.store.Update(fileID, func(rec *model.FileRecord) error {
		if rec.InCooldown(now, a.cfg.Cooldown) {
			res.Reason = model.ReasonRateLimited
			res.RetryAfter = rec.CooldownLeft(now, a.cfg.Cooldown)
			return nil
		}

		rec.Attempts++
		attemptAt := now
		rec.LastAttemptAt = &attemptAt

		if rec.Attempts > a.cfg.MaxAttempts {
			res.Reason = model.ReasonLockedOut
			return nil
		}

		if !passwordMatches(rec.PasswordHash, password) {
			res.Reason = model.ReasonInvalidPassword
			return nil
		}

		token, err := a.newToken()
		if err != nil {
			return err
		}
		expiresAt := now.Add(a.cfg.TokenTTL)
		rec.SetToken(token, expiresAt)
		rec.Attempts = 0

		res.Granted = true
		res.Reason = model.ReasonGranted
		res.Token = token
		res.ExpiresAt = expiresAt
		return nil
	})

	if errors.Is(err, records.ErrNotFound) {
		res.Reason = model.ReasonNotFound
		err = nil
	}
	if err != nil {
		a.logger.Error("Ошибка проверки пароля",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return VerifyResult{FileID: fileID}, err
	}

	verifyTotal.WithLabelValues(string(res.Reason)).Inc()
	a.logger.Debug("Проверка пароля",
		slog.String("file_id", fileID),
		slog.String("reason", string(res.Reason)),
	)
	return res, nil
}

// AuthorizeDownload решает, можно ли отдать blob по предъявленному токену.
// Пустой токен равносилен отсутствию токена. Просроченный токен
// удаляется из записи.
func (a *AccessController) AuthorizeDownload(fileID, token string, now time.Time) AuthorizeResult {
	res := AuthorizeResult{}

	err := a.store.Update(fileID, func(rec *model.FileRecord) error {
		switch {
		case token == "":
			res.Status = model.StatusNoTokenPresented
		case !rec.HasToken():
			res.Status = model.StatusNotVerified
		case !tokensEqual(rec.DownloadToken, token):
			res.Status = model.StatusInvalidToken
		case rec.TokenExpired(now):
			rec.ClearToken()
			res.Status = model.StatusExpired
		default:
			res.Status = model.StatusAuthorized
			snapshot := rec.Clone()
			res.Record = &snapshot
		}
		return nil
	})
	if err != nil {
		res = AuthorizeResult{Status: model.StatusNotFound}
	}

	authorizeTotal.WithLabelValues(string(res.Status)).Inc()
	return res
}

// ConsumeAfterDownload гасит токен после успешной передачи и сбрасывает attempts.
// Гасится только тот токен, которым было авторизовано скачивание:
// токен, выпущенный новой проверкой во время передачи, остаётся в силе.
// Возвращает true, если токен был погашен.
func (a *AccessController) ConsumeAfterDownload(fileID, token string) bool {
	consumed := false
	err := a.store.Update(fileID, func(rec *model.FileRecord) error {
		if token == "" || !tokensEqual(rec.DownloadToken, token) {
			return nil
		}
		rec.ClearToken()
		rec.Attempts = 0
		consumed = true
		return nil
	})
	if errors.Is(err, records.ErrNotFound) {
		// Запись удалена во время передачи (очистка или администратор), гасить нечего
		a.logger.Debug("Запись удалена до погашения токена", slog.String("file_id", fileID))
		return false
	}

	if consumed {
		a.logger.Debug("Токен погашен", slog.String("file_id", fileID))
	}
	return consumed
}

// Unlock снимает блокировку: attempts = 0, lastAttemptAt сбрасывается.
func (a *AccessController) Unlock(fileID string) error {
	err := a.store.Update(fileID, func(rec *model.FileRecord) error {
		rec.Attempts = 0
		rec.LastAttemptAt = nil
		return nil
	})
	if err != nil {
		return err
	}
	a.logger.Info("Блокировка снята", slog.String("file_id", fileID))
	return nil
}

// Forget удаляет запись и возвращает её последнее состояние.
func (a *AccessController) Forget(fileID string) (model.FileRecord, error) {
	return a.store.Delete(fileID)
}

// Lookup возвращает копию записи.
func (a *AccessController) Lookup(fileID string) (model.FileRecord, error) {
	return a.store.Get(fileID)
}

// List возвращает копии всех записей.
func (a *AccessController) List() []model.FileRecord {
	return a.store.List()
}

// IsLockedOut сообщает, исчерпан ли лимит попыток.
func (a *AccessController) IsLockedOut(rec model.FileRecord) bool {
	return rec.Attempts > a.cfg.MaxAttempts
}

// passwordMatches сравнивает введённый пароль с bcrypt-хэшем.
// Пароль длиннее предела bcrypt не может совпасть с сохранённым.
func passwordMatches(hash []byte, password string) bool {
	if len(password) > maxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// tokensEqual — сравнение токенов за постоянное время.
func tokensEqual(stored, supplied string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

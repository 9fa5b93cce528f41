// Пакет model — доменные модели QR Share.
// FileRecord — метаданные и состояние доступа к одному загруженному файлу.
// Запись живёт только в памяти процесса и теряется при рестарте.
package model

import (
	"time"
)

// FileRecord — запись о загруженном файле.
// Неизменяемые поля задаются при регистрации, изменяемые (Attempts,
// LastAttemptAt, DownloadToken, TokenExpiresAt) меняются только
// Access Controller'ом под блокировкой записи.
type FileRecord struct {
	// FileID — непрозрачный идентификатор (128 бит, hex)
	FileID string `json:"file_id"`

	// BlobLocation — имя blob'а в Blob Store
	BlobLocation string `json:"-"`

	// OriginalName — имя файла, предлагаемое при скачивании
	OriginalName string `json:"original_name"`

	// ContentType — MIME-тип, определённый по содержимому
	ContentType string `json:"content_type"`

	// Size — размер blob'а в байтах
	Size int64 `json:"size"`

	// Checksum — SHA-256 содержимого blob'а (используется как ETag)
	Checksum string `json:"checksum"`

	// PasswordHash — bcrypt-хэш пароля, заданного при загрузке.
	// Пустой пароль тоже хэшируется.
	PasswordHash []byte `json:"-"`

	// PasswordProtected — при загрузке был задан непустой пароль
	PasswordProtected bool `json:"password_protected"`

	// Attempts — количество попыток проверки с момента последнего успеха
	Attempts int `json:"attempts"`

	// LastAttemptAt — время последнего (не отклонённого по cooldown) вызова verify
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// DownloadToken — текущий одноразовый токен скачивания
	DownloadToken string `json:"-"`

	// TokenExpiresAt — момент истечения DownloadToken
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	// UploadedAt — время регистрации (UTC)
	UploadedAt time.Time `json:"uploaded_at"`
}

// HasToken сообщает, выпущен ли токен скачивания.
func (r *FileRecord) HasToken() bool {
	return r.DownloadToken != "" && r.TokenExpiresAt != nil
}

// TokenExpired проверяет, истёк ли выпущенный токен к моменту now.
func (r *FileRecord) TokenExpired(now time.Time) bool {
	if r.TokenExpiresAt == nil {
		return false
	}
	return now.After(*r.TokenExpiresAt)
}

// InCooldown проверяет, что с последней попытки прошло меньше cooldown.
func (r *FileRecord) InCooldown(now time.Time, cooldown time.Duration) bool {
	if r.LastAttemptAt == nil {
		return false
	}
	return now.Sub(*r.LastAttemptAt) < cooldown
}

// CooldownLeft возвращает остаток cooldown (0, если он прошёл).
func (r *FileRecord) CooldownLeft(now time.Time, cooldown time.Duration) time.Duration {
	if r.LastAttemptAt == nil {
		return 0
	}
	left := cooldown - now.Sub(*r.LastAttemptAt)
	if left < 0 {
		return 0
	}
	return left
}

// IsStale проверяет, что запись старше окна хранения.
func (r *FileRecord) IsStale(now time.Time, retention time.Duration) bool {
	return now.Sub(r.UploadedAt) > retention
}

// SetToken выставляет токен вместе со сроком действия.
func (r *FileRecord) SetToken(token string, expiresAt time.Time) {
	exp := expiresAt
	r.DownloadToken = token
	r.TokenExpiresAt = &exp
}

// ClearToken сбрасывает токен и срок действия одновременно.
func (r *FileRecord) ClearToken() {
	r.DownloadToken = ""
	r.TokenExpiresAt = nil
}

// Clone возвращает глубокую копию записи.
func (r *FileRecord) Clone() FileRecord {
	c := *r
	if r.PasswordHash != nil {
		c.PasswordHash = append([]byte(nil), r.PasswordHash...)
	}
	if r.LastAttemptAt != nil {
		t := *r.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if r.TokenExpiresAt != nil {
		t := *r.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	return c
}

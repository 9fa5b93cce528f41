// errors.go — ошибки сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrPasswordTooLong — пароль длиннее 72 байт (предел bcrypt).
	ErrPasswordTooLong = errors.New("пароль длиннее 72 байт")
	// ErrIDGeneration — не удалось получить случайные байты.
	ErrIDGeneration = errors.New("ошибка генерации идентификатора")
)

// Error — ошибка операции с HTTP-кодом и машиночитаемым кодом.
// Код соответствует кодам из internal/api/errors.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

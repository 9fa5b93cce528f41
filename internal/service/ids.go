// ids.go — генерация file_id и токенов скачивания.
package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// fileIDBytes — 128 бит энтропии
	fileIDBytes = 16
	// tokenBytes — 256 бит энтропии
	tokenBytes = 32
)

// NewFileID возвращает случайный file_id (32 hex-символа).
func NewFileID() (string, error) {
	return randomHex(fileIDBytes)
}

// NewToken возвращает случайный токен скачивания (64 hex-символа).
func NewToken() (string, error) {
	return randomHex(tokenBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIDGeneration, err)
	}
	return hex.EncodeToString(b), nil
}

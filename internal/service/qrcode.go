// qrcode.go — генерация QR-кодов со ссылкой на скачивание.
// PNG кэшируется в LRU с TTL (hashicorp/golang-lru/v2/expirable).
package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша QR.
var (
	qrCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_qr_cache_hits_total",
		Help: "Общее количество попаданий в кэш QR-кодов.",
	})
	qrCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qs_qr_cache_misses_total",
		Help: "Общее количество промахов кэша QR-кодов.",
	})
)

// QRService строит ссылки на файлы и QR-коды для них.
type QRService struct {
	publicURL string
	size      int
	cache     *expirable.LRU[string, []byte]
}

// NewQRService создаёт сервис QR-кодов.
// publicURL — базовый адрес сервиса, видимый получателю (без завершающего /).
// size — сторона PNG в пикселях, cacheSize и ttl — параметры кэша.
func NewQRService(publicURL string, size, cacheSize int, ttl time.Duration) *QRService {
	return &QRService{
		publicURL: strings.TrimRight(publicURL, "/"),
		size:      size,
		cache:     expirable.NewLRU[string, []byte](cacheSize, nil, ttl),
	}
}

// DownloadURL — ссылка /download/{fileId}, которую кодирует QR.
func (q *QRService) DownloadURL(fileID string) string {
	return q.publicURL + "/download/" + url.PathEscape(fileID)
}

// TokenURL — ссылка на скачивание с токеном.
func (q *QRService) TokenURL(fileID, token string) string {
	return q.DownloadURL(fileID) + "?token=" + url.QueryEscape(token)
}

// ShareURL — страница с QR-кодом и ссылками для отправки.
func (q *QRService) ShareURL(fileID string) string {
	return q.publicURL + "/share/" + url.PathEscape(fileID)
}

// PNG возвращает QR-код ссылки на скачивание в формате PNG.
func (q *QRService) PNG(fileID string) ([]byte, error) {
	if data, ok := q.cache.Get(fileID); ok {
		qrCacheHitsTotal.Inc()
		return data, nil
	}
	qrCacheMissesTotal.Inc()

	code, err := qr.Encode(q.DownloadURL(fileID), qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("ошибка кодирования QR: %w", err)
	}
	code, err = barcode.Scale(code, q.size, q.size)
	if err != nil {
		return nil, fmt.Errorf("ошибка масштабирования QR: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("ошибка кодирования PNG: %w", err)
	}

	data := buf.Bytes()
	q.cache.Add(fileID, data)
	return data, nil
}

// DataURL возвращает QR-код как data:image/png;base64,... для встраивания в JSON/HTML.
func (q *QRService) DataURL(fileID string) (string, error) {
	data, err := q.PNG(fileID)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Forget удаляет QR-код файла из кэша.
func (q *QRService) Forget(fileID string) {
	q.cache.Remove(fileID)
}

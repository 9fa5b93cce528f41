// Пакет config — загрузка и валидация конфигурации QR Share
// из переменных окружения.
// Необязательный .env файл (QS_ENV_FILE) подгружается через godotenv
// и не переопределяет уже заданные переменные.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации QR Share.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// PublicURL — базовый адрес, который попадает в QR-коды и ссылки
	PublicURL string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// TLS-сертификат и ключ (пусто — HTTP)
	TLSCert string
	TLSKey  string

	// --- Хранилище ---

	// DataDir — директория blob'ов
	DataDir string
	// MaxFileSize — предел размера загружаемого файла в байтах
	MaxFileSize int64
	// PurgeOnShutdown — удалять все blob'ы при остановке
	PurgeOnShutdown bool

	// --- Контроль доступа ---

	// VerifyCooldown — минимальный интервал между попытками ввода пароля
	VerifyCooldown time.Duration
	// MaxAttempts — число неудачных попыток до блокировки
	MaxAttempts int
	// TokenTTL — срок жизни токена скачивания
	TokenTTL time.Duration
	// BcryptCost — стоимость bcrypt для паролей
	BcryptCost int

	// --- Очистка ---

	// Retention — срок хранения файла после загрузки
	Retention time.Duration
	// JanitorInterval — период запуска очистки
	JanitorInterval time.Duration

	// --- QR ---

	QRSize      int
	QRCacheSize int

	// --- Административный API (JWT) ---

	// JWKSURL — адрес JWKS; пусто — административный API отключён
	JWKSURL string
	// JWKSCACert — CA-сертификат для TLS к JWKS
	JWKSCACert string
	// TLSSkipVerify — не проверять сертификат JWKS
	TLSSkipVerify bool
	// JWKSClientTimeout — таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// JWKSRefreshInterval — интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// JWTLeeway — допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Мониторинг зависимостей (topologymetrics) ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout — 0 означает без ограничения (скачивание больших файлов)
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// AdminEnabled сообщает, включён ли административный API.
func (c *Config) AdminEnabled() bool {
	return c.JWKSURL != ""
}

// TLSEnabled сообщает, задан ли TLS-сертификат.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны.
func Load() (*Config, error) {
	if envFile := os.Getenv("QS_ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("QS_ENV_FILE: %w", err)
		}
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// QS_PORT — порт HTTP-сервера (по умолчанию 3000)
	cfg.Port, err = getEnvInt("QS_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("QS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("QS_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	// QS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("QS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("QS_LOG_LEVEL: %w", err)
	}

	// QS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("QS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("QS_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.TLSCert = os.Getenv("QS_TLS_CERT")
	cfg.TLSKey = os.Getenv("QS_TLS_KEY")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, errors.New("QS_TLS_CERT и QS_TLS_KEY задаются вместе")
	}

	// QS_PUBLIC_URL — адрес для ссылок (по умолчанию http://<первый не-loopback IPv4>:<порт>)
	cfg.PublicURL = strings.TrimRight(os.Getenv("QS_PUBLIC_URL"), "/")
	if cfg.PublicURL == "" {
		scheme := "http"
		if cfg.TLSEnabled() {
			scheme = "https"
		}
		cfg.PublicURL = fmt.Sprintf("%s://%s:%d", scheme, detectLocalIP(), cfg.Port)
	} else if !strings.HasPrefix(cfg.PublicURL, "http://") && !strings.HasPrefix(cfg.PublicURL, "https://") {
		return nil, fmt.Errorf("QS_PUBLIC_URL: ожидается http:// или https:// адрес, получено %q", cfg.PublicURL)
	}

	// --- Хранилище ---

	cfg.DataDir = getEnvDefault("QS_DATA_DIR", "./uploads")

	// QS_MAX_FILE_SIZE — байты или размер с единицами: 500MB, 1GiB (по умолчанию 1 GiB)
	cfg.MaxFileSize, err = getEnvBytes("QS_MAX_FILE_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("QS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, errors.New("QS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.PurgeOnShutdown, err = getEnvBool("QS_PURGE_ON_SHUTDOWN", false)
	if err != nil {
		return nil, fmt.Errorf("QS_PURGE_ON_SHUTDOWN: %w", err)
	}

	// --- Контроль доступа ---

	cfg.VerifyCooldown, err = getEnvDuration("QS_VERIFY_COOLDOWN", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_VERIFY_COOLDOWN: %w", err)
	}
	if cfg.VerifyCooldown < 0 {
		return nil, errors.New("QS_VERIFY_COOLDOWN: значение не может быть отрицательным")
	}

	cfg.MaxAttempts, err = getEnvInt("QS_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("QS_MAX_ATTEMPTS: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("QS_MAX_ATTEMPTS: значение должно быть >= 1")
	}

	cfg.TokenTTL, err = getEnvPositiveDuration("QS_TOKEN_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QS_TOKEN_TTL: %w", err)
	}

	cfg.BcryptCost, err = getEnvInt("QS_BCRYPT_COST", bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("QS_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("QS_BCRYPT_COST: значение %d вне диапазона %d-%d",
			cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	// --- Очистка ---

	cfg.Retention, err = getEnvPositiveDuration("QS_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("QS_RETENTION: %w", err)
	}
	cfg.JanitorInterval, err = getEnvPositiveDuration("QS_JANITOR_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("QS_JANITOR_INTERVAL: %w", err)
	}

	// --- QR ---

	cfg.QRSize, err = getEnvInt("QS_QR_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("QS_QR_SIZE: %w", err)
	}
	if cfg.QRSize < 64 || cfg.QRSize > 2048 {
		return nil, fmt.Errorf("QS_QR_SIZE: значение %d вне диапазона 64-2048", cfg.QRSize)
	}
	cfg.QRCacheSize, err = getEnvInt("QS_QR_CACHE_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("QS_QR_CACHE_SIZE: %w", err)
	}
	if cfg.QRCacheSize < 1 {
		return nil, errors.New("QS_QR_CACHE_SIZE: значение должно быть >= 1")
	}

	// --- Административный API ---

	cfg.JWKSURL = os.Getenv("QS_JWKS_URL")
	if cfg.JWKSURL != "" && !strings.HasPrefix(cfg.JWKSURL, "http://") && !strings.HasPrefix(cfg.JWKSURL, "https://") {
		return nil, fmt.Errorf("QS_JWKS_URL: ожидается http:// или https:// адрес, получено %q", cfg.JWKSURL)
	}
	cfg.JWKSCACert = os.Getenv("QS_JWKS_CA_CERT")
	cfg.TLSSkipVerify, err = getEnvBool("QS_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("QS_TLS_SKIP_VERIFY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvPositiveDuration("QS_JWKS_CLIENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("QS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QS_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("QS_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("QS_DEPHEALTH_GROUP", "qrshare")
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("QS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("QS_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("QS_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("QS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("QS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvPositiveDuration("QS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// detectLocalIP возвращает первый IPv4-адрес, не являющийся loopback.
// Без сетевых интерфейсов — localhost.
func detectLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBytes возвращает размер в байтах: целое число или строку с единицами (humanize).
func getEnvBytes(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := humanize.ParseBytes(val)
	if err != nil {
		return 0, fmt.Errorf("некорректный размер: %q (примеры: 1073741824, 500MB, 1GiB)", val)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("слишком большой размер: %q", val)
	}
	return int64(n), nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

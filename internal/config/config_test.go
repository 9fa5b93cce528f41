package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"QS_ENV_FILE", "QS_PORT", "QS_PUBLIC_URL", "QS_LOG_LEVEL", "QS_LOG_FORMAT",
	"QS_TLS_CERT", "QS_TLS_KEY", "QS_DATA_DIR", "QS_MAX_FILE_SIZE", "QS_PURGE_ON_SHUTDOWN",
	"QS_VERIFY_COOLDOWN", "QS_MAX_ATTEMPTS", "QS_TOKEN_TTL", "QS_BCRYPT_COST",
	"QS_RETENTION", "QS_JANITOR_INTERVAL", "QS_QR_SIZE", "QS_QR_CACHE_SIZE",
	"QS_JWKS_URL", "QS_JWKS_CA_CERT", "QS_TLS_SKIP_VERIFY", "QS_JWKS_CLIENT_TIMEOUT",
	"QS_JWKS_REFRESH_INTERVAL", "QS_JWT_LEEWAY", "QS_DEPHEALTH_GROUP",
	"QS_DEPHEALTH_CHECK_INTERVAL", "QS_HTTP_READ_TIMEOUT", "QS_HTTP_WRITE_TIMEOUT",
	"QS_HTTP_IDLE_TIMEOUT", "QS_SHUTDOWN_TIMEOUT",
}

// clearEnv удаляет все QS_* переменные на время теста.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Port", cfg.Port, 3000},
		{"DataDir", cfg.DataDir, "./uploads"},
		{"MaxFileSize", cfg.MaxFileSize, int64(1 << 30)},
		{"VerifyCooldown", cfg.VerifyCooldown, 2 * time.Second},
		{"MaxAttempts", cfg.MaxAttempts, 5},
		{"TokenTTL", cfg.TokenTTL, 30 * time.Minute},
		{"Retention", cfg.Retention, 24 * time.Hour},
		{"JanitorInterval", cfg.JanitorInterval, time.Hour},
		{"BcryptCost", cfg.BcryptCost, 10},
		{"QRSize", cfg.QRSize, 256},
		{"LogLevel", cfg.LogLevel, slog.LevelInfo},
		{"LogFormat", cfg.LogFormat, "json"},
		{"HTTPWriteTimeout", cfg.HTTPWriteTimeout, time.Duration(0)},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
		{"PurgeOnShutdown", cfg.PurgeOnShutdown, false},
		{"AdminEnabled", cfg.AdminEnabled(), false},
		{"TLSEnabled", cfg.TLSEnabled(), false},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: ожидалось %v, получено %v", c.name, c.want, c.got)
		}
	}

	if !strings.HasPrefix(cfg.PublicURL, "http://") || !strings.HasSuffix(cfg.PublicURL, ":3000") {
		t.Errorf("PublicURL по умолчанию: %s", cfg.PublicURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("QS_PORT", "8080")
	t.Setenv("QS_PUBLIC_URL", "https://share.example.com/")
	t.Setenv("QS_MAX_FILE_SIZE", "500MiB")
	t.Setenv("QS_MAX_ATTEMPTS", "3")
	t.Setenv("QS_TOKEN_TTL", "5m")
	t.Setenv("QS_LOG_LEVEL", "debug")
	t.Setenv("QS_PURGE_ON_SHUTDOWN", "true")
	t.Setenv("QS_JWKS_URL", "https://keycloak/realms/x/protocol/openid-connect/certs")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.MaxAttempts != 3 || cfg.TokenTTL != 5*time.Minute {
		t.Errorf("неожиданная конфигурация: %+v", cfg)
	}
	if cfg.PublicURL != "https://share.example.com" {
		t.Errorf("PublicURL без завершающего /: %s", cfg.PublicURL)
	}
	if cfg.MaxFileSize != 500<<20 {
		t.Errorf("MaxFileSize: %d", cfg.MaxFileSize)
	}
	if cfg.LogLevel != slog.LevelDebug || !cfg.PurgeOnShutdown || !cfg.AdminEnabled() {
		t.Errorf("LogLevel/Purge/Admin: %v %v %v", cfg.LogLevel, cfg.PurgeOnShutdown, cfg.AdminEnabled())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"QS_PORT", "abc"},
		{"QS_PORT", "70000"},
		{"QS_LOG_LEVEL", "verbose"},
		{"QS_LOG_FORMAT", "xml"},
		{"QS_PUBLIC_URL", "ftp://x"},
		{"QS_MAX_FILE_SIZE", "lots"},
		{"QS_MAX_FILE_SIZE", "0"},
		{"QS_MAX_ATTEMPTS", "0"},
		{"QS_TOKEN_TTL", "0s"},
		{"QS_VERIFY_COOLDOWN", "-1s"},
		{"QS_RETENTION", "1d"},
		{"QS_BCRYPT_COST", "99"},
		{"QS_QR_SIZE", "10"},
		{"QS_JWKS_URL", "keycloak"},
		{"QS_TLS_CERT", "/tmp/cert.pem"},
		{"QS_TLS_SKIP_VERIFY", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "qrshare.env")
	content := "QS_PORT=4000\nQS_MAX_ATTEMPTS=7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QS_ENV_FILE", path)
	t.Setenv("QS_MAX_ATTEMPTS", "2")
	// godotenv.Load записывает в окружение процесса
	t.Cleanup(func() { os.Unsetenv("QS_PORT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4000 {
		t.Errorf("QS_PORT из файла: %d", cfg.Port)
	}
	if cfg.MaxAttempts != 2 {
		t.Errorf("переменная окружения важнее файла, получено %d", cfg.MaxAttempts)
	}

	t.Setenv("QS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err == nil {
		t.Error("ожидалась ошибка для отсутствующего QS_ENV_FILE")
	}
}

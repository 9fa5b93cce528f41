// Пакет i18n — интернационализация страниц QR Share.
// Поддерживаемые языки: English (en), Русский (ru).
// Язык определяется middleware: cookie "lang" → Accept-Language → default "en".
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLang — язык по умолчанию и эталонный каталог.
const DefaultLang = "en"

// languages — языки страниц; первый элемент совпадает с DefaultLang.
var languages = []struct {
	code string
	tag  language.Tag
}{
	{"en", language.English},
	{"ru", language.Russian},
}

var matcher = language.NewMatcher(func() []language.Tag {
	tags := make([]language.Tag, len(languages))
	for i, l := range languages {
		tags[i] = l.tag
	}
	return tags
}())

type contextKey string

const contextKeyLang contextKey = "i18n_lang"

// Bundle — каталоги переводов страниц.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string // lang → key → translation
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle.
func NewBundle(logger *slog.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		logger:   logger,
	}
}

// LoadMessages загружает плоский JSON-каталог {"key": "translation"} для языка.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	if !IsSupported(lang) {
		return fmt.Errorf("i18n: язык %q не поддерживается", lang)
	}
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка парсинга каталога %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogs[lang] = messages

	if b.logger != nil {
		b.logger.Debug("i18n каталог загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(messages)),
		)
	}
	return nil
}

// Validate проверяет, что каталог каждого языка содержит все ключи DefaultLang.
func (b *Bundle) Validate() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	base, ok := b.catalogs[DefaultLang]
	if !ok {
		return fmt.Errorf("i18n: каталог %s не загружен", DefaultLang)
	}
	for _, l := range languages[1:] {
		catalog, ok := b.catalogs[l.code]
		if !ok {
			return fmt.Errorf("i18n: каталог %s не загружен", l.code)
		}
		var missing []string
		for key := range base {
			if _, ok := catalog[key]; !ok {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("i18n: в каталоге %s нет ключей %v", l.code, missing)
		}
	}
	return nil
}

// Translate возвращает перевод по ключу. Неизвестный ключ возвращается как есть.
func (b *Bundle) Translate(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg, ok := b.catalogs[lang][key]; ok {
		return msg
	}
	if msg, ok := b.catalogs[DefaultLang][key]; ok {
		return msg
	}
	return key
}

// Translatef возвращает перевод с подстановкой аргументов (fmt.Sprintf).
func (b *Bundle) Translatef(lang, key string, args ...any) string {
	template := b.Translate(lang, key)
	if len(args) == 0 {
		return template
	}
	return formatFunc(template, args...)
}

// formatFunc — fmt.Sprintf через переменную: формат-строки приходят
// из JSON-каталогов, go vet printf-проверка к ним неприменима.
//
//nolint:govet // обход go vet printf-анализатора
var formatFunc = fmt.Sprintf

// WithLang помещает язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, contextKeyLang, lang)
}

// LangFromContext извлекает язык из контекста. Default: "en".
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKeyLang).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}

// Languages возвращает коды поддерживаемых языков.
func Languages() []string {
	codes := make([]string, len(languages))
	for i, l := range languages {
		codes[i] = l.code
	}
	return codes
}

// IsSupported сообщает, поддерживается ли код языка.
func IsSupported(lang string) bool {
	for _, l := range languages {
		if l.code == lang {
			return true
		}
	}
	return false
}

// MatchLanguage выбирает язык страниц по заголовку Accept-Language.
// Без уверенного совпадения возвращает DefaultLang.
func MatchLanguage(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	return languages[idx].code
}

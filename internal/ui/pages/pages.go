// Пакет pages — HTML-страницы QR Share: загрузка, страница «поделиться»
// и форма пароля перед скачиванием.
// Шаблоны html/template встраиваются в бинарник через go:embed.
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/qrshare/internal/ui/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// Имена страниц.
const (
	PageIndex    = "index"
	PageShare    = "share"
	PageDownload = "download"
)

// IndexData — данные страницы загрузки.
type IndexData struct {
	MaxFileSize int64
}

// ShareData — данные страницы «поделиться».
type ShareData struct {
	FileID            string
	Name              string
	Size              int64
	PasswordProtected bool
	ExpiresAt         time.Time
	QRURL             string
	DownloadURL       string
	WhatsAppURL       string
	MailtoURL         string
}

// DownloadData — данные формы пароля.
type DownloadData struct {
	FileID            string
	Name              string
	Size              int64
	PasswordProtected bool
}

// view — корневые данные шаблона.
type view struct {
	Lang       string
	SwitchLang string
	Data       any
}

// Renderer отрисовывает страницы на языке запроса.
type Renderer struct {
	bundle *i18n.Bundle
	pages  map[string]*template.Template
}

// New разбирает встроенные шаблоны. Каждая страница — отдельный набор
// layout + страница.
func New(bundle *i18n.Bundle) (*Renderer, error) {
	r := &Renderer{
		bundle: bundle,
		pages:  make(map[string]*template.Template),
	}

	funcs := template.FuncMap{
		"t":        bundle.Translate,
		"tf":       bundle.Translatef,
		"bytes":    func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
		"datetime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
	}

	for _, name := range []string{PageIndex, PageShare, PageDownload} {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("разбор шаблона %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render пишет страницу с указанным статусом.
// Шаблон исполняется в буфер, ответ пишется только после успешной отрисовки.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("неизвестная страница %s", page)
	}

	lang := i18n.LangFromContext(req.Context())
	switchLang := "ru"
	if lang == "ru" {
		switchLang = "en"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view{Lang: lang, SwitchLang: switchLang, Data: data}); err != nil {
		return fmt.Errorf("отрисовка страницы %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

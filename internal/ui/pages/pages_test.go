package pages

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/qrshare/internal/ui/i18n"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	bundle, err := i18n.Load(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(bundle)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func render(t *testing.T, r *Renderer, lang, page string, data any) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(i18n.WithLang(req.Context(), lang))
	w := httptest.NewRecorder()
	if err := r.Render(w, req, http.StatusOK, page, data); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: %s", ct)
	}
	return w.Body.String()
}

func TestRender_Index(t *testing.T) {
	body := render(t, newTestRenderer(t), "en", PageIndex, IndexData{MaxFileSize: 1 << 30})
	for _, want := range []string{"Upload &amp; Generate QR", "1.0 GiB", `action="/upload"`, "/static/js/upload.js"} {
		if !strings.Contains(body, want) {
			t.Errorf("страница загрузки не содержит %q", want)
		}
	}
}

func TestRender_Share(t *testing.T) {
	body := render(t, newTestRenderer(t), "en", PageShare, ShareData{
		FileID:      "abc",
		Name:        `<script>x</script>.txt`,
		Size:        2048,
		ExpiresAt:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		QRURL:       "/qr/abc",
		DownloadURL: "http://10.0.0.5:3000/download/abc",
		WhatsAppURL: "https://wa.me/?text=http%3A%2F%2F10.0.0.5%3A3000%2Fdownload%2Fabc",
		MailtoURL:   "mailto:?subject=File%20share&body=x",
	})
	if strings.Contains(body, "<script>x</script>") {
		t.Error("имя файла должно экранироваться")
	}
	for _, want := range []string{
		`download="abc.png"`,
		"Copy Download Link",
		"Open Download Page",
		"https://wa.me/?text=",
		"mailto:?subject=File%20share",
		"2.0 KiB",
		"2026-03-02 12:00 UTC",
		"Link copied to clipboard",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("страница share не содержит %q", want)
		}
	}
}

func TestRender_DownloadLocalized(t *testing.T) {
	r := newTestRenderer(t)

	body := render(t, r, "ru", PageDownload, DownloadData{FileID: "abc", Name: "отчёт.pdf", PasswordProtected: true})
	for _, want := range []string{"Скачать: отчёт.pdf", "Проверить и скачать", `type="password"`, `lang="ru"`, "?lang=en"} {
		if !strings.Contains(body, want) {
			t.Errorf("русская форма не содержит %q", want)
		}
	}

	body = render(t, r, "en", PageDownload, DownloadData{FileID: "abc", Name: "a.txt"})
	if strings.Contains(body, `type="password"`) {
		t.Error("для файла без пароля поле пароля не показывается")
	}
	if !strings.Contains(body, ">Download<") {
		t.Error("ожидалась кнопка Download")
	}
}

func TestRender_UnknownPage(t *testing.T) {
	r := newTestRenderer(t)
	err := r.Render(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, "nope", nil)
	if err == nil {
		t.Error("ожидалась ошибка для неизвестной страницы")
	}
}

// pages.go — HTML-страницы: загрузка, «поделиться», переключение языка.
package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/qrshare/internal/api/contract"
	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
	"github.com/bigkaa/qrshare/internal/service"
	"github.com/bigkaa/qrshare/internal/ui/i18n"
	"github.com/bigkaa/qrshare/internal/ui/pages"
)

// PagesHandler — обработчик HTML-страниц.
type PagesHandler struct {
	access      *service.AccessController
	qr          *service.QRService
	bundle      *i18n.Bundle
	pages       *pages.Renderer
	retention   time.Duration
	maxFileSize int64
	logger      *slog.Logger
}

// NewPagesHandler создаёт обработчик HTML-страниц.
// retention — срок хранения файла, показывается на странице «поделиться».
func NewPagesHandler(
	access *service.AccessController,
	qr *service.QRService,
	bundle *i18n.Bundle,
	renderer *pages.Renderer,
	retention time.Duration,
	maxFileSize int64,
	logger *slog.Logger,
) *PagesHandler {
	return &PagesHandler{
		access:      access,
		qr:          qr,
		bundle:      bundle,
		pages:       renderer,
		retention:   retention,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "pages_handler")),
	}
}

// GetIndexPage обрабатывает GET / — форма загрузки.
func (h *PagesHandler) GetIndexPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.pages, h.logger, pages.PageIndex, pages.IndexData{MaxFileSize: h.maxFileSize})
}

// GetSharePage обрабатывает GET /share/{fileId}.
func (h *PagesHandler) GetSharePage(w http.ResponseWriter, r *http.Request, fileId contract.FileId) {
	rec, err := h.access.Lookup(fileId)
	if err != nil {
		apierrors.Negotiate(w, r, http.StatusNotFound, apierrors.CodeNotFound, "File not found")
		return
	}

	lang := i18n.LangFromContext(r.Context())
	downloadURL := h.qr.DownloadURL(rec.FileID)

	renderPage(w, r, h.pages, h.logger, pages.PageShare, pages.ShareData{
		FileID:            rec.FileID,
		Name:              displayName(rec),
		Size:              rec.Size,
		PasswordProtected: rec.PasswordProtected,
		ExpiresAt:         rec.UploadedAt.Add(h.retention),
		QRURL:             "/qr/" + url.PathEscape(rec.FileID),
		DownloadURL:       downloadURL,
		WhatsAppURL:       "https://wa.me/?text=" + url.QueryEscape(downloadURL),
		MailtoURL: "mailto:?subject=" + url.PathEscape(h.bundle.Translate(lang, "share.email_subject")) +
			"&body=" + url.PathEscape(h.bundle.Translatef(lang, "share.email_body", downloadURL)),
	})
}

// SetLanguage обрабатывает GET /set-language?lang=xx.
// Устанавливает cookie "lang" и перенаправляет обратно (303).
func (h *PagesHandler) SetLanguage(w http.ResponseWriter, r *http.Request, params contract.SetLanguageParams) {
	lang := params.Lang
	if !i18n.IsSupported(lang) {
		lang = i18n.DefaultLang
	}
	i18n.SetLangCookie(w, lang)

	http.Redirect(w, r, sameHostReferer(r), http.StatusSeeOther)
}

// sameHostReferer возвращает путь из Referer того же хоста, иначе "/".
func sameHostReferer(r *http.Request) string {
	ref, err := url.Parse(r.Header.Get("Referer"))
	if err != nil || ref.Host != r.Host || ref.Path == "" {
		return "/"
	}
	target := ref.EscapedPath()
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	return target
}

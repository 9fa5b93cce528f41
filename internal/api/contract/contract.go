// Пакет contract — серверная сторона OpenAPI контракта (internal/api/openapi).
// Интерфейсы операций, обёртка привязки параметров (oapi-codegen runtime)
// и регистрация маршрутов в chi, в раскладке chi-server генератора.
package contract

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
)

// FileId — идентификатор файла из пути.
type FileId = string //nolint:revive // имя совпадает с параметром контракта

// DownloadFileParams — query-параметры GET /download/{fileId}.
type DownloadFileParams struct {
	Token *string `form:"token,omitempty" json:"token,omitempty"`
}

// SetLanguageParams — query-параметры GET /set-language.
type SetLanguageParams struct {
	Lang string `form:"lang" json:"lang"`
}

// AdminListFilesParams — query-параметры GET /api/v1/admin/files.
type AdminListFilesParams struct {
	Locked *bool `form:"locked,omitempty" json:"locked,omitempty"`
}

// ServerInterface — публичные операции.
type ServerInterface interface {
	// (GET /)
	GetIndexPage(w http.ResponseWriter, r *http.Request)
	// (POST /upload)
	UploadFile(w http.ResponseWriter, r *http.Request)
	// (POST /verify)
	VerifyPassword(w http.ResponseWriter, r *http.Request)
	// (GET /download/{fileId})
	DownloadFile(w http.ResponseWriter, r *http.Request, fileId FileId, params DownloadFileParams)
	// (GET /share/{fileId})
	GetSharePage(w http.ResponseWriter, r *http.Request, fileId FileId)
	// (GET /qr/{fileId})
	GetQRCode(w http.ResponseWriter, r *http.Request, fileId FileId)
	// (GET /set-language)
	SetLanguage(w http.ResponseWriter, r *http.Request, params SetLanguageParams)
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
}

// AdminServerInterface — операции административного API (security: bearerAuth).
type AdminServerInterface interface {
	// (GET /api/v1/admin/files)
	AdminListFiles(w http.ResponseWriter, r *http.Request, params AdminListFilesParams)
	// (DELETE /api/v1/admin/files/{fileId})
	AdminDeleteFile(w http.ResponseWriter, r *http.Request, fileId FileId)
	// (POST /api/v1/admin/files/{fileId}/unlock)
	AdminUnlockFile(w http.ResponseWriter, r *http.Request, fileId FileId)
}

// MiddlewareFunc — middleware отдельной операции.
type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError — параметр не удалось привязать к типу.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// defaultErrorHandler отвечает 400 на ошибки привязки параметров.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	apierrors.Negotiate(w, r, http.StatusBadRequest, apierrors.CodeValidationError, err.Error())
}

// ServerInterfaceWrapper привязывает параметры и вызывает операции.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	Admin              AdminServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) wrap(h http.Handler) http.Handler {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	return h
}

// GetIndexPage operation middleware
func (siw *ServerInterfaceWrapper) GetIndexPage(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetIndexPage)).ServeHTTP(w, r)
}

// UploadFile operation middleware
func (siw *ServerInterfaceWrapper) UploadFile(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.UploadFile)).ServeHTTP(w, r)
}

// VerifyPassword operation middleware
func (siw *ServerInterfaceWrapper) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.VerifyPassword)).ServeHTTP(w, r)
}

// DownloadFile operation middleware
func (siw *ServerInterfaceWrapper) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileId, ok := siw.bindFileID(w, r)
	if !ok {
		return
	}

	var params DownloadFileParams
	if err := runtime.BindQueryParameter("form", true, false, "token", r.URL.Query(), &params.Token); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "token", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DownloadFile(w, r, fileId, params)
	})).ServeHTTP(w, r)
}

// GetSharePage operation middleware
func (siw *ServerInterfaceWrapper) GetSharePage(w http.ResponseWriter, r *http.Request) {
	fileId, ok := siw.bindFileID(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetSharePage(w, r, fileId)
	})).ServeHTTP(w, r)
}

// GetQRCode operation middleware
func (siw *ServerInterfaceWrapper) GetQRCode(w http.ResponseWriter, r *http.Request) {
	fileId, ok := siw.bindFileID(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetQRCode(w, r, fileId)
	})).ServeHTTP(w, r)
}

// SetLanguage operation middleware
func (siw *ServerInterfaceWrapper) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var params SetLanguageParams
	if err := runtime.BindQueryParameter("form", true, true, "lang", r.URL.Query(), &params.Lang); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "lang", Err: err})
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SetLanguage(w, r, params)
	})).ServeHTTP(w, r)
}

// HealthLive operation middleware
func (siw *ServerInterfaceWrapper) HealthLive(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.HealthLive)).ServeHTTP(w, r)
}

// HealthReady operation middleware
func (siw *ServerInterfaceWrapper) HealthReady(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.HealthReady)).ServeHTTP(w, r)
}

// GetMetrics operation middleware
func (siw *ServerInterfaceWrapper) GetMetrics(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetMetrics)).ServeHTTP(w, r)
}

// AdminListFiles operation middleware
func (siw *ServerInterfaceWrapper) AdminListFiles(w http.ResponseWriter, r *http.Request) {
	var params AdminListFilesParams
	if err := runtime.BindQueryParameter("form", true, false, "locked", r.URL.Query(), &params.Locked); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "locked", Err: err})
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Admin.AdminListFiles(w, r, params)
	})).ServeHTTP(w, r)
}

// AdminDeleteFile operation middleware
func (siw *ServerInterfaceWrapper) AdminDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileId, ok := siw.bindFileID(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Admin.AdminDeleteFile(w, r, fileId)
	})).ServeHTTP(w, r)
}

// AdminUnlockFile operation middleware
func (siw *ServerInterfaceWrapper) AdminUnlockFile(w http.ResponseWriter, r *http.Request) {
	fileId, ok := siw.bindFileID(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Admin.AdminUnlockFile(w, r, fileId)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) bindFileID(w http.ResponseWriter, r *http.Request) (FileId, bool) {
	var fileId FileId
	err := runtime.BindStyledParameterWithOptions("simple", "fileId", chi.URLParam(r, "fileId"), &fileId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "fileId", Err: err})
		return "", false
	}
	return fileId, true
}

// ChiServerOptions — параметры регистрации маршрутов.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux регистрирует публичные маршруты в существующем роутере.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions регистрирует публичные маршруты.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r, wrapper := newWrapper(options)
	wrapper.Handler = si

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/", wrapper.GetIndexPage)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/upload", wrapper.UploadFile)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/verify", wrapper.VerifyPassword)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/download/{fileId}", wrapper.DownloadFile)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/share/{fileId}", wrapper.GetSharePage)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/qr/{fileId}", wrapper.GetQRCode)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/set-language", wrapper.SetLanguage)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health/live", wrapper.HealthLive)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health/ready", wrapper.HealthReady)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/metrics", wrapper.GetMetrics)
	})

	return r
}

// AdminHandlerWithOptions регистрирует маршруты административного API.
// Middleware аутентификации передаются в options.Middlewares.
func AdminHandlerWithOptions(si AdminServerInterface, options ChiServerOptions) http.Handler {
	r, wrapper := newWrapper(options)
	wrapper.Admin = si

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/admin/files", wrapper.AdminListFiles)
	})
	r.Group(func(r chi.Router) {
		r.Delete(options.BaseURL+"/api/v1/admin/files/{fileId}", wrapper.AdminDeleteFile)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/admin/files/{fileId}/unlock", wrapper.AdminUnlockFile)
	})

	return r
}

func newWrapper(options ChiServerOptions) (chi.Router, *ServerInterfaceWrapper) {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = defaultErrorHandler
	}
	return r, &ServerInterfaceWrapper{
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}
}

package contract

import "time"

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadResponse — ответ POST /upload.
type UploadResponse struct {
	Success           bool   `json:"success"`
	FileId            string `json:"fileId"`
	Qr                string `json:"qr"`
	ShareUrl          string `json:"shareUrl,omitempty"`
	DownloadUrl       string `json:"downloadUrl,omitempty"`
	FileName          string `json:"fileName,omitempty"`
	Size              int64  `json:"size,omitempty"`
	PasswordProtected bool   `json:"passwordProtected"`
}

// VerifyRequest — тело POST /verify.
type VerifyRequest struct {
	FileId   string `json:"fileId"`
	Password string `json:"password"`
}

// VerifyResponse — ответ POST /verify.
type VerifyResponse struct {
	Success     bool       `json:"success"`
	Code        string     `json:"code,omitempty"`
	Message     string     `json:"message,omitempty"`
	DownloadUrl string     `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	RetryAfter  *int       `json:"retryAfter,omitempty"`
}

// FileInfo — запись о файле в административном API. Секреты не передаются.
type FileInfo struct {
	FileId            string     `json:"fileId"`
	OriginalName      string     `json:"originalName"`
	ContentType       string     `json:"contentType,omitempty"`
	Size              int64      `json:"size"`
	PasswordProtected bool       `json:"passwordProtected"`
	Attempts          int        `json:"attempts"`
	LockedOut         bool       `json:"lockedOut"`
	TokenActive       bool       `json:"tokenActive"`
	LastAttemptAt     *time.Time `json:"lastAttemptAt,omitempty"`
	TokenExpiresAt    *time.Time `json:"tokenExpiresAt,omitempty"`
	UploadedAt        time.Time  `json:"uploadedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
}

// FileList — ответ GET /api/v1/admin/files.
type FileList struct {
	Items []FileInfo `json:"items"`
	Total int        `json:"total"`
}

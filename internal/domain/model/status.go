package model

// VerifyReason — результат проверки пароля.
type VerifyReason string

const (
	// ReasonGranted — пароль верный, токен выпущен
	ReasonGranted VerifyReason = "GRANTED"
	// ReasonNotFound — неизвестный file_id
	ReasonNotFound VerifyReason = "NOT_FOUND"
	// ReasonRateLimited — попытка внутри cooldown, не считается
	ReasonRateLimited VerifyReason = "RATE_LIMITED"
	// ReasonLockedOut — превышено число попыток
	ReasonLockedOut VerifyReason = "LOCKED_OUT"
	// ReasonInvalidPassword — неверный пароль
	ReasonInvalidPassword VerifyReason = "INVALID_PASSWORD"
)

// DownloadStatus — результат авторизации скачивания.
// Ровно один статус на вызов; blob читается только при StatusAuthorized.
type DownloadStatus string

const (
	StatusNotFound         DownloadStatus = "NOT_FOUND"
	StatusNoTokenPresented DownloadStatus = "NO_TOKEN_PRESENTED"
	StatusNotVerified      DownloadStatus = "NOT_VERIFIED"
	StatusInvalidToken     DownloadStatus = "INVALID_TOKEN"
	StatusExpired          DownloadStatus = "EXPIRED"
	StatusAuthorized       DownloadStatus = "AUTHORIZED"
)

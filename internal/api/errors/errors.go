// Пакет errors — конструкторы стандартных ошибок API Resource Module.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // имя пакета совпадает со stdlib намеренно, используется с алиасом

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError        = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodePayloadTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType   = "UNSUPPORTED_MEDIA_TYPE"
	CodeStagingExpired         = "STAGING_EXPIRED_OR_MISSING"
	CodeArchiveInvalid         = "ARCHIVE_INVALID"
	CodeFormatNotSupported     = "FORMAT_NOT_SUPPORTED"
	CodeCredentialNotFound     = "CREDENTIAL_NOT_FOUND"
	CodeCatalogUnavailable     = "CATALOG_UNAVAILABLE"
	CodeMaterializationFailed  = "MATERIALIZATION_FAILED"
	CodeStorageError           = "STORAGE_ERROR"
	CodeInternalError          = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// ResourceID — идентификатор ресурса для ручного повтора операции
	// (заполняется для MATERIALIZATION_FAILED и CATALOG_UNAVAILABLE).
	ResourceID string `json:"resource_id,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message})
}

// WriteResourceError записывает ошибку с привязкой к ресурсу, чтобы
// вызывающая сторона могла повторить только отказавшую фазу
// (материализацию или синхронизацию) без повторной загрузки файла.
func WriteResourceError(w http.ResponseWriter, statusCode int, code, message, resourceID string) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message, ResourceID: resourceID})
}

func writeBody(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 конфликт состояния (например, повторная под-запись).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// PayloadTooLarge — 413 файл превышает лимит.
func PayloadTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

// UnsupportedMediaType — 415 MIME-тип не входит в допустимые.
func UnsupportedMediaType(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, message)
}

// StagingExpired — 410 staging-запись отсутствует или истекла.
func StagingExpired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, CodeStagingExpired, message)
}

// ArchiveInvalid — 422 архив повреждён или нечитаем.
func ArchiveInvalid(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeArchiveInvalid, message)
}

// FormatNotSupported — 501 контейнер архива не поддерживается.
func FormatNotSupported(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotImplemented, CodeFormatNotSupported, message)
}

// CredentialNotFound — 502 у пользователя нет учётной записи CKAN.
func CredentialNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeCredentialNotFound, message)
}

// CatalogUnavailable — 502 CKAN недоступен; локальное состояние сохранено.
func CatalogUnavailable(w http.ResponseWriter, message, resourceID string) {
	WriteResourceError(w, http.StatusBadGateway, CodeCatalogUnavailable, message, resourceID)
}

// MaterializationFailed — 500 ресурс создан, но содержимое не материализовано.
// ResourceID позволяет повторить материализацию без пересоздания ресурса.
func MaterializationFailed(w http.ResponseWriter, message, resourceID string) {
	WriteResourceError(w, http.StatusInternalServerError, CodeMaterializationFailed, message, resourceID)
}

// StorageError — 500 ошибка дисковой подсистемы.
func StorageError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStorageError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// errors.go — sentinel-ошибки сервисного слоя.
// Handlers сопоставляют их с HTTP-статусами и кодами ответов.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge — размер файла превышает RM_MAX_UPLOAD_SIZE.
	ErrPayloadTooLarge = errors.New("размер файла превышает допустимый предел")
	// ErrUnsupportedMediaType — MIME-тип не входит ни в один известный формат.
	ErrUnsupportedMediaType = errors.New("MIME-тип не поддерживается ни одним форматом")
	// ErrStagingExpiredOrMissing — талон staging истёк или не существует.
	ErrStagingExpiredOrMissing = errors.New("staging-запись истекла или не существует")
	// ErrArchiveInvalid — архив повреждён.
	ErrArchiveInvalid = errors.New("архив повреждён")
	// ErrFormatNotSupported — распаковка формата не реализована.
	ErrFormatNotSupported = errors.New("формат архива не поддерживается")
	// ErrCredentialNotFound — у пользователя нет учётной записи в CKAN.
	ErrCredentialNotFound = errors.New("учётные данные пользователя не найдены в каталоге")
	// ErrCatalogUnavailable — каталог CKAN недоступен.
	ErrCatalogUnavailable = errors.New("каталог недоступен")
	// ErrRecordNotFound — ресурс или набор данных не найден.
	ErrRecordNotFound = errors.New("запись не найдена")
	// ErrStorage — ошибка файлового хранилища.
	ErrStorage = errors.New("ошибка файлового хранилища")
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("некорректные входные данные")
	// ErrMaterializationFailed — ресурс создан, но материализация содержимого
	// не удалась. Сопровождается идентификатором ресурса для повтора.
	ErrMaterializationFailed = errors.New("материализация содержимого ресурса не удалась")
)

// MaterializationError несёт идентификатор ресурса, содержимое которого
// не удалось материализовать. Запись ресурса при этом уже создана;
// повтор выполняется через Rematerialize.
type MaterializationError struct {
	ResourceID string
	Err        error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("%v: ресурс %s: %v", ErrMaterializationFailed, e.ResourceID, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// Is делает MaterializationError совместимой с errors.Is(err, ErrMaterializationFailed).
func (e *MaterializationError) Is(target error) bool {
	return target == ErrMaterializationFailed
}

// errors.go — трансляция ошибок сервисного слоя в HTTP-ответы.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/arturkryukov/geocat/resource-module/internal/api/errors"
	"github.com/arturkryukov/geocat/resource-module/internal/repository"
	"github.com/arturkryukov/geocat/resource-module/internal/service"
)

// writeServiceError сопоставляет sentinel-ошибки сервисов с HTTP-статусами.
// resourceID (может быть пустым) попадает в тело ответа для ошибок,
// допускающих ручной повтор отдельной фазы.
func writeServiceError(w http.ResponseWriter, err error, resourceID string) {
	var matErr *service.MaterializationError
	if errors.As(err, &matErr) {
		apierrors.MaterializationFailed(w, err.Error(), matErr.ResourceID)
		return
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrRecordNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrStagingExpiredOrMissing):
		apierrors.StagingExpired(w, err.Error())
	case errors.Is(err, service.ErrPayloadTooLarge):
		apierrors.PayloadTooLarge(w, err.Error())
	case errors.Is(err, service.ErrUnsupportedMediaType):
		apierrors.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, service.ErrArchiveInvalid):
		apierrors.ArchiveInvalid(w, err.Error())
	case errors.Is(err, service.ErrFormatNotSupported):
		apierrors.FormatNotSupported(w, err.Error())
	case errors.Is(err, service.ErrCredentialNotFound):
		apierrors.CredentialNotFound(w, err.Error())
	case errors.Is(err, service.ErrCatalogUnavailable):
		apierrors.CatalogUnavailable(w, err.Error(), resourceID)
	case errors.Is(err, repository.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrStorage):
		apierrors.StorageError(w, err.Error())
	default:
		apierrors.InternalError(w, err.Error())
	}
}

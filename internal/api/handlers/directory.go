// directory.go — публичная раздача содержимого Store-ресурсов.
// Манифест директории (JSON) и файлы по относительному пути.
// Endpoints не требуют аутентификации: ссылки на них публикуются
// в CKAN и открываются конечными пользователями каталога.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/geocat/resource-module/internal/api/errors"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/dirstore"
)

// DirectoryHandler — обработчик endpoints раздачи содержимого ресурсов.
type DirectoryHandler struct {
	lister *dirstore.Lister
	domain string
}

// NewDirectoryHandler создаёт обработчик раздачи содержимого.
// domain — публичный базовый URL приложения (RM_DOMAIN).
func NewDirectoryHandler(lister *dirstore.Lister, domain string) *DirectoryHandler {
	return &DirectoryHandler{lister: lister, domain: domain}
}

// storageURL возвращает публичный URL директории ресурса.
func (h *DirectoryHandler) storageURL(datasetID, resourceID string) string {
	return h.domain + "/datasets/" + datasetID + "/resources/" + resourceID + "/storage/"
}

// Manifest обрабатывает GET /datasets/{dataset_id}/resources/{resource_id}/storage/.
// Возвращает JSON-массив файлов директории с абсолютными URL.
// Пустая или отсутствующая директория — пустой массив, не ошибка.
func (h *DirectoryHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	resourceID := chi.URLParam(r, "resource_id")

	manifest, err := h.lister.List(resourceID, h.storageURL(datasetID, resourceID))
	if err != nil {
		apierrors.StorageError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

// ServeFile обрабатывает GET /datasets/{dataset_id}/resources/{resource_id}/storage/*.
// Отдаёт файл из директории ресурса по относительному пути.
// Скрытые файлы и выход за пределы директории — 404.
func (h *DirectoryHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resource_id")
	relPath := chi.URLParam(r, "*")

	f, contentType, err := h.lister.Open(resourceID, relPath)
	if err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		apierrors.StorageError(w, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

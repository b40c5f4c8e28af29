// resources.go — HTTP handlers жизненного цикла ресурсов.
// Финализация, чтение, замена, удаление, синхронизация с каталогом
// и рематериализация содержимого.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/geocat/resource-module/internal/api/errors"
	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
	"github.com/arturkryukov/geocat/resource-module/internal/service"
)

// ResourcesHandler — обработчик endpoints жизненного цикла ресурсов.
type ResourcesHandler struct {
	lifecycle *service.LifecycleService
}

// NewResourcesHandler создаёт обработчик ресурсов.
func NewResourcesHandler(lifecycle *service.LifecycleService) *ResourcesHandler {
	return &ResourcesHandler{lifecycle: lifecycle}
}

// resourceResponse — представление ресурса в API.
type resourceResponse struct {
	ID           string `json:"id"`
	CkanID       string `json:"ckan_id"`
	DatasetID    string `json:"dataset_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Language     string `json:"language"`
	ResourceType string `json:"resource_type"`
	FormatSlug   string `json:"format,omitempty"`
	Kind         string `json:"kind"`

	URL           string `json:"url,omitempty"`
	Synchronise   bool   `json:"synchronise,omitempty"`
	SyncFrequency string `json:"sync_frequency,omitempty"`
	FileSize      int64  `json:"file_size,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastUpdate time.Time `json:"last_update"`
}

// toResourceResponse переводит доменную модель в представление API.
// Внутренние пути файловой системы наружу не отдаются.
func toResourceResponse(res *model.Resource) *resourceResponse {
	resp := &resourceResponse{
		ID:           res.ID,
		CkanID:       res.CkanID,
		DatasetID:    res.DatasetID,
		Title:        res.Title,
		Description:  res.Description,
		Language:     string(res.Language),
		ResourceType: string(res.ResourceType),
		FormatSlug:   res.FormatSlug,
		Kind:         string(res.Kind()),
		CreatedAt:    res.CreatedAt,
		LastUpdate:   res.LastUpdate,
	}
	if res.Link != nil {
		resp.URL = res.Link.URL
		resp.Synchronise = res.Link.Synchronise
		resp.SyncFrequency = string(res.Link.SyncFrequency)
		resp.FileSize = res.Link.FileSize
	}
	return resp
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// Finalize обрабатывает POST /api/v1/datasets/{dataset_id}/resources.
// Создаёт ресурс из staging-талона либо из внешнего URL.
func (h *ResourcesHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")

	var input service.ResourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	user := middleware.UsernameFromContext(r.Context())
	res, err := h.lifecycle.Finalize(r.Context(), datasetID, &input, user)
	if err != nil {
		writeServiceError(w, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, toResourceResponse(res))
}

// List обрабатывает GET /api/v1/datasets/{dataset_id}/resources.
func (h *ResourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")

	resources, err := h.lifecycle.List(r.Context(), datasetID)
	if err != nil {
		writeServiceError(w, err, "")
		return
	}

	out := make([]*resourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get обрабатывает GET /api/v1/datasets/{dataset_id}/resources/{resource_id}.
func (h *ResourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	resourceID := chi.URLParam(r, "resource_id")

	res, err := h.lifecycle.Get(r.Context(), datasetID, resourceID)
	if err != nil {
		writeServiceError(w, err, resourceID)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(res))
}

// Replace обрабатывает PUT /api/v1/datasets/{dataset_id}/resources/{resource_id}.
// Обновляет метаданные; при наличии staging-талона или url заменяет содержимое.
func (h *ResourcesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	resourceID := chi.URLParam(r, "resource_id")

	var input service.ResourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	user := middleware.UsernameFromContext(r.Context())
	res, err := h.lifecycle.Replace(r.Context(), datasetID, resourceID, &input, user)
	if err != nil {
		writeServiceError(w, err, resourceID)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(res))
}

// Delete обрабатывает DELETE /api/v1/datasets/{dataset_id}/resources/{resource_id}.
func (h *ResourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	resourceID := chi.URLParam(r, "resource_id")

	user := middleware.UsernameFromContext(r.Context())
	if err := h.lifecycle.Delete(r.Context(), datasetID, resourceID, user); err != nil {
		writeServiceError(w, err, resourceID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Synchronize обрабатывает POST /api/v1/datasets/{dataset_id}/resources/{resource_id}/synchronize.
// Публикует ресурс в каталог CKAN.
func (h *ResourcesHandler) Synchronize(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	resourceID := chi.URLParam(r, "resource_id")

	user := middleware.UsernameFromContext(r.Context())
	if err := h.lifecycle.Synchronize(r.Context(), datasetID, resourceID, user); err != nil {
		writeServiceError(w, err, resourceID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synchronized"})
}

// Rematerialize обрабатывает POST /api/v1/datasets/{dataset_id}/resources/{resource_id}/rematerialize.
// Повторяет материализацию содержимого после сбоя.
func (h *ResourcesHandler) Rematerialize(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	resourceID := chi.URLParam(r, "resource_id")

	res, err := h.lifecycle.Rematerialize(r.Context(), datasetID, resourceID)
	if err != nil {
		writeServiceError(w, err, resourceID)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(res))
}

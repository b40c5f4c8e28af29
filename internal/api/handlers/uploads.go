// uploads.go — HTTP handler приёма файлов во временное хранилище.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/geocat/resource-module/internal/api/errors"
	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
	"github.com/arturkryukov/geocat/resource-module/internal/service"
)

// UploadsHandler — обработчик endpoint'а приёма файлов.
type UploadsHandler struct {
	receive *service.ReceiveService
}

// NewUploadsHandler создаёт обработчик приёма файлов.
func NewUploadsHandler(receive *service.ReceiveService) *UploadsHandler {
	return &UploadsHandler{receive: receive}
}

// Emit обрабатывает POST /api/v1/datasets/{dataset_id}/resources/{kind}/emit.
// Multipart form: file (обязательно). Kind в пути: upload, ftp или store.
// Файл попадает во временное хранилище, в ответе — staging-талон
// и предзаполненные метаданные для последующей финализации.
func (h *UploadsHandler) Emit(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	kind := model.ResourceKind(chi.URLParam(r, "kind"))

	if !kind.Valid() || !kind.FileKind() {
		apierrors.ValidationError(w, "Вид ресурса в пути должен быть upload, ftp или store")
		return
	}

	// Multipart читается в streaming-режиме: буфер только на заголовки формы
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		apierrors.ValidationError(w, "Ошибка парсинга multipart: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := h.receive.Receive(r.Context(), &service.ReceiveParams{
		DatasetID:   datasetID,
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
		User:        middleware.UsernameFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

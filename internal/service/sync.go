// sync.go — публикация ресурсов в каталог CKAN.
// Синхронизация всегда выполняется ПОСЛЕ локального коммита и никогда
// не откатывает локальное состояние: ошибка возвращается вызывающему,
// повтор — повторным вызовом Synchronize.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/ckan"
	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
	"github.com/arturkryukov/geocat/resource-module/internal/repository"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/dirstore"
)

// restrictedPublic — уровень доступа публикуемых ресурсов
// (CKAN-расширение restricted).
const restrictedPublic = `{"level": "public"}`

// listingTemplate — HTML-документ листинга директории ресурса.
// Публикуется в CKAN как содержимое ресурса вида store.
var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>URL</th><th>Type MIME</th><th>Taille</th></tr>
{{range .Entries}}<tr><td><a href="{{.URL}}">{{.URL}}</a></td><td>{{.ContentType}}</td><td>{{.Size}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// SyncService — синхронизация ресурсов с каталогом CKAN.
type SyncService struct {
	ckan     *ckan.Client
	datasets repository.DatasetRepository
	formats  *FormatService
	lister   *dirstore.Lister
	domain   string
	logger   *slog.Logger
}

// NewSyncService создаёт сервис синхронизации.
// domain — внешний URL Resource Module, под которым раздаётся содержимое.
func NewSyncService(
	ckanClient *ckan.Client,
	datasets repository.DatasetRepository,
	formats *FormatService,
	lister *dirstore.Lister,
	domain string,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		ckan:     ckanClient,
		datasets: datasets,
		formats:  formats,
		lister:   lister,
		domain:   domain,
		logger:   logger.With(slog.String("component", "sync_service")),
	}
}

// StorageURL возвращает публичный URL директории ресурса.
func (s *SyncService) StorageURL(datasetID, resourceID string) string {
	return fmt.Sprintf("%s/datasets/%s/resources/%s/storage/", s.domain, datasetID, resourceID)
}

// Publish публикует ресурс в CKAN способом, соответствующим его виду.
func (s *SyncService) Publish(ctx context.Context, res *model.Resource, actingUser string) error {
	switch res.Kind() {
	case model.KindStore:
		return s.PublishDirectoryListing(ctx, res, actingUser)
	case model.KindUpload, model.KindFtp:
		return s.PublishSingleFile(ctx, res, actingUser)
	case model.KindHref, model.KindDownload:
		return s.PublishLink(ctx, res, actingUser)
	}
	return fmt.Errorf("%w: у ресурса %s нет под-записи", ErrValidation, res.ID)
}

// PublishDirectoryListing публикует HTML-листинг директории ресурса.
// CKAN-ресурс получает документ со ссылками на файлы, его url указывает
// на директорию хранилища Resource Module.
func (s *SyncService) PublishDirectoryListing(ctx context.Context, res *model.Resource, actingUser string) error {
	dataset, apikey, err := s.credentials(ctx, res.DatasetID, actingUser)
	if err != nil {
		return err
	}

	storageURL := s.StorageURL(res.DatasetID, res.ID)
	manifest, err := s.lister.List(res.ID, storageURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var doc bytes.Buffer
	if err := listingTemplate.Execute(&doc, map[string]any{
		"Title":   res.Title,
		"Entries": manifest,
	}); err != nil {
		return fmt.Errorf("рендеринг листинга: %w", err)
	}

	params := &ckan.PublishParams{
		ResourceID:  res.CkanID,
		PackageID:   dataset.CkanID,
		Name:        res.Title,
		Description: res.Description,
		Format:      "HTML",
		Mimetype:    "text/html",
		URL:         storageURL,
		ViewType:    string(model.ViewText),
		Size:        int64(doc.Len()),
		Restricted:  restrictedPublic,
		UploadName:  "index.html",
	}

	_, err = s.ckan.PublishResource(ctx, apikey, params, bytes.NewReader(doc.Bytes()))
	return s.finish("publish_listing", res.ID, err)
}

// PublishSingleFile публикует файл ресурса как тело CKAN-ресурса.
func (s *SyncService) PublishSingleFile(ctx context.Context, res *model.Resource, actingUser string) error {
	dataset, apikey, err := s.credentials(ctx, res.DatasetID, actingUser)
	if err != nil {
		return err
	}

	format, err := s.formats.GetBySlug(ctx, res.FormatSlug)
	if err != nil {
		return err
	}

	f, err := openResourceFile(res.Link.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	mimetype := ""
	if len(format.MimeTypes) > 0 {
		mimetype = format.MimeTypes[0]
	}

	params := &ckan.PublishParams{
		ResourceID:  res.CkanID,
		PackageID:   dataset.CkanID,
		Name:        res.Title,
		Description: res.Description,
		Format:      format.CkanFormat,
		Mimetype:    mimetype,
		ViewType:    string(format.CkanView),
		Size:        res.Link.FileSize,
		Restricted:  restrictedPublic,
		UploadName:  filepath.Base(res.Link.FilePath),
	}

	_, err = s.ckan.PublishResource(ctx, apikey, params, f)
	return s.finish("publish_file", res.ID, err)
}

// PublishLink публикует внешний URL ресурса без тела файла.
func (s *SyncService) PublishLink(ctx context.Context, res *model.Resource, actingUser string) error {
	dataset, apikey, err := s.credentials(ctx, res.DatasetID, actingUser)
	if err != nil {
		return err
	}

	format := ""
	mimetype := ""
	viewType := ""
	if res.FormatSlug != "" {
		if f, err := s.formats.GetBySlug(ctx, res.FormatSlug); err == nil {
			format = f.CkanFormat
			viewType = string(f.CkanView)
			if len(f.MimeTypes) > 0 {
				mimetype = f.MimeTypes[0]
			}
		}
	}

	params := &ckan.PublishParams{
		ResourceID:  res.CkanID,
		PackageID:   dataset.CkanID,
		Name:        res.Title,
		Description: res.Description,
		Format:      format,
		Mimetype:    mimetype,
		URL:         res.Link.URL,
		ViewType:    viewType,
		Restricted:  restrictedPublic,
	}

	_, err = s.ckan.PublishResource(ctx, apikey, params, nil)
	return s.finish("publish_link", res.ID, err)
}

// openResourceFile открывает опубликованный файл ресурса.
func openResourceFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return f, nil
}

// Delete удаляет CKAN-ресурс. Используется при удалении локального ресурса;
// вызывающий код трактует ошибку как некритичную.
func (s *SyncService) Delete(ctx context.Context, res *model.Resource, actingUser string) error {
	_, apikey, err := s.credentials(ctx, res.DatasetID, actingUser)
	if err != nil {
		return err
	}

	err = s.ckan.DeleteResource(ctx, apikey, res.CkanID)
	return s.finish("delete", res.ID, err)
}

// credentials возвращает набор данных и apikey действующего редактора.
// При пустом actingUser используется редактор набора данных.
func (s *SyncService) credentials(ctx context.Context, datasetID, actingUser string) (*model.Dataset, string, error) {
	dataset, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: набор данных %s", ErrRecordNotFound, datasetID)
		}
		return nil, "", err
	}

	username := actingUser
	if username == "" {
		username = dataset.EditorUsername
	}

	user, err := s.ckan.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, ckan.ErrCredentialNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrCredentialNotFound, username)
		}
		if errors.Is(err, ckan.ErrUnavailable) {
			return nil, "", fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		return nil, "", err
	}

	return dataset, user.Apikey, nil
}

// finish обновляет метрики и переводит ошибки клиента CKAN в sentinel-ошибки сервиса.
func (s *SyncService) finish(operation, resourceID string, err error) error {
	if err == nil {
		middleware.CatalogRequestsTotal.WithLabelValues(operation, "ok").Inc()
		s.logger.Info("Синхронизация с каталогом выполнена",
			slog.String("operation", operation),
			slog.String("resource_id", resourceID),
		)
		return nil
	}

	middleware.CatalogRequestsTotal.WithLabelValues(operation, "error").Inc()
	if errors.Is(err, ckan.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return err
}

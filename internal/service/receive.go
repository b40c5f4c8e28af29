// receive.go — приём загружаемых файлов во временное хранилище.
// Файл валидируется (размер, MIME), сохраняется в staging-каталог,
// для него создаётся shell под-записи и staging-запись в Redis.
// Привязка к ресурсу происходит позже, при финализации.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
	"github.com/arturkryukov/geocat/resource-module/internal/repository"
	"github.com/arturkryukov/geocat/resource-module/internal/staging"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/stagefs"
)

// ReceiveParams — входные данные приёма файла.
type ReceiveParams struct {
	// DatasetID — UUID набора данных
	DatasetID string
	// Kind — вид будущего ресурса (upload, ftp, store)
	Kind model.ResourceKind
	// Filename — оригинальное имя файла
	Filename string
	// ContentType — заявленный MIME-тип
	ContentType string
	// Size — заявленный размер в байтах
	Size int64
	// Body — поток содержимого файла
	Body io.Reader
	// User — имя пользователя, выполняющего загрузку
	User string
}

// ReceiveResult — талон staging и предзаполненные метаданные ресурса.
type ReceiveResult struct {
	// Token — ключ staging-записи, предъявляется при финализации
	Token string `json:"staging_key"`
	// Title — предзаполненное название (имя файла)
	Title string `json:"title"`
	// Language — предзаполненный язык
	Language model.Language `json:"language"`
	// ResourceType — предзаполненный тип
	ResourceType model.ResourceType `json:"resource_type"`
	// FormatSlug — подобранный формат
	FormatSlug string `json:"format"`
	// Size — фактический размер сохранённого файла
	Size int64 `json:"size"`
}

// ReceiveService — приём файлов во временное хранилище.
type ReceiveService struct {
	stagefs   *stagefs.Store
	staging   *staging.Store
	formats   *FormatService
	resources repository.ResourceRepository
	datasets  repository.DatasetRepository
	maxSize   int64
	logger    *slog.Logger
}

// NewReceiveService создаёт сервис приёма файлов.
func NewReceiveService(
	stagefsStore *stagefs.Store,
	stagingStore *staging.Store,
	formats *FormatService,
	resources repository.ResourceRepository,
	datasets repository.DatasetRepository,
	maxSize int64,
	logger *slog.Logger,
) *ReceiveService {
	return &ReceiveService{
		stagefs:   stagefsStore,
		staging:   stagingStore,
		formats:   formats,
		resources: resources,
		datasets:  datasets,
		maxSize:   maxSize,
		logger:    logger.With(slog.String("component", "receive_service")),
	}
}

// Receive валидирует и принимает файл. Валидация выполняется ДО записи
// на диск: при отказе ни файла, ни записей не остаётся.
func (s *ReceiveService) Receive(ctx context.Context, params *ReceiveParams) (*ReceiveResult, error) {
	if !params.Kind.FileKind() {
		return nil, fmt.Errorf("%w: вид %q не принимает файлы", ErrValidation, params.Kind)
	}
	if params.Filename == "" {
		return nil, fmt.Errorf("%w: не указано имя файла", ErrValidation)
	}

	// Набор данных обязан существовать
	if _, err := s.datasets.GetByID(ctx, params.DatasetID); err != nil {
		if err == repository.ErrNotFound {
			return nil, fmt.Errorf("%w: набор данных %s", ErrRecordNotFound, params.DatasetID)
		}
		return nil, err
	}

	// Заявленный размер проверяется до чтения потока
	if params.Size > s.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, params.Size, s.maxSize)
	}

	// MIME без параметров (charset и т.п.)
	contentType := params.ContentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = parsed
	}

	format, err := s.formats.MatchByMIME(ctx, contentType)
	if err != nil {
		return nil, err
	}

	// Сохраняем поток с жёстким пределом: LimitReader на байт больше
	// допустимого, чтобы отличить ровно предел от превышения
	limited := io.LimitReader(params.Body, s.maxSize+1)
	saved, err := s.stagefs.Save(limited, params.Filename, params.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if saved.Size > s.maxSize {
		s.stagefs.Remove(saved.Path) //nolint:errcheck // лучший из возможных откатов
		return nil, fmt.Errorf("%w: фактический размер превышает %d", ErrPayloadTooLarge, s.maxSize)
	}

	// Shell под-записи: resource_id заполнится при финализации
	link := &model.ResourceLink{
		ID:       uuid.NewString(),
		Kind:     params.Kind,
		FilePath: saved.Path,
		FileSize: saved.Size,
	}
	if err := s.resources.CreateLink(ctx, link); err != nil {
		s.stagefs.Remove(saved.Path) //nolint:errcheck
		return nil, err
	}

	entry := &model.StagingEntry{
		User:         params.User,
		ContentType:  contentType,
		Name:         params.Filename,
		Size:         saved.Size,
		Filename:     saved.Path,
		RelatedModel: params.Kind,
		RelatedPK:    link.ID,
	}
	token, err := s.staging.Create(ctx, entry)
	if err != nil {
		s.stagefs.Remove(saved.Path) //nolint:errcheck
		middleware.StagedFilesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	middleware.StagedFilesTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Файл принят во временное хранилище",
		slog.String("token", token),
		slog.String("filename", params.Filename),
		slog.String("kind", string(params.Kind)),
		slog.Int64("size", saved.Size),
		slog.String("user", params.User),
	)

	return &ReceiveResult{
		Token:        token,
		Title:        titleFromFilename(params.Filename),
		Language:     model.LangFrench,
		ResourceType: model.TypeRaw,
		FormatSlug:   format.Slug,
		Size:         saved.Size,
	}, nil
}

// titleFromFilename строит предзаполненное название из имени файла.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if name := base[:len(base)-len(ext)]; name != "" {
		return name
	}
	return base
}

// lifecycle.go — жизненный цикл ресурсов: финализация, замена содержимого,
// рематериализация, синхронизация и удаление.
//
// Схема двухфазного коммита: реляционные изменения выполняются в одной
// транзакции (TxRunner), файловые мутации — после коммита, упорядоченно
// и идемпотентно. Ошибка материализации не откатывает запись: ресурс
// остаётся, повтор выполняется через Rematerialize. Вызовы каталога —
// только после локального коммита.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
	"github.com/arturkryukov/geocat/resource-module/internal/repository"
	"github.com/arturkryukov/geocat/resource-module/internal/staging"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/dirstore"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/stagefs"
)

// ResourceInput — метаданные и источник содержимого ресурса.
// Для файловых видов задаётся Token (талон staging), для видов
// href/download — Kind, URL и параметры синхронизации.
type ResourceInput struct {
	// Token — ключ staging-записи (upload, ftp, store)
	Token string `json:"staging_key,omitempty"`
	// Kind — вид ресурса для href/download
	Kind model.ResourceKind `json:"kind,omitempty"`
	// URL — внешний URL (href, download)
	URL string `json:"url,omitempty"`
	// Synchronise — включена ли синхронизация с внешним URL
	Synchronise bool `json:"synchronise,omitempty"`
	// SyncFrequency — частота синхронизации
	SyncFrequency model.SyncFrequency `json:"sync_frequency,omitempty"`

	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	Language     model.Language     `json:"language,omitempty"`
	ResourceType model.ResourceType `json:"resource_type,omitempty"`
	FormatSlug   string             `json:"format,omitempty"`
}

// LifecycleService — операции жизненного цикла ресурсов.
type LifecycleService struct {
	txRunner  *repository.TxRunner
	resources repository.ResourceRepository
	datasets  repository.DatasetRepository
	staging   *staging.Store
	stagefs   *stagefs.Store
	mat       *dirstore.Materializer
	sync      *SyncService
	locks     *resourceLocks
	uploadDir string
	logger    *slog.Logger
}

// NewLifecycleService создаёт сервис жизненного цикла.
func NewLifecycleService(
	txRunner *repository.TxRunner,
	resources repository.ResourceRepository,
	datasets repository.DatasetRepository,
	stagingStore *staging.Store,
	stagefsStore *stagefs.Store,
	mat *dirstore.Materializer,
	syncService *SyncService,
	uploadDir string,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		txRunner:  txRunner,
		resources: resources,
		datasets:  datasets,
		staging:   stagingStore,
		stagefs:   stagefsStore,
		mat:       mat,
		sync:      syncService,
		locks:     newResourceLocks(),
		uploadDir: uploadDir,
		logger:    logger.With(slog.String("component", "lifecycle_service")),
	}
}

// Get возвращает ресурс набора данных.
func (s *LifecycleService) Get(ctx context.Context, datasetID, resourceID string) (*model.Resource, error) {
	res, err := s.resources.GetByID(ctx, datasetID, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: ресурс %s", ErrRecordNotFound, resourceID)
	}
	return res, err
}

// List возвращает все ресурсы набора данных.
func (s *LifecycleService) List(ctx context.Context, datasetID string) ([]*model.Resource, error) {
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: набор данных %s", ErrRecordNotFound, datasetID)
		}
		return nil, err
	}
	return s.resources.ListByDataset(ctx, datasetID)
}

// Finalize создаёт ресурс из staging-записи либо из внешнего URL.
// Реляционные изменения — в одной транзакции; материализация файлов —
// после коммита. При ошибке материализации возвращается
// MaterializationError с идентификатором созданного ресурса.
func (s *LifecycleService) Finalize(ctx context.Context, datasetID string, input *ResourceInput, actingUser string) (*model.Resource, error) {
	if _, err := s.datasets.GetByID(ctx, datasetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: набор данных %s", ErrRecordNotFound, datasetID)
		}
		return nil, err
	}

	var entry *model.StagingEntry
	var kind model.ResourceKind

	if input.Token != "" {
		var err error
		entry, err = s.retrieveStaging(ctx, input.Token)
		if err != nil {
			return nil, err
		}
		kind = entry.RelatedModel

		// Архив вида store валидируется до создания записей:
		// битый или неподдерживаемый архив не оставляет ни строк, ни каталога
		if kind == model.KindStore {
			if err := s.validateArchive(entry); err != nil {
				return nil, err
			}
		}
	} else {
		kind = input.Kind
		if kind != model.KindHref && kind != model.KindDownload {
			return nil, fmt.Errorf("%w: без талона staging допустимы только виды href и download", ErrValidation)
		}
		if input.URL == "" {
			return nil, fmt.Errorf("%w: не указан url", ErrValidation)
		}
	}

	res := s.buildResource(datasetID, kind, input, entry)

	var durablePath string
	err := s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewResourceRepository(tx)
		if err := repo.Create(ctx, res); err != nil {
			return err
		}

		if entry != nil {
			durablePath = s.durablePath(res.ID, entry.Name)
			if err := repo.AttachLink(ctx, kind, entry.RelatedPK, res.ID); err != nil {
				return err
			}
			link := &model.ResourceLink{
				ID:       entry.RelatedPK,
				Kind:     kind,
				FilePath: durablePath,
				FileSize: entry.Size,
			}
			if err := repo.UpdateLink(ctx, link); err != nil {
				return err
			}
			res.Link = &model.ResourceLink{
				ID: entry.RelatedPK, ResourceID: res.ID, Kind: kind,
				FilePath: durablePath, FileSize: entry.Size,
			}
			return nil
		}

		link := &model.ResourceLink{
			ID:            uuid.NewString(),
			ResourceID:    res.ID,
			Kind:          kind,
			URL:           input.URL,
			Synchronise:   input.Synchronise,
			SyncFrequency: syncFrequencyOrDefault(input.SyncFrequency),
		}
		if err := repo.CreateLink(ctx, link); err != nil {
			return err
		}
		res.Link = link
		return nil
	})
	if err != nil {
		middleware.ResourceOperationsTotal.WithLabelValues("finalize", "error").Inc()
		return nil, err
	}

	// Staging-запись помечается идентификатором ресурса; истечение к этому
	// моменту не критично — файл уже учтён
	if entry != nil {
		entry.ResourcePK = res.ID
		if err := s.staging.Update(ctx, input.Token, entry); err != nil {
			s.logger.Warn("Не удалось обновить staging-запись после финализации",
				slog.String("token", input.Token),
				slog.String("error", err.Error()),
			)
		}

		if err := s.materialize(res.ID, kind, entry.Filename, durablePath, entry.ContentType, entry.Size); err != nil {
			middleware.ResourceOperationsTotal.WithLabelValues("finalize", "error").Inc()
			return nil, &MaterializationError{ResourceID: res.ID, Err: err}
		}
	}

	middleware.ResourceOperationsTotal.WithLabelValues("finalize", "ok").Inc()
	s.logger.Info("Ресурс создан",
		slog.String("resource_id", res.ID),
		slog.String("dataset_id", datasetID),
		slog.String("kind", string(kind)),
		slog.String("user", actingUser),
	)

	return res, nil
}

// Replace обновляет метаданные и при необходимости заменяет содержимое
// ресурса. Замены сериализуются поресурсной блокировкой. Старый файл
// удаляется только после надёжного размещения нового и только если
// пути различаются.
func (s *LifecycleService) Replace(ctx context.Context, datasetID, resourceID string, input *ResourceInput, actingUser string) (*model.Resource, error) {
	unlock := s.locks.Lock(resourceID)
	defer unlock()

	existing, err := s.Get(ctx, datasetID, resourceID)
	if err != nil {
		return nil, err
	}
	oldLink := existing.Link

	var entry *model.StagingEntry
	var newKind model.ResourceKind

	switch {
	case input.Token != "":
		entry, err = s.retrieveStaging(ctx, input.Token)
		if err != nil {
			return nil, err
		}
		newKind = entry.RelatedModel
		if newKind == model.KindStore {
			if err := s.validateArchive(entry); err != nil {
				return nil, err
			}
		}
	case input.URL != "":
		newKind = input.Kind
		if newKind == "" && oldLink != nil && !oldLink.Kind.FileKind() {
			newKind = oldLink.Kind
		}
		if newKind != model.KindHref && newKind != model.KindDownload {
			return nil, fmt.Errorf("%w: url допустим только для видов href и download", ErrValidation)
		}
	}

	applyMetadata(existing, input)

	var durablePath string
	err = s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewResourceRepository(tx)
		if err := repo.Update(ctx, existing); err != nil {
			return err
		}

		switch {
		case entry != nil:
			durablePath = s.durablePath(resourceID, entry.Name)
			if err := repo.DeleteLinkByResource(ctx, resourceID); err != nil {
				return err
			}
			if err := repo.AttachLink(ctx, newKind, entry.RelatedPK, resourceID); err != nil {
				return err
			}
			link := &model.ResourceLink{
				ID:       entry.RelatedPK,
				Kind:     newKind,
				FilePath: durablePath,
				FileSize: entry.Size,
			}
			return repo.UpdateLink(ctx, link)

		case input.URL != "":
			if oldLink != nil && oldLink.Kind == newKind {
				link := &model.ResourceLink{
					ID:            oldLink.ID,
					Kind:          newKind,
					URL:           input.URL,
					Synchronise:   input.Synchronise,
					SyncFrequency: syncFrequencyOrDefault(input.SyncFrequency),
				}
				return repo.UpdateLink(ctx, link)
			}
			if err := repo.DeleteLinkByResource(ctx, resourceID); err != nil {
				return err
			}
			return repo.CreateLink(ctx, &model.ResourceLink{
				ID:            uuid.NewString(),
				ResourceID:    resourceID,
				Kind:          newKind,
				URL:           input.URL,
				Synchronise:   input.Synchronise,
				SyncFrequency: syncFrequencyOrDefault(input.SyncFrequency),
			})
		}
		// Обновление только метаданных
		return nil
	})
	if err != nil {
		middleware.ResourceOperationsTotal.WithLabelValues("replace", "error").Inc()
		return nil, err
	}

	if entry != nil {
		entry.ResourcePK = resourceID
		if err := s.staging.Update(ctx, input.Token, entry); err != nil {
			s.logger.Warn("Не удалось обновить staging-запись после замены",
				slog.String("token", input.Token),
				slog.String("error", err.Error()),
			)
		}

		if err := s.materialize(resourceID, newKind, entry.Filename, durablePath, entry.ContentType, entry.Size); err != nil {
			middleware.ResourceOperationsTotal.WithLabelValues("replace", "error").Inc()
			return nil, &MaterializationError{ResourceID: resourceID, Err: err}
		}

		// Старое содержимое убирается после успешного размещения нового
		s.cleanupReplaced(resourceID, oldLink, newKind, durablePath)
	} else if input.URL != "" && oldLink != nil && oldLink.Kind.FileKind() {
		// Файловый вид заменён ссылкой: файлы больше не нужны
		s.cleanupReplaced(resourceID, oldLink, newKind, "")
	}

	middleware.ResourceOperationsTotal.WithLabelValues("replace", "ok").Inc()
	return s.Get(ctx, datasetID, resourceID)
}

// Rematerialize повторяет материализацию содержимого из сохранённой
// под-записи. Процедура восстановления после сбоя между коммитом
// и файловыми мутациями.
func (s *LifecycleService) Rematerialize(ctx context.Context, datasetID, resourceID string) (*model.Resource, error) {
	unlock := s.locks.Lock(resourceID)
	defer unlock()

	res, err := s.Get(ctx, datasetID, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Link == nil || !res.Kind().FileKind() {
		return nil, fmt.Errorf("%w: ресурс %s не хранит файлов", ErrValidation, resourceID)
	}

	if _, err := os.Stat(res.Link.FilePath); err != nil {
		middleware.ResourceOperationsTotal.WithLabelValues("rematerialize", "error").Inc()
		return nil, fmt.Errorf("%w: файл ресурса %s отсутствует: %v", ErrStorage, resourceID, err)
	}

	if res.Kind() == model.KindStore {
		detected, err := mimetype.DetectFile(res.Link.FilePath)
		if err != nil {
			middleware.ResourceOperationsTotal.WithLabelValues("rematerialize", "error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if err := s.extract(res.ID, res.Link.FilePath, detected.String()); err != nil {
			middleware.ResourceOperationsTotal.WithLabelValues("rematerialize", "error").Inc()
			return nil, &MaterializationError{ResourceID: resourceID, Err: err}
		}
	}

	middleware.ResourceOperationsTotal.WithLabelValues("rematerialize", "ok").Inc()
	s.logger.Info("Содержимое ресурса рематериализовано",
		slog.String("resource_id", resourceID),
	)
	return res, nil
}

// Synchronize публикует ресурс в каталог. Повторов нет: при ошибке
// вызывающая сторона повторяет вызов сама.
func (s *LifecycleService) Synchronize(ctx context.Context, datasetID, resourceID, actingUser string) error {
	res, err := s.Get(ctx, datasetID, resourceID)
	if err != nil {
		return err
	}
	return s.sync.Publish(ctx, res, actingUser)
}

// Delete удаляет ресурс. Локальное удаление первично: строки — в транзакции,
// файлы — после коммита, удаление из каталога — в последнюю очередь и
// только best-effort (ошибка каталога логируется и не блокирует).
func (s *LifecycleService) Delete(ctx context.Context, datasetID, resourceID, actingUser string) error {
	unlock := s.locks.Lock(resourceID)
	defer unlock()

	res, err := s.Get(ctx, datasetID, resourceID)
	if err != nil {
		return err
	}

	err = s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		return repository.NewResourceRepository(tx).Delete(ctx, resourceID)
	})
	if err != nil {
		middleware.ResourceOperationsTotal.WithLabelValues("delete", "error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: ресурс %s", ErrRecordNotFound, resourceID)
		}
		return err
	}

	// Файлы — best-effort после коммита
	if res.Link != nil && res.Link.Kind.FileKind() {
		middleware.StorageBytes.Sub(float64(res.Link.FileSize))
	}
	if err := os.RemoveAll(filepath.Join(s.uploadDir, resourceID)); err != nil {
		s.logger.Warn("Не удалось удалить файлы ресурса",
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.mat.Flush(resourceID); err != nil {
		s.logger.Warn("Не удалось удалить каталог ресурса",
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
	}

	// Каталог — best-effort, локальное удаление уже состоялось
	if err := s.sync.Delete(ctx, res, actingUser); err != nil {
		s.logger.Warn("Не удалось удалить ресурс из каталога",
			slog.String("resource_id", resourceID),
			slog.String("ckan_id", res.CkanID),
			slog.String("error", err.Error()),
		)
	}

	middleware.ResourceOperationsTotal.WithLabelValues("delete", "ok").Inc()
	s.logger.Info("Ресурс удалён",
		slog.String("resource_id", resourceID),
		slog.String("dataset_id", datasetID),
		slog.String("user", actingUser),
	)
	return nil
}

// retrieveStaging возвращает staging-запись по талону.
func (s *LifecycleService) retrieveStaging(ctx context.Context, token string) (*model.StagingEntry, error) {
	entry, err := s.staging.Retrieve(ctx, token)
	if errors.Is(err, staging.ErrExpiredOrMissing) {
		return nil, fmt.Errorf("%w: талон %s", ErrStagingExpiredOrMissing, token)
	}
	if err != nil {
		return nil, err
	}
	if !s.stagefs.Exists(entry.Filename) {
		return nil, fmt.Errorf("%w: staged-файл %s отсутствует", ErrStorage, entry.Filename)
	}
	return entry, nil
}

// validateArchive проверяет архив staged-файла до создания записей.
func (s *LifecycleService) validateArchive(entry *model.StagingEntry) error {
	err := s.mat.ValidateArchive(entry.Filename, entry.ContentType)
	switch {
	case errors.Is(err, dirstore.ErrFormatNotSupported):
		return fmt.Errorf("%w: %s", ErrFormatNotSupported, entry.ContentType)
	case errors.Is(err, dirstore.ErrArchiveInvalid):
		return fmt.Errorf("%w: %s", ErrArchiveInvalid, entry.Name)
	}
	return err
}

// buildResource собирает новую запись ресурса с предзаполнением по умолчанию.
func (s *LifecycleService) buildResource(datasetID string, kind model.ResourceKind, input *ResourceInput, entry *model.StagingEntry) *model.Resource {
	res := &model.Resource{
		ID:           uuid.NewString(),
		CkanID:       uuid.NewString(),
		DatasetID:    datasetID,
		Title:        input.Title,
		Description:  input.Description,
		Language:     input.Language,
		ResourceType: input.ResourceType,
		FormatSlug:   input.FormatSlug,
	}

	if res.Title == "" {
		if entry != nil {
			res.Title = titleFromFilename(entry.Name)
		} else {
			res.Title = input.URL
		}
	}
	if !res.Language.Valid() {
		res.Language = model.LangFrench
	}
	if !res.ResourceType.Valid() {
		if kind == model.KindHref || kind == model.KindDownload {
			res.ResourceType = model.TypeService
		} else {
			res.ResourceType = model.TypeRaw
		}
	}
	return res
}

// durablePath возвращает долговременный путь файла ресурса.
func (s *LifecycleService) durablePath(resourceID, originalName string) string {
	return filepath.Join(s.uploadDir, resourceID, filepath.Base(originalName))
}

// materialize размещает staged-файл по долговременному пути и для вида
// store распаковывает архив в каталог ресурса.
func (s *LifecycleService) materialize(resourceID string, kind model.ResourceKind, stagedPath, durablePath, contentType string, size int64) error {
	if err := s.stagefs.Promote(stagedPath, durablePath); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	middleware.StorageBytes.Add(float64(size))
	if kind == model.KindStore {
		return s.extract(resourceID, durablePath, contentType)
	}
	return nil
}

// extract распаковывает архив ресурса с предварительной очисткой каталога.
func (s *LifecycleService) extract(resourceID, archivePath, contentType string) error {
	err := s.mat.ExtractArchive(resourceID, archivePath, contentType, true)
	switch {
	case errors.Is(err, dirstore.ErrFormatNotSupported):
		return fmt.Errorf("%w: %s", ErrFormatNotSupported, contentType)
	case errors.Is(err, dirstore.ErrArchiveInvalid):
		return fmt.Errorf("%w: %s", ErrArchiveInvalid, archivePath)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// cleanupReplaced убирает прежнее содержимое после успешной замены.
func (s *LifecycleService) cleanupReplaced(resourceID string, oldLink *model.ResourceLink, newKind model.ResourceKind, newPath string) {
	if oldLink == nil {
		return
	}

	if oldLink.Kind.FileKind() && oldLink.FilePath != "" {
		middleware.StorageBytes.Sub(float64(oldLink.FileSize))
		if oldLink.FilePath != newPath {
			if err := os.Remove(oldLink.FilePath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("Не удалось удалить прежний файл ресурса",
					slog.String("resource_id", resourceID),
					slog.String("path", oldLink.FilePath),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	// Каталог прежнего вида store чистится, если новый вид — не store:
	// для store он уже перезаписан распаковкой с flush
	if oldLink.Kind == model.KindStore && newKind != model.KindStore {
		if err := s.mat.Flush(resourceID); err != nil {
			s.logger.Warn("Не удалось очистить каталог ресурса после замены",
				slog.String("resource_id", resourceID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// applyMetadata накладывает непустые метаданные из input на ресурс.
func applyMetadata(res *model.Resource, input *ResourceInput) {
	if input.Title != "" {
		res.Title = input.Title
	}
	if input.Description != "" {
		res.Description = input.Description
	}
	if input.Language.Valid() {
		res.Language = input.Language
	}
	if input.ResourceType.Valid() {
		res.ResourceType = input.ResourceType
	}
	if input.FormatSlug != "" {
		res.FormatSlug = input.FormatSlug
	}
}

// syncFrequencyOrDefault возвращает частоту либо значение по умолчанию.
func syncFrequencyOrDefault(f model.SyncFrequency) model.SyncFrequency {
	if f.Valid() {
		return f
	}
	return "never"
}

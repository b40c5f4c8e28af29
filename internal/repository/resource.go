package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// ResourceRepository — CRUD ресурсов и их под-записей.
// Под-записи лежат в пяти таблицах (по одной на вид); инвариант
// "ровно одна под-запись на ресурс" обеспечивается частичными
// уникальными индексами и кодом жизненного цикла.
type ResourceRepository interface {
	// Create создаёт запись ресурса.
	Create(ctx context.Context, res *model.Resource) error
	// GetByID возвращает ресурс с под-записью.
	GetByID(ctx context.Context, datasetID, id string) (*model.Resource, error)
	// ListByDataset возвращает ресурсы набора данных с под-записями.
	ListByDataset(ctx context.Context, datasetID string) ([]*model.Resource, error)
	// Update обновляет метаданные ресурса и проставляет last_update.
	Update(ctx context.Context, res *model.Resource) error
	// Delete удаляет ресурс; под-записи удаляются каскадом.
	Delete(ctx context.Context, id string) error

	// CreateLink создаёт под-запись. Пустой ResourceID допустим:
	// под-записи файловых видов создаются до финализации ресурса.
	CreateLink(ctx context.Context, link *model.ResourceLink) error
	// AttachLink привязывает существующую под-запись к ресурсу.
	AttachLink(ctx context.Context, kind model.ResourceKind, linkID, resourceID string) error
	// UpdateLink обновляет полезную нагрузку под-записи.
	UpdateLink(ctx context.Context, link *model.ResourceLink) error
	// GetLinkByResource возвращает единственную под-запись ресурса.
	GetLinkByResource(ctx context.Context, resourceID string) (*model.ResourceLink, error)
	// DeleteLinkByResource удаляет под-записи ресурса во всех таблицах видов.
	DeleteLinkByResource(ctx context.Context, resourceID string) error
}

// resourceRepo — реализация ResourceRepository.
type resourceRepo struct {
	db DBTX
}

// NewResourceRepository создаёт репозиторий ресурсов.
func NewResourceRepository(db DBTX) ResourceRepository {
	return &resourceRepo{db: db}
}

func (r *resourceRepo) Create(ctx context.Context, res *model.Resource) error {
	query := `
		INSERT INTO resources (id, ckan_id, dataset_id, title, description,
			language, resource_type, format_slug)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, last_update`

	err := r.db.QueryRow(ctx, query,
		res.ID, res.CkanID, res.DatasetID, res.Title, res.Description,
		res.Language, res.ResourceType, res.FormatSlug,
	).Scan(&res.CreatedAt, &res.LastUpdate)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ресурс %s", ErrConflict, res.ID)
		}
		return fmt.Errorf("ошибка создания ресурса: %w", err)
	}
	return nil
}

func (r *resourceRepo) GetByID(ctx context.Context, datasetID, id string) (*model.Resource, error) {
	query := `
		SELECT id, ckan_id, dataset_id, title, description,
			language, resource_type, format_slug, created_at, last_update
		FROM resources
		WHERE id = $1 AND dataset_id = $2`

	res := &model.Resource{}
	err := r.db.QueryRow(ctx, query, id, datasetID).Scan(
		&res.ID, &res.CkanID, &res.DatasetID, &res.Title, &res.Description,
		&res.Language, &res.ResourceType, &res.FormatSlug,
		&res.CreatedAt, &res.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ресурса: %w", err)
	}

	link, err := r.GetLinkByResource(ctx, res.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	res.Link = link

	return res, nil
}

func (r *resourceRepo) ListByDataset(ctx context.Context, datasetID string) ([]*model.Resource, error) {
	query := `
		SELECT id, ckan_id, dataset_id, title, description,
			language, resource_type, format_slug, created_at, last_update
		FROM resources
		WHERE dataset_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ресурсов: %w", err)
	}
	defer rows.Close()

	var resources []*model.Resource
	for rows.Next() {
		res := &model.Resource{}
		if err := rows.Scan(
			&res.ID, &res.CkanID, &res.DatasetID, &res.Title, &res.Description,
			&res.Language, &res.ResourceType, &res.FormatSlug,
			&res.CreatedAt, &res.LastUpdate,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки ресурса: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода ресурсов: %w", err)
	}

	for _, res := range resources {
		link, err := r.GetLinkByResource(ctx, res.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		res.Link = link
	}

	return resources, nil
}

func (r *resourceRepo) Update(ctx context.Context, res *model.Resource) error {
	query := `
		UPDATE resources
		SET title = $2, description = $3, language = $4,
			resource_type = $5, format_slug = $6, last_update = now()
		WHERE id = $1
		RETURNING last_update`

	err := r.db.QueryRow(ctx, query,
		res.ID, res.Title, res.Description, res.Language,
		res.ResourceType, res.FormatSlug,
	).Scan(&res.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления ресурса: %w", err)
	}
	return nil
}

func (r *resourceRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления ресурса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// linkTable возвращает имя таблицы под-записей для вида.
func linkTable(kind model.ResourceKind) (string, error) {
	switch kind {
	case model.KindHref:
		return "resource_href", nil
	case model.KindDownload:
		return "resource_download", nil
	case model.KindUpload:
		return "resource_upload", nil
	case model.KindFtp:
		return "resource_ftp", nil
	case model.KindStore:
		return "resource_store", nil
	}
	return "", fmt.Errorf("неизвестный вид ресурса: %q", kind)
}

// nullable преобразует пустой UUID в NULL.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func (r *resourceRepo) CreateLink(ctx context.Context, link *model.ResourceLink) error {
	table, err := linkTable(link.Kind)
	if err != nil {
		return err
	}

	if link.Kind.FileKind() {
		query := fmt.Sprintf(`
			INSERT INTO %s (id, resource_id, file_path, file_size)
			VALUES ($1, $2, $3, $4)`, table)
		_, err = r.db.Exec(ctx, query, link.ID, nullable(link.ResourceID), link.FilePath, link.FileSize)
	} else {
		query := fmt.Sprintf(`
			INSERT INTO %s (id, resource_id, url, synchronise, sync_frequency)
			VALUES ($1, $2, $3, $4, $5)`, table)
		_, err = r.db.Exec(ctx, query, link.ID, nullable(link.ResourceID), link.URL, link.Synchronise, link.SyncFrequency)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: под-запись вида %s для ресурса %s", ErrConflict, link.Kind, link.ResourceID)
		}
		return fmt.Errorf("ошибка создания под-записи %s: %w", link.Kind, err)
	}
	return nil
}

func (r *resourceRepo) AttachLink(ctx context.Context, kind model.ResourceKind, linkID, resourceID string) error {
	table, err := linkTable(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET resource_id = $2 WHERE id = $1`, table)
	tag, err := r.db.Exec(ctx, query, linkID, resourceID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: у ресурса %s уже есть под-запись вида %s", ErrConflict, resourceID, kind)
		}
		return fmt.Errorf("ошибка привязки под-записи %s: %w", linkID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resourceRepo) UpdateLink(ctx context.Context, link *model.ResourceLink) error {
	table, err := linkTable(link.Kind)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag
	if link.Kind.FileKind() {
		query := fmt.Sprintf(`UPDATE %s SET file_path = $2, file_size = $3 WHERE id = $1`, table)
		tag, err = r.db.Exec(ctx, query, link.ID, link.FilePath, link.FileSize)
	} else {
		query := fmt.Sprintf(`UPDATE %s SET url = $2, synchronise = $3, sync_frequency = $4 WHERE id = $1`, table)
		tag, err = r.db.Exec(ctx, query, link.ID, link.URL, link.Synchronise, link.SyncFrequency)
	}
	if err != nil {
		return fmt.Errorf("ошибка обновления под-записи %s: %w", link.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resourceRepo) GetLinkByResource(ctx context.Context, resourceID string) (*model.ResourceLink, error) {
	// Виды с URL
	for _, kind := range []model.ResourceKind{model.KindHref, model.KindDownload} {
		table, _ := linkTable(kind)
		query := fmt.Sprintf(`
			SELECT id, url, synchronise, sync_frequency
			FROM %s WHERE resource_id = $1`, table)

		link := &model.ResourceLink{ResourceID: resourceID, Kind: kind}
		err := r.db.QueryRow(ctx, query, resourceID).Scan(
			&link.ID, &link.URL, &link.Synchronise, &link.SyncFrequency,
		)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ошибка получения под-записи %s: %w", kind, err)
		}
	}

	// Виды с файлом
	for _, kind := range []model.ResourceKind{model.KindUpload, model.KindFtp, model.KindStore} {
		table, _ := linkTable(kind)
		query := fmt.Sprintf(`
			SELECT id, file_path, file_size
			FROM %s WHERE resource_id = $1`, table)

		link := &model.ResourceLink{ResourceID: resourceID, Kind: kind}
		err := r.db.QueryRow(ctx, query, resourceID).Scan(
			&link.ID, &link.FilePath, &link.FileSize,
		)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ошибка получения под-записи %s: %w", kind, err)
		}
	}

	return nil, ErrNotFound
}

func (r *resourceRepo) DeleteLinkByResource(ctx context.Context, resourceID string) error {
	for _, kind := range []model.ResourceKind{
		model.KindHref, model.KindDownload, model.KindUpload, model.KindFtp, model.KindStore,
	} {
		table, _ := linkTable(kind)
		query := fmt.Sprintf(`DELETE FROM %s WHERE resource_id = $1`, table)
		if _, err := r.db.Exec(ctx, query, resourceID); err != nil {
			return fmt.Errorf("ошибка удаления под-записи %s: %w", kind, err)
		}
	}
	return nil
}

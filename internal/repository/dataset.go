package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// DatasetRepository — доступ к записям наборов данных.
// Наборы данных ведёт соседний модуль каталога; здесь они читаются
// для привязки ресурсов, Upsert нужен для синхронизации и тестов.
type DatasetRepository interface {
	// GetByID возвращает набор данных по UUID.
	GetByID(ctx context.Context, id string) (*model.Dataset, error)
	// Upsert создаёт или обновляет запись набора данных.
	Upsert(ctx context.Context, ds *model.Dataset) error
}

type datasetRepo struct {
	db DBTX
}

// NewDatasetRepository создаёт репозиторий наборов данных.
func NewDatasetRepository(db DBTX) DatasetRepository {
	return &datasetRepo{db: db}
}

func (r *datasetRepo) GetByID(ctx context.Context, id string) (*model.Dataset, error) {
	query := `
		SELECT id, slug, title, ckan_id, editor_username
		FROM datasets
		WHERE id = $1`

	ds := &model.Dataset{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ds.ID, &ds.Slug, &ds.Title, &ds.CkanID, &ds.EditorUsername,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения набора данных: %w", err)
	}
	return ds, nil
}

func (r *datasetRepo) Upsert(ctx context.Context, ds *model.Dataset) error {
	query := `
		INSERT INTO datasets (id, slug, title, ckan_id, editor_username)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET slug = EXCLUDED.slug, title = EXCLUDED.title,
			ckan_id = EXCLUDED.ckan_id, editor_username = EXCLUDED.editor_username,
			updated_at = now()`

	if _, err := r.db.Exec(ctx, query, ds.ID, ds.Slug, ds.Title, ds.CkanID, ds.EditorUsername); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %s уже занят", ErrConflict, ds.Slug)
		}
		return fmt.Errorf("ошибка сохранения набора данных: %w", err)
	}
	return nil
}

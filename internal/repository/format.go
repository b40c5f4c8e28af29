package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// FormatRepository — чтение справочника форматов ресурсов.
// Справочник read-mostly: наполняется миграциями, горячие чтения
// идут через кэш сервисного слоя.
type FormatRepository interface {
	// GetBySlug возвращает формат по ключу.
	GetBySlug(ctx context.Context, slug string) (*model.ResourceFormat, error)
	// List возвращает все форматы.
	List(ctx context.Context) ([]*model.ResourceFormat, error)
}

type formatRepo struct {
	db DBTX
}

// NewFormatRepository создаёт репозиторий форматов.
func NewFormatRepository(db DBTX) FormatRepository {
	return &formatRepo{db: db}
}

func (r *formatRepo) GetBySlug(ctx context.Context, slug string) (*model.ResourceFormat, error) {
	query := `
		SELECT slug, description, extension, mime_types, protocol,
			ckan_format, ckan_view, is_gis_format
		FROM resource_formats
		WHERE slug = $1`

	f := &model.ResourceFormat{}
	err := r.db.QueryRow(ctx, query, slug).Scan(
		&f.Slug, &f.Description, &f.Extension, &f.MimeTypes, &f.Protocol,
		&f.CkanFormat, &f.CkanView, &f.IsGISFormat,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения формата: %w", err)
	}
	return f, nil
}

func (r *formatRepo) List(ctx context.Context) ([]*model.ResourceFormat, error) {
	query := `
		SELECT slug, description, extension, mime_types, protocol,
			ckan_format, ckan_view, is_gis_format
		FROM resource_formats
		ORDER BY slug`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки форматов: %w", err)
	}
	defer rows.Close()

	var formats []*model.ResourceFormat
	for rows.Next() {
		f := &model.ResourceFormat{}
		if err := rows.Scan(
			&f.Slug, &f.Description, &f.Extension, &f.MimeTypes, &f.Protocol,
			&f.CkanFormat, &f.CkanView, &f.IsGISFormat,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки формата: %w", err)
		}
		formats = append(formats, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода форматов: %w", err)
	}

	return formats, nil
}

// formats.go — сервис форматов ресурсов с LRU-кэшем.
// Справочник read-mostly: горячие чтения обслуживаются из
// hashicorp/golang-lru/v2 expirable-кэша.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
	"github.com/arturkryukov/geocat/resource-module/internal/repository"
)

// Prometheus-метрики кэша форматов.
var (
	formatCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_format_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш форматов.",
	})
	formatCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_format_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша форматов.",
	})
)

// allFormatsKey — ключ кэша для полного списка форматов.
const allFormatsKey = "\x00all"

// FormatService — доступ к справочнику форматов через expirable LRU-кэш.
type FormatService struct {
	repo  repository.FormatRepository
	bySlug *expirable.LRU[string, *model.ResourceFormat]
	lists  *expirable.LRU[string, []*model.ResourceFormat]
}

// NewFormatService создаёт сервис форматов.
// maxSize — максимальное количество записей в кэше, ttl — время жизни записи.
func NewFormatService(repo repository.FormatRepository, maxSize int, ttl time.Duration) *FormatService {
	return &FormatService{
		repo:   repo,
		bySlug: expirable.NewLRU[string, *model.ResourceFormat](maxSize, nil, ttl),
		lists:  expirable.NewLRU[string, []*model.ResourceFormat](1, nil, ttl),
	}
}

// GetBySlug возвращает формат по ключу.
// Возвращает ErrRecordNotFound, если формат неизвестен.
func (s *FormatService) GetBySlug(ctx context.Context, slug string) (*model.ResourceFormat, error) {
	if f, ok := s.bySlug.Get(slug); ok {
		formatCacheHitsTotal.Inc()
		return f, nil
	}
	formatCacheMissesTotal.Inc()

	f, err := s.repo.GetBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	s.bySlug.Add(slug, f)
	return f, nil
}

// List возвращает все форматы.
func (s *FormatService) List(ctx context.Context) ([]*model.ResourceFormat, error) {
	if formats, ok := s.lists.Get(allFormatsKey); ok {
		formatCacheHitsTotal.Inc()
		return formats, nil
	}
	formatCacheMissesTotal.Inc()

	formats, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	s.lists.Add(allFormatsKey, formats)
	return formats, nil
}

// MatchByMIME подбирает формат, принимающий указанный MIME-тип.
// Возвращает ErrUnsupportedMediaType, если ни один формат не подходит.
func (s *FormatService) MatchByMIME(ctx context.Context, contentType string) (*model.ResourceFormat, error) {
	formats, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, f := range formats {
		if f.AcceptsMIME(contentType) {
			return f, nil
		}
	}
	return nil, ErrUnsupportedMediaType
}

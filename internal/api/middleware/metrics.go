// metrics.go — Prometheus HTTP метрики для Resource Module.
// Регистрирует метрики: rm_http_requests_total, rm_http_request_duration_seconds.
// Бизнес-метрики (rm_staged_files_total, rm_catalog_requests_total и др.)
// регистрируются в соответствующих пакетах и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Resource Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Resource Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// StagedFilesTotal — общее количество принятых на staging файлов.
	StagedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rm_staged_files_total",
			Help: "Общее количество файлов, принятых во временное хранилище",
		},
		[]string{"result"},
	)

	// ResourceOperationsTotal — общее количество операций над ресурсами.
	ResourceOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rm_resource_operations_total",
			Help: "Общее количество операций жизненного цикла ресурсов",
		},
		[]string{"operation", "result"},
	)

	// CatalogRequestsTotal — количество запросов к каталогу CKAN.
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rm_catalog_requests_total",
			Help: "Общее количество запросов к API каталога CKAN",
		},
		[]string{"operation", "result"},
	)

	// StorageBytes — объём опубликованных файлов на диске (gauge).
	StorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rm_storage_bytes",
			Help: "Объём опубликованных файлов ресурсов в байтах",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} и хвост после /storage/
// на {file} для предотвращения взрывного роста кардинальности метрик.
// /api/v1/datasets/<uuid>/resources/<uuid>/storage/data/a.csv →
// /api/v1/datasets/{id}/resources/{id}/storage/{file}
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isUUID(seg) {
			segments[i] = "{id}"
			continue
		}
		// Всё после /storage/ — произвольный путь файла
		if seg == "storage" && i < len(segments)-1 {
			rest := strings.Join(segments[i+1:], "/")
			segments = segments[:i+1]
			if rest == "" {
				segments = append(segments, "")
			} else {
				segments = append(segments, "{file}")
			}
			break
		}
	}
	return strings.Join(segments, "/")
}

// isUUID проверяет формат UUID: 8-4-4-4-12 шестнадцатеричных символов.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}

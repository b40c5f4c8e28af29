package dirstore

import (
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// Lister — построение листинга каталога ресурса и выдача файлов.
// Листинг никогда не персистится: он перестраивается при каждом запросе
// из фактического состояния файловой системы.
type Lister struct {
	storageRoot string
	logger      *slog.Logger
}

// NewLister создаёт Lister поверх того же корневого каталога, что и Materializer.
func NewLister(storageRoot string, logger *slog.Logger) *Lister {
	return &Lister{
		storageRoot: storageRoot,
		logger:      logger.With(slog.String("component", "lister")),
	}
}

// List обходит каталог ресурса и возвращает манифест его файлов.
// Файлы с именами, начинающимися с "." или "_", скрываются (фильтр по имени
// файла; каталоги обходятся независимо от имени). Отсутствующий каталог —
// пустой манифест без ошибки. Порядок записей — порядок обхода.
func (l *Lister) List(resourceID, baseURL string) ([]model.ManifestEntry, error) {
	dir := filepath.Join(l.storageRoot, resourceID)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []model.ManifestEntry{}, nil
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	manifest := []model.ManifestEntry{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || hidden(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		manifest = append(manifest, model.ManifestEntry{
			Path:        relPath,
			URL:         baseURL + "/" + relPath,
			ContentType: l.contentType(path),
			Size:        info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("обход каталога ресурса %s: %w", resourceID, err)
	}

	return manifest, nil
}

// Open открывает файл каталога ресурса для выдачи по HTTP.
// Возвращает файл и его content type. ErrNotFound — если файл отсутствует,
// скрыт или путь выходит за пределы каталога ресурса.
func (l *Lister) Open(resourceID, relPath string) (*os.File, string, error) {
	dir := filepath.Join(l.storageRoot, resourceID)

	// Безопасное соединение: итоговый путь обязан остаться внутри каталога
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return nil, "", ErrNotFound
	}
	if hidden(filepath.Base(cleaned)) {
		return nil, "", ErrNotFound
	}

	fullPath := filepath.Join(dir, cleaned)

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		return nil, "", ErrNotFound
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, "", fmt.Errorf("открытие файла %s: %w", relPath, err)
	}

	return f, l.contentType(fullPath), nil
}

// contentType определяет MIME-тип файла: сначала по расширению,
// при неудаче — сниффингом содержимого.
func (l *Lister) contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		l.logger.Debug("Не удалось определить MIME-тип файла",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return "application/octet-stream"
	}
	return detected.String()
}

// hidden сообщает, скрыт ли файл из листинга по имени.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// Пакет dirstore — каталожное хранилище содержимого ресурсов.
// Каждый ресурс с архивным содержимым материализуется в каталог
// storageRoot/<resourceID>: архив распаковывается, листинг каталога
// публикуется в CKAN и отдаётся по HTTP.
package dirstore

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrArchiveInvalid — архив повреждён или не читается.
	ErrArchiveInvalid = errors.New("архив повреждён или не является корректным zip")
	// ErrFormatNotSupported — распаковка этого формата не реализована.
	ErrFormatNotSupported = errors.New("распаковка данного формата не поддерживается")
	// ErrNotFound — файл отсутствует в каталоге ресурса.
	ErrNotFound = errors.New("файл не найден в каталоге ресурса")
)

// Materializer — распаковка архивов в каталоги ресурсов.
type Materializer struct {
	// storageRoot — корневой каталог опубликованных ресурсов (RM_STORAGE_DIR)
	storageRoot string
	logger      *slog.Logger
}

// NewMaterializer создаёт Materializer. Проверяет и создаёт корневой каталог.
func NewMaterializer(storageRoot string, logger *slog.Logger) (*Materializer, error) {
	if err := os.MkdirAll(storageRoot, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корневой каталог %s: %w", storageRoot, err)
	}

	return &Materializer{
		storageRoot: storageRoot,
		logger:      logger.With(slog.String("component", "materializer")),
	}, nil
}

// Dir возвращает абсолютный путь каталога ресурса.
func (m *Materializer) Dir(resourceID string) string {
	return filepath.Join(m.storageRoot, resourceID)
}

// Flush удаляет каталог ресурса целиком. Отсутствие каталога ошибкой не считается.
func (m *Materializer) Flush(resourceID string) error {
	if err := os.RemoveAll(m.Dir(resourceID)); err != nil {
		return fmt.Errorf("очистка каталога ресурса %s: %w", resourceID, err)
	}
	return nil
}

// ValidateArchive проверяет архив без распаковки: формат поддержан
// и центральный каталог zip читается. Используется до создания записей,
// чтобы отклонить битые и неподдерживаемые архивы заранее.
func (m *Materializer) ValidateArchive(archivePath, contentType string) error {
	if contentType != "application/zip" && contentType != "application/x-zip-compressed" {
		return fmt.Errorf("%w: %s", ErrFormatNotSupported, contentType)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrArchiveInvalid, archivePath)
		}
		return fmt.Errorf("открытие архива %s: %w", archivePath, err)
	}
	return reader.Close()
}

// ExtractArchive распаковывает архив в каталог ресурса.
// Поддерживается только zip; другие форматы возвращают ErrFormatNotSupported.
// flush=true сначала удаляет каталог целиком, превращая распаковку в замену.
//
// При ошибке на середине распаковки каталог остаётся в частичном состоянии;
// восстановление — повторный вызов с flush=true.
func (m *Materializer) ExtractArchive(resourceID, archivePath, contentType string, flush bool) error {
	if contentType != "application/zip" && contentType != "application/x-zip-compressed" {
		return fmt.Errorf("%w: %s", ErrFormatNotSupported, contentType)
	}

	if flush {
		if err := m.Flush(resourceID); err != nil {
			return err
		}
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		// ErrInsecurePath — записи с абсолютными путями или ".."
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrArchiveInvalid, archivePath)
		}
		return fmt.Errorf("открытие архива %s: %w", archivePath, err)
	}
	defer reader.Close()

	destDir := m.Dir(resourceID)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("создание каталога ресурса %s: %w", resourceID, err)
	}

	for _, entry := range reader.File {
		if err := m.extractEntry(destDir, entry); err != nil {
			return err
		}
	}

	m.logger.Info("Архив распакован в каталог ресурса",
		slog.String("resource_id", resourceID),
		slog.Int("entries", len(reader.File)),
	)

	return nil
}

// extractEntry распаковывает одну запись архива с защитой от zip-slip.
func (m *Materializer) extractEntry(destDir string, entry *zip.File) error {
	// Защита от zip-slip: путь записи обязан оставаться внутри destDir
	cleaned := filepath.Clean(filepath.FromSlash(entry.Name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("%w: недопустимый путь записи %q", ErrArchiveInvalid, entry.Name)
	}
	target := filepath.Join(destDir, cleaned)

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o750); err != nil {
			return fmt.Errorf("создание каталога %s: %w", cleaned, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("создание каталога для %s: %w", cleaned, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: запись %q не читается", ErrArchiveInvalid, entry.Name)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("создание файла %s: %w", cleaned, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return fmt.Errorf("распаковка записи %s: %w", cleaned, err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("закрытие файла %s: %w", cleaned, err)
	}

	return nil
}

// Пакет stagefs — операции со staged-файлами во временном каталоге.
// Принимает загрузки в streaming-режиме с подсчётом SHA-256 на лету
// и отдаёт их на материализацию при финализации ресурса.
package stagefs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store — управление staged-файлами во временном каталоге.
type Store struct {
	// stagingDir — каталог временного хранения загрузок (RM_STAGING_DIR)
	stagingDir string
}

// SaveResult — результат сохранения staged-файла.
type SaveResult struct {
	// Path — абсолютный путь файла на диске
	Path string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт новый Store. Проверяет и создаёт каталог, если он не существует.
func New(stagingDir string) (*Store, error) {
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать staging-каталог %s: %w", stagingDir, err)
	}

	return &Store{stagingDir: stagingDir}, nil
}

// Save записывает данные из reader во временный каталог с подсчётом
// SHA-256 на лету. Формат имени файла: {name}_{user}_{timestamp}_{uuid}.{ext}
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Save(reader io.Reader, originalFilename, uploadedBy string) (*SaveResult, error) {
	storageName := generateStorageName(originalFilename, uploadedBy)
	fullPath := filepath.Join(s.stagingDir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Path:     fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Promote перемещает staged-файл по долговременному пути destPath.
// Родительский каталог создаётся при необходимости. Если rename невозможен
// (staging и постоянное хранилище на разных файловых системах), файл
// копируется с fsync и затем удаляется из staging.
func (s *Store) Promote(stagedPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("не удалось создать каталог для %s: %w", destPath, err)
	}

	if err := os.Rename(stagedPath, destPath); err == nil {
		return nil
	}

	src, err := os.Open(stagedPath)
	if err != nil {
		return fmt.Errorf("ошибка открытия staged-файла %s: %w", stagedPath, err)
	}
	defer src.Close()

	tmpPath := destPath + ".tmp"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания файла %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка копирования в %s: %w", destPath, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	os.Remove(stagedPath)
	return nil
}

// Open открывает staged-файл для чтения. Вызывающий код обязан закрыть файл.
func (s *Store) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("staged-файл не найден: %s", path)
		}
		return nil, fmt.Errorf("ошибка открытия staged-файла %s: %w", path, err)
	}
	return f, nil
}

// Exists проверяет существование staged-файла.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove удаляет staged-файл. Возвращает nil, если файл уже не существует.
func (s *Store) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления staged-файла %s: %w", path, err)
	}
	return nil
}

// StagingDir возвращает путь к staging-каталогу.
func (s *Store) StagingDir() string {
	return s.stagingDir
}

// generateStorageName генерирует имя staged-файла на диске.
// Формат: {name}_{user}_{timestamp}_{uuid}.{ext}
// Пример: report_vasya_20260830150405_a1b2c3d4.zip
func generateStorageName(originalFilename, uploadedBy string) string {
	ext := filepath.Ext(originalFilename)
	name := strings.TrimSuffix(filepath.Base(originalFilename), ext)

	// Убираем небезопасные символы из имени и пользователя
	name = sanitize(name)
	user := sanitize(uploadedBy)

	// Ограничиваем длину имени для предотвращения проблем с FS
	if len(name) > 50 {
		name = name[:50]
	}
	if len(user) > 20 {
		user = user[:20]
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8] // Короткий UUID для уникальности

	if ext != "" {
		return fmt.Sprintf("%s_%s_%s_%s%s", name, user, ts, uid, ext)
	}
	return fmt.Sprintf("%s_%s_%s_%s", name, user, ts, uid)
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

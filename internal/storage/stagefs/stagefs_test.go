package stagefs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesDirectory проверяет создание staging-каталога.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")

	store, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	if store.StagingDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, store.StagingDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("каталог не создан: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является каталогом")
	}
}

// TestSave проверяет сохранение staged-файла с подсчётом SHA-256.
func TestSave(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := []byte("Тестовое содержимое архива ресурса.")
	result, err := store.Save(bytes.NewReader(content), "report.zip", "vasya")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	expectedHash := sha256.Sum256(content)
	if result.Checksum != hex.EncodeToString(expectedHash[:]) {
		t.Errorf("неверный checksum: %s", result.Checksum)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("файл не найден на диске: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла искажено")
	}

	base := filepath.Base(result.Path)
	if !strings.Contains(base, "report") || !strings.Contains(base, "vasya") {
		t.Errorf("имя файла должно содержать оригинальное имя и пользователя: %s", base)
	}
	if !strings.HasSuffix(base, ".zip") {
		t.Errorf("имя файла должно сохранять расширение: %s", base)
	}

	// Temp файл не должен оставаться
	entries, _ := os.ReadDir(store.StagingDir())
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("остался temp файл: %s", e.Name())
		}
	}
}

// TestSave_UniqueNames проверяет уникальность имён при повторной загрузке.
func TestSave_UniqueNames(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	first, err := store.Save(bytes.NewReader([]byte("раз")), "data.csv", "vasya")
	if err != nil {
		t.Fatalf("первое сохранение: %v", err)
	}
	second, err := store.Save(bytes.NewReader([]byte("два")), "data.csv", "vasya")
	if err != nil {
		t.Fatalf("второе сохранение: %v", err)
	}

	if first.Path == second.Path {
		t.Errorf("ожидались уникальные пути, получен одинаковый: %s", first.Path)
	}
}

// TestSave_SanitizesName проверяет очистку небезопасных символов в имени.
func TestSave_SanitizesName(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	result, err := store.Save(bytes.NewReader([]byte("x")), "../../etc/pass wd!.txt", "user@host")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if filepath.Dir(result.Path) != store.StagingDir() {
		t.Errorf("файл должен лежать в staging-каталоге: %s", result.Path)
	}
	base := filepath.Base(result.Path)
	if strings.ContainsAny(base, "/\\!@ ") {
		t.Errorf("имя содержит небезопасные символы: %s", base)
	}
}

// TestPromote проверяет перемещение staged-файла по долговременному пути.
func TestPromote(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := []byte("данные ресурса")
	result, err := store.Save(bytes.NewReader(content), "data.csv", "vasya")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "uploads", "res-1", "data.csv")
	if err := store.Promote(result.Path, destPath); err != nil {
		t.Fatalf("ошибка Promote: %v", err)
	}

	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("файл не найден по долговременному пути: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла искажено при перемещении")
	}
	if store.Exists(result.Path) {
		t.Error("staged-файл должен быть удалён после Promote")
	}
}

// TestOpenRemove проверяет чтение и удаление staged-файла.
func TestOpenRemove(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	result, err := store.Save(bytes.NewReader([]byte("payload")), "a.bin", "u")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	f, err := store.Open(result.Path)
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	f.Close()

	if !store.Exists(result.Path) {
		t.Error("файл должен существовать")
	}

	if err := store.Remove(result.Path); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if store.Exists(result.Path) {
		t.Error("файл должен быть удалён")
	}

	// Повторное удаление — не ошибка
	if err := store.Remove(result.Path); err != nil {
		t.Errorf("повторное удаление: %v", err)
	}

	if _, err := store.Open(result.Path); err == nil {
		t.Error("открытие удалённого файла должно возвращать ошибку")
	}
}

package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkryukov/geocat/resource-module/internal/config"
	"github.com/arturkryukov/geocat/resource-module/internal/database"
	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("geocat_test"),
		postgres.WithUsername("geocat"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("RM_DB_HOST", host)
	os.Setenv("RM_DB_PORT", port.Port())
	os.Setenv("RM_DB_NAME", "geocat_test")
	os.Setenv("RM_DB_USER", "geocat")
	os.Setenv("RM_DB_PASSWORD", "test-password")
	os.Setenv("RM_DB_SSL_MODE", "disable")
	os.Setenv("RM_STORAGE_DIR", t.TempDir())
	os.Setenv("RM_UPLOAD_DIR", t.TempDir())
	os.Setenv("RM_STAGING_DIR", t.TempDir())
	os.Setenv("RM_DOMAIN", "https://geocat.example.org")
	os.Setenv("RM_CKAN_URL", "http://localhost:5000")
	os.Setenv("RM_CKAN_API_KEY", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// createTestDataset создаёт набор данных для привязки ресурсов.
func createTestDataset(t *testing.T, pool *pgxpool.Pool) *model.Dataset {
	t.Helper()

	ds := &model.Dataset{
		ID:             uuid.NewString(),
		Slug:           "test-dataset-" + uuid.NewString()[:8],
		Title:          "Тестовый набор данных",
		CkanID:         uuid.NewString(),
		EditorUsername: "vasya",
	}
	if err := NewDatasetRepository(pool).Upsert(context.Background(), ds); err != nil {
		t.Fatalf("создание набора данных: %v", err)
	}
	return ds
}

// newTestResource возвращает ресурс с заполненными метаданными.
func newTestResource(datasetID string) *model.Resource {
	return &model.Resource{
		ID:           uuid.NewString(),
		CkanID:       uuid.NewString(),
		DatasetID:    datasetID,
		Title:        "Тестовый ресурс",
		Description:  "Описание",
		Language:     model.LangFrench,
		ResourceType: model.TypeRaw,
		FormatSlug:   "zip",
	}
}

// --- Тесты DatasetRepository ---

func TestDatasetUpsertGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDatasetRepository(pool)

	ds := createTestDataset(t, pool)

	got, err := repo.GetByID(ctx, ds.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Slug != ds.Slug || got.EditorUsername != "vasya" {
		t.Errorf("набор данных искажён: %+v", got)
	}

	// Upsert обновляет существующую запись
	ds.Title = "Обновлённый набор"
	if err := repo.Upsert(ctx, ds); err != nil {
		t.Fatalf("повторный Upsert: %v", err)
	}
	got, err = repo.GetByID(ctx, ds.ID)
	if err != nil {
		t.Fatalf("GetByID после обновления: %v", err)
	}
	if got.Title != "Обновлённый набор" {
		t.Errorf("ожидалось обновление title, получено %q", got.Title)
	}

	if _, err := repo.GetByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено: %v", err)
	}
}

// --- Тесты ResourceRepository ---

func TestResourceCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)
	ds := createTestDataset(t, pool)

	res := newTestResource(ds.ID)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.CreatedAt.IsZero() || res.LastUpdate.IsZero() {
		t.Error("Create должен заполнять created_at и last_update")
	}

	link := &model.ResourceLink{
		ID:         uuid.NewString(),
		ResourceID: res.ID,
		Kind:       model.KindStore,
		FilePath:   "/srv/uploads/archive.zip",
		FileSize:   2048,
	}
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	got, err := repo.GetByID(ctx, ds.ID, res.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Kind() != model.KindStore {
		t.Errorf("ожидался вид store, получен %q", got.Kind())
	}
	if got.Link.FilePath != link.FilePath || got.Link.FileSize != 2048 {
		t.Errorf("под-запись искажена: %+v", got.Link)
	}

	// Обновление метаданных двигает last_update
	prev := got.LastUpdate
	got.Title = "Новое название"
	time.Sleep(10 * time.Millisecond)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.LastUpdate.After(prev) {
		t.Error("Update должен продвигать last_update")
	}

	list, err := repo.ListByDataset(ctx, ds.ID)
	if err != nil {
		t.Fatalf("ListByDataset: %v", err)
	}
	if len(list) != 1 || list[0].ID != res.ID {
		t.Errorf("неожиданный список ресурсов: %+v", list)
	}

	// Чужой dataset_id — не найдено
	if _, err := repo.GetByID(ctx, uuid.NewString(), res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound для чужого набора данных, получено: %v", err)
	}
}

// TestKindExclusivity проверяет, что вторая под-запись того же вида
// для ресурса отклоняется частичным уникальным индексом.
func TestKindExclusivity(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)
	ds := createTestDataset(t, pool)

	res := newTestResource(ds.ID)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := &model.ResourceLink{
		ID:         uuid.NewString(),
		ResourceID: res.ID,
		Kind:       model.KindUpload,
		FilePath:   "/srv/uploads/a.csv",
		FileSize:   10,
	}
	if err := repo.CreateLink(ctx, first); err != nil {
		t.Fatalf("первая под-запись: %v", err)
	}

	second := &model.ResourceLink{
		ID:         uuid.NewString(),
		ResourceID: res.ID,
		Kind:       model.KindUpload,
		FilePath:   "/srv/uploads/b.csv",
		FileSize:   20,
	}
	if err := repo.CreateLink(ctx, second); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено: %v", err)
	}
}

// TestAttachLink проверяет двухфазное создание под-записи:
// shell без ресурса на шаге приёма, привязка при финализации.
func TestAttachLink(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)
	ds := createTestDataset(t, pool)

	// Shell под-записи без ресурса
	shell := &model.ResourceLink{
		ID:       uuid.NewString(),
		Kind:     model.KindUpload,
		FilePath: "/srv/staging/file.csv",
		FileSize: 100,
	}
	if err := repo.CreateLink(ctx, shell); err != nil {
		t.Fatalf("создание shell: %v", err)
	}

	res := newTestResource(ds.ID)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.AttachLink(ctx, model.KindUpload, shell.ID, res.ID); err != nil {
		t.Fatalf("AttachLink: %v", err)
	}

	link, err := repo.GetLinkByResource(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetLinkByResource: %v", err)
	}
	if link.ID != shell.ID || link.Kind != model.KindUpload {
		t.Errorf("привязана не та под-запись: %+v", link)
	}

	// Привязка к несуществующей под-записи
	if err := repo.AttachLink(ctx, model.KindUpload, uuid.NewString(), res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено: %v", err)
	}
}

// TestUpdateLink проверяет обновление полезной нагрузки под-записи.
func TestUpdateLink(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)
	ds := createTestDataset(t, pool)

	res := newTestResource(ds.ID)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}

	link := &model.ResourceLink{
		ID:            uuid.NewString(),
		ResourceID:    res.ID,
		Kind:          model.KindDownload,
		URL:           "https://data.example.org/old.csv",
		Synchronise:   false,
		SyncFrequency: "never",
	}
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	link.URL = "https://data.example.org/new.csv"
	link.Synchronise = true
	link.SyncFrequency = "daily"
	if err := repo.UpdateLink(ctx, link); err != nil {
		t.Fatalf("UpdateLink: %v", err)
	}

	got, err := repo.GetLinkByResource(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetLinkByResource: %v", err)
	}
	if got.URL != link.URL || !got.Synchronise || got.SyncFrequency != "daily" {
		t.Errorf("под-запись не обновлена: %+v", got)
	}
}

// TestDeleteCascade проверяет каскадное удаление под-записей вместе с ресурсом.
func TestDeleteCascade(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)
	ds := createTestDataset(t, pool)

	res := newTestResource(ds.ID)
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}
	link := &model.ResourceLink{
		ID:         uuid.NewString(),
		ResourceID: res.ID,
		Kind:       model.KindFtp,
		FilePath:   "/srv/ftp/data.zip",
		FileSize:   500,
	}
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	if err := repo.Delete(ctx, res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := repo.GetByID(ctx, ds.ID, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ресурс должен быть удалён, получено: %v", err)
	}
	if _, err := repo.GetLinkByResource(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("под-запись должна удаляться каскадом, получено: %v", err)
	}

	// Повторное удаление — не найдено
	if err := repo.Delete(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено: %v", err)
	}
}

// --- Тесты FormatRepository ---

func TestFormatRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFormatRepository(pool)

	f, err := repo.GetBySlug(ctx, "zip")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if !f.AcceptsMIME("application/zip") {
		t.Errorf("формат zip должен принимать application/zip: %+v", f)
	}

	if _, err := repo.GetBySlug(ctx, "no-such-format"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено: %v", err)
	}

	formats, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(formats) == 0 {
		t.Error("справочник форматов пуст")
	}
}

// TestTxRunner проверяет откат транзакции при ошибке.
func TestTxRunner(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)
	ds := createTestDataset(t, pool)

	res := newTestResource(ds.ID)
	errBoom := errors.New("boom")

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewResourceRepository(tx).Create(ctx, res); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("ожидалась ошибка из fn, получено: %v", err)
	}

	// Запись не должна появиться
	if _, err := NewResourceRepository(pool).GetByID(ctx, ds.ID, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("транзакция должна была откатиться, получено: %v", err)
	}
}

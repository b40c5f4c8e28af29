package staging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// setupTestRedis запускает Redis контейнер и возвращает подключённый клиент.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "docker.io/redis:7-alpine")
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить строку подключения: %v", err)
	}

	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("Не удалось разобрать строку подключения: %v", err)
	}

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	return client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEntry() *model.StagingEntry {
	return &model.StagingEntry{
		User:         "vasya",
		ContentType:  "application/zip",
		Name:         "report",
		Size:         2048,
		Filename:     "/tmp/staging/report.zip",
		RelatedModel: "upload",
	}
}

// TestStore_CreateRetrieve проверяет запись и чтение staging-записи.
func TestStore_CreateRetrieve(t *testing.T) {
	client := setupTestRedis(t)
	store := New(client, time.Hour, testLogger())
	ctx := context.Background()

	key, err := store.Create(ctx, testEntry())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key == "" {
		t.Fatal("ожидался непустой ключ-талон")
	}

	got, err := store.Retrieve(ctx, key)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.User != "vasya" || got.ContentType != "application/zip" || got.Size != 2048 {
		t.Errorf("запись искажена при чтении: %+v", got)
	}
}

// TestStore_RetrieveMissing проверяет ErrExpiredOrMissing для неизвестного ключа.
func TestStore_RetrieveMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := New(client, time.Hour, testLogger())

	_, err := store.Retrieve(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrExpiredOrMissing) {
		t.Errorf("ожидалась ErrExpiredOrMissing, получено: %v", err)
	}
}

// TestStore_Expiry проверяет, что запись исчезает после истечения TTL.
func TestStore_Expiry(t *testing.T) {
	client := setupTestRedis(t)
	store := New(client, time.Second, testLogger())
	ctx := context.Background()

	key, err := store.Create(ctx, testEntry())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := store.Retrieve(ctx, key); !errors.Is(err, ErrExpiredOrMissing) {
		t.Errorf("ожидалась ErrExpiredOrMissing после истечения TTL, получено: %v", err)
	}
}

// TestStore_UpdateKeepsTTL проверяет, что Update не продлевает TTL.
func TestStore_UpdateKeepsTTL(t *testing.T) {
	client := setupTestRedis(t)
	store := New(client, 2*time.Second, testLogger())
	ctx := context.Background()

	key, err := store.Create(ctx, testEntry())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(time.Second)

	entry := testEntry()
	entry.ResourcePK = "a1b2c3d4-e5f6-4890-abcd-ef1234567890"
	if err := store.Update(ctx, key, entry); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ttl, err := client.TTL(ctx, keyPrefix+key).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl > 1500*time.Millisecond {
		t.Errorf("Update продлил TTL: остаток %v", ttl)
	}

	got, err := store.Retrieve(ctx, key)
	if err != nil {
		t.Fatalf("Retrieve после Update: %v", err)
	}
	if got.ResourcePK != entry.ResourcePK {
		t.Errorf("ожидался resource_pk=%s, получен %s", entry.ResourcePK, got.ResourcePK)
	}
}

// TestStore_UpdateMissing проверяет, что Update по истёкшему ключу не воскрешает запись.
func TestStore_UpdateMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := New(client, time.Hour, testLogger())

	err := store.Update(context.Background(), "00000000-0000-0000-0000-000000000000", testEntry())
	if !errors.Is(err, ErrExpiredOrMissing) {
		t.Errorf("ожидалась ErrExpiredOrMissing, получено: %v", err)
	}
}

// TestStore_Delete проверяет удаление записи, включая идемпотентность.
func TestStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	store := New(client, time.Hour, testLogger())
	ctx := context.Background()

	key, err := store.Create(ctx, testEntry())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Retrieve(ctx, key); !errors.Is(err, ErrExpiredOrMissing) {
		t.Errorf("ожидалась ErrExpiredOrMissing после удаления, получено: %v", err)
	}

	// Повторное удаление — не ошибка
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}
}

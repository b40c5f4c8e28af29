// Package staging — временное хранилище записей о загруженных файлах в Redis.
//
// Каждая принятая загрузка получает ключ-талон (UUID v4). Запись живёт
// ограниченное время (TTL): если ресурс не финализирован до истечения TTL,
// Redis удаляет запись, и талон становится недействительным.
//
// TTL задаётся один раз при создании записи и НЕ продлевается при обновлении:
// окно финализации отсчитывается от момента загрузки файла.
package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// keyPrefix — префикс ключей staging-записей в Redis.
const keyPrefix = "staged:"

// ErrExpiredOrMissing — запись не найдена: талон истёк или никогда не существовал.
var ErrExpiredOrMissing = errors.New("staging-запись истекла или не существует")

// Store — хранилище staging-записей поверх Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New создаёт Store с указанным TTL записей.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "staging")),
	}
}

// Create сохраняет новую staging-запись и возвращает её ключ-талон.
func (s *Store) Create(ctx context.Context, entry *model.StagingEntry) (string, error) {
	key := uuid.NewString()

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("сериализация staging-записи: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("запись в Redis: %w", err)
	}

	s.logger.Debug("Staging-запись создана",
		slog.String("key", key),
		slog.String("filename", entry.Filename),
		slog.Int64("size", entry.Size),
	)

	return key, nil
}

// Retrieve возвращает staging-запись по ключу-талону.
// Возвращает ErrExpiredOrMissing, если запись истекла или не существует.
func (s *Store) Retrieve(ctx context.Context, key string) (*model.StagingEntry, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrExpiredOrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("чтение из Redis: %w", err)
	}

	var entry model.StagingEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("десериализация staging-записи: %w", err)
	}

	return &entry, nil
}

// Update перезаписывает существующую staging-запись, сохраняя остаток TTL.
// Возвращает ErrExpiredOrMissing, если запись уже истекла.
func (s *Store) Update(ctx context.Context, key string, entry *model.StagingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("сериализация staging-записи: %w", err)
	}

	// SetXX + KeepTTL: запись обновляется только если ещё существует,
	// остаток TTL не сбрасывается.
	ok, err := s.client.SetXX(ctx, keyPrefix+key, data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("обновление в Redis: %w", err)
	}
	if !ok {
		return ErrExpiredOrMissing
	}

	return nil
}

// Delete удаляет staging-запись. Отсутствие записи ошибкой не считается.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("удаление из Redis: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis. Используется в readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// WatchExpired подписывается на keyspace-уведомления об истёкших ключах
// и логирует истечение staging-записей. Файлы во временном каталоге при этом
// не удаляются: их подбирает следующая загрузка с тем же именем либо
// ручная очистка каталога.
//
// Требует notify-keyspace-events = "Ex" на стороне Redis. Блокируется до
// отмены контекста.
func (s *Store) WatchExpired(ctx context.Context) {
	db := 0
	if opts := s.client.Options(); opts != nil {
		db = opts.DB
	}
	channel := fmt.Sprintf("__keyevent@%d__:expired", db)

	pubsub := s.client.PSubscribe(ctx, channel)
	defer pubsub.Close()

	s.logger.Info("Подписка на уведомления об истёкших staging-записях",
		slog.String("channel", channel),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(msg.Payload) <= len(keyPrefix) || msg.Payload[:len(keyPrefix)] != keyPrefix {
				continue
			}
			s.logger.Info("Staging-запись истекла без финализации",
				slog.String("key", msg.Payload[len(keyPrefix):]),
			)
		}
	}
}

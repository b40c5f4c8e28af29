// Пакет ckan — HTTP-клиент CKAN Action API.
// Операции: package_show, user_show (получение apikey редактора),
// resource_create/resource_update (multipart upsert), resource_delete.
// Все мутации выполняются от имени редактора набора данных (его apikey).
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Ошибки клиента CKAN.
var (
	// ErrUnavailable — каталог недоступен (сеть, таймаут, 5xx).
	ErrUnavailable = errors.New("каталог CKAN недоступен")
	// ErrNotFound — объект не найден в каталоге.
	ErrNotFound = errors.New("объект не найден в каталоге CKAN")
	// ErrCredentialNotFound — у пользователя нет учётной записи или apikey в CKAN.
	ErrCredentialNotFound = errors.New("учётные данные пользователя не найдены в CKAN")
)

// Client — HTTP-клиент CKAN.
type Client struct {
	baseURL     string
	adminAPIKey string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New создаёт CKAN-клиент.
// adminAPIKey используется для служебных чтений (package_show, user_show);
// мутации выполняются с apikey конкретного редактора.
func New(baseURL, adminAPIKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		adminAPIKey: adminAPIKey,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With(slog.String("component", "ckan_client")),
	}
}

// GetPackage запрашивает пакет по идентификатору.
func (c *Client) GetPackage(ctx context.Context, ckanID string) (*Package, error) {
	var pkg Package
	if err := c.action(ctx, "package_show", c.adminAPIKey, map[string]string{"id": ckanID}, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetUser запрашивает пользователя CKAN и его apikey.
// Возвращает ErrCredentialNotFound, если пользователь не найден
// или apikey у него отсутствует.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := c.action(ctx, "user_show", c.adminAPIKey, map[string]string{"id": username}, &user)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	if user.Apikey == "" {
		return nil, fmt.Errorf("%w: у пользователя %s нет apikey", ErrCredentialNotFound, username)
	}
	return &user, nil
}

// PublishResource публикует ресурс в CKAN (upsert): сначала пробует
// resource_update по стабильному ResourceID, при отсутствии ресурса —
// resource_create с тем же идентификатором.
// upload == nil публикует только URL, без тела файла.
func (c *Client) PublishResource(ctx context.Context, apikey string, params *PublishParams, upload io.Reader) (*Resource, error) {
	res, err := c.publish(ctx, "resource_update", apikey, params, upload)
	if errors.Is(err, ErrNotFound) {
		// Первый раз ресурс публикуется через resource_create.
		// Upload может быть одноразовым reader-ом, поэтому вызывающий код
		// обязан передавать io.Seeker либо создавать reader заново; здесь
		// io.Seeker перематывается перед повторной отправкой.
		if seeker, ok := upload.(io.Seeker); ok {
			if _, serr := seeker.Seek(0, io.SeekStart); serr != nil {
				return nil, fmt.Errorf("перемотка тела загрузки: %w", serr)
			}
		}
		return c.publish(ctx, "resource_create", apikey, params, upload)
	}
	return res, err
}

// DeleteResource удаляет ресурс из CKAN.
// Отсутствие ресурса в каталоге ошибкой не считается.
func (c *Client) DeleteResource(ctx context.Context, apikey, ckanresourceID string) error {
	err := c.action(ctx, "resource_delete", apikey, map[string]string{"id": ckanresourceID}, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// action выполняет JSON-вызов CKAN Action API.
func (c *Client) action(ctx context.Context, name, apikey string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация запроса %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/3/action/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", apikey)

	return c.do(req, name, result)
}

// publish выполняет multipart-вызов resource_create/resource_update.
func (c *Client) publish(ctx context.Context, action, apikey string, params *PublishParams, upload io.Reader) (*Resource, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"id":          params.ResourceID,
		"package_id":  params.PackageID,
		"name":        params.Name,
		"description": params.Description,
		"format":      params.Format,
		"mimetype":    params.Mimetype,
		"url":         params.URL,
		"size":        strconv.FormatInt(params.Size, 10),
	}
	if params.ViewType != "" {
		fields["view_type"] = params.ViewType
	}
	if params.Restricted != "" {
		fields["restricted"] = params.Restricted
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("сборка формы %s: %w", action, err)
		}
	}

	if upload != nil {
		part, err := w.CreateFormFile("upload", params.UploadName)
		if err != nil {
			return nil, fmt.Errorf("сборка файла формы %s: %w", action, err)
		}
		if _, err := io.Copy(part, upload); err != nil {
			return nil, fmt.Errorf("чтение тела загрузки: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("закрытие формы %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/3/action/"+action, &buf)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s: %w", action, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", apikey)

	var res Resource
	if err := c.do(req, action, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do выполняет запрос и разбирает конверт Action API.
func (c *Client) do(req *http.Request, action string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: запрос %s: %v", ErrUnavailable, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s вернул статус %d: %s", ErrUnavailable, action, resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: декодирование ответа %s: %v", ErrUnavailable, action, err)
	}

	if !envelope.Success {
		if resp.StatusCode == http.StatusNotFound ||
			(envelope.Error != nil && envelope.Error.Type == "Not Found Error") {
			return fmt.Errorf("%w: %s", ErrNotFound, action)
		}
		message := "неизвестная ошибка"
		if envelope.Error != nil {
			message = envelope.Error.Message
		}
		return fmt.Errorf("CKAN отклонил %s (статус %d): %s", action, resp.StatusCode, message)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("декодирование результата %s: %w", action, err)
		}
	}

	c.logger.Debug("Вызов CKAN выполнен",
		slog.String("action", action),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

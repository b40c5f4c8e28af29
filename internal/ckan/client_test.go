package ckan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(serverURL string) *Client {
	return New(serverURL, "admin-api-key", 5*time.Second, testLogger())
}

// writeSuccess пишет успешный конверт Action API.
func writeSuccess(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result})
}

// writeNotFound пишет конверт "Not Found Error" со статусом 404.
func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"__type": "Not Found Error", "message": "Not found"},
	})
}

// TestGetUser проверяет получение apikey редактора.
func TestGetUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/3/action/user_show" {
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "admin-api-key" {
			t.Errorf("служебные чтения должны идти с admin apikey, получено %q", r.Header.Get("Authorization"))
		}

		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		switch payload["id"] {
		case "vasya":
			writeSuccess(w, User{ID: "u-1", Name: "vasya", Apikey: "vasya-key"})
		case "no-key":
			writeSuccess(w, User{ID: "u-2", Name: "no-key"})
		default:
			writeNotFound(w)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	user, err := client.GetUser(ctx, "vasya")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Apikey != "vasya-key" {
		t.Errorf("ожидался apikey vasya-key, получен %q", user.Apikey)
	}

	if _, err := client.GetUser(ctx, "stranger"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("ожидалась ErrCredentialNotFound для неизвестного пользователя, получено: %v", err)
	}
	if _, err := client.GetUser(ctx, "no-key"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("ожидалась ErrCredentialNotFound для пользователя без apikey, получено: %v", err)
	}
}

// TestGetPackage проверяет чтение пакета и ErrNotFound.
func TestGetPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["id"] == "pkg-1" {
			writeSuccess(w, Package{ID: "pkg-1", Name: "dataset-one", Title: "Набор 1"})
			return
		}
		writeNotFound(w)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	pkg, err := client.GetPackage(ctx, "pkg-1")
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if pkg.Name != "dataset-one" {
		t.Errorf("неожиданный пакет: %+v", pkg)
	}

	if _, err := client.GetPackage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено: %v", err)
	}
}

// TestPublishResource_UpdateThenCreate проверяет upsert: resource_update
// возвращает 404, после чего клиент выполняет resource_create с тем же телом.
func TestPublishResource_UpdateThenCreate(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := strings.TrimPrefix(r.URL.Path, "/api/3/action/")
		calls = append(calls, action)

		if r.Header.Get("Authorization") != "editor-key" {
			t.Errorf("публикация должна идти с apikey редактора, получено %q", r.Header.Get("Authorization"))
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("разбор multipart: %v", err)
		}

		switch action {
		case "resource_update":
			writeNotFound(w)
		case "resource_create":
			if r.FormValue("id") != "ckan-res-1" || r.FormValue("package_id") != "pkg-1" {
				t.Errorf("неожиданные поля формы: %v", r.MultipartForm.Value)
			}
			if r.FormValue("mimetype") != "text/html" || r.FormValue("view_type") != "text_view" {
				t.Errorf("неожиданные поля представления: %v", r.MultipartForm.Value)
			}

			file, header, err := r.FormFile("upload")
			if err != nil {
				t.Fatalf("файл upload отсутствует: %v", err)
			}
			defer file.Close()
			body, _ := io.ReadAll(file)
			if header.Filename != "index.html" || !strings.Contains(string(body), "листинг") {
				t.Errorf("тело загрузки искажено: %s (%s)", body, header.Filename)
			}

			writeSuccess(w, Resource{ID: "ckan-res-1", PackageID: "pkg-1"})
		default:
			t.Errorf("неожиданный action: %s", action)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	params := &PublishParams{
		ResourceID: "ckan-res-1",
		PackageID:  "pkg-1",
		Name:       "Листинг ресурса",
		Format:     "HTML",
		Mimetype:   "text/html",
		URL:        "https://geocat.example.org/datasets/d1/resources/r1/storage/",
		ViewType:   "text_view",
		Restricted: `{"level": "public"}`,
		UploadName: "index.html",
	}
	upload := strings.NewReader("<html>листинг</html>")

	res, err := client.PublishResource(context.Background(), "editor-key", params, upload)
	if err != nil {
		t.Fatalf("PublishResource: %v", err)
	}
	if res.ID != "ckan-res-1" {
		t.Errorf("неожиданный результат: %+v", res)
	}

	if len(calls) != 2 || calls[0] != "resource_update" || calls[1] != "resource_create" {
		t.Errorf("ожидалась последовательность update→create, получено: %v", calls)
	}
}

// TestPublishResource_URLOnly проверяет публикацию без тела файла.
func TestPublishResource_URLOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("разбор multipart: %v", err)
		}
		if _, _, err := r.FormFile("upload"); err == nil {
			t.Error("при публикации URL тело файла не должно передаваться")
		}
		if r.FormValue("url") != "https://data.example.org/ext.csv" {
			t.Errorf("неожиданный url: %s", r.FormValue("url"))
		}
		writeSuccess(w, Resource{ID: "ckan-res-2"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.PublishResource(context.Background(), "editor-key", &PublishParams{
		ResourceID: "ckan-res-2",
		PackageID:  "pkg-1",
		Name:       "Внешняя ссылка",
		URL:        "https://data.example.org/ext.csv",
	}, nil)
	if err != nil {
		t.Fatalf("PublishResource: %v", err)
	}
}

// TestDeleteResource проверяет удаление, включая идемпотентность для 404.
func TestDeleteResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["id"] == "known" {
			writeSuccess(w, nil)
			return
		}
		writeNotFound(w)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	if err := client.DeleteResource(ctx, "editor-key", "known"); err != nil {
		t.Errorf("DeleteResource: %v", err)
	}
	// Отсутствующий ресурс — не ошибка
	if err := client.DeleteResource(ctx, "editor-key", "missing"); err != nil {
		t.Errorf("удаление отсутствующего ресурса должно быть no-op: %v", err)
	}
}

// TestUnavailable проверяет ErrUnavailable для 5xx и сетевых ошибок.
func TestUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	client := newTestClient(server.URL)

	if _, err := client.GetPackage(context.Background(), "pkg-1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ожидалась ErrUnavailable для 5xx, получено: %v", err)
	}

	server.Close()
	if _, err := client.GetPackage(context.Background(), "pkg-1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ожидалась ErrUnavailable для сетевой ошибки, получено: %v", err)
	}
}

package ckan

import "encoding/json"

// Package — пакет (набор данных) в CKAN.
type Package struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
	State string `json:"state,omitempty"`
}

// User — пользователь CKAN. Apikey нужен для публикации от имени редактора.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Apikey string `json:"apikey"`
	State  string `json:"state,omitempty"`
}

// Resource — ресурс пакета CKAN (ответ resource_create/resource_update).
type Resource struct {
	ID        string `json:"id"`
	PackageID string `json:"package_id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Format    string `json:"format"`
	Mimetype  string `json:"mimetype"`
	Size      int64  `json:"size"`
}

// PublishParams — поля ресурса для публикации в CKAN.
// UploadName + Upload задают тело файла (multipart); при Upload == nil
// публикуется только URL (виды href/download и листинги каталогов
// публикуются без тела, их URL указывает на Resource Module).
type PublishParams struct {
	// ResourceID — стабильный идентификатор ресурса в CKAN (наш CkanID)
	ResourceID string
	// PackageID — идентификатор пакета-владельца
	PackageID string
	// Name — название ресурса
	Name string
	// Description — описание
	Description string
	// Format — формат в нотации CKAN (ZIP, CSV…)
	Format string
	// Mimetype — MIME-тип содержимого
	Mimetype string
	// URL — публичный URL содержимого
	URL string
	// ViewType — тип представления (text_view, geo_view…), опционально
	ViewType string
	// Size — размер содержимого в байтах
	Size int64
	// Restricted — уровень доступа (JSON-строка CKAN-расширения restricted)
	Restricted string
	// UploadName — имя файла для multipart-загрузки
	UploadName string
}

// apiResponse — конверт ответа CKAN Action API.
type apiResponse struct {
	Success bool            `json:"success"`
	Error   *apiError       `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// apiError — тело ошибки CKAN Action API.
type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

package model

// StagingEntry — запись о принятом, но ещё не привязанном к ресурсу файле.
// Хранится в Redis под сгенерированным токеном с TTL (см. staging.Store),
// сериализуется в JSON.
type StagingEntry struct {
	// User — имя пользователя, загрузившего файл
	User string `json:"user"`
	// ContentType — заявленный MIME-тип файла
	ContentType string `json:"content_type"`
	// Name — оригинальное имя файла
	Name string `json:"name"`
	// Size — заявленный размер файла в байтах
	Size int64 `json:"size"`
	// Filename — абсолютный путь к staged-файлу на диске
	Filename string `json:"filename"`
	// RelatedModel — вид под-записи, созданной на шаге приёма (upload, ftp, store)
	RelatedModel ResourceKind `json:"related_model"`
	// RelatedPK — UUID под-записи для последующей привязки
	RelatedPK string `json:"related_pk"`
	// ResourcePK — UUID ресурса, проставляется при финализации
	ResourcePK string `json:"resource_pk,omitempty"`
}

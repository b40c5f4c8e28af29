package model

// ManifestEntry — один файл в манифесте директории ресурса.
// Производные данные: строятся заново при каждом обходе директории,
// никогда не кэшируются и не сохраняются.
type ManifestEntry struct {
	// Path — путь файла относительно корня директории ресурса
	Path string `json:"-"`
	// URL — внешний URL файла
	URL string `json:"url"`
	// ContentType — MIME-тип (по расширению либо по сигнатуре содержимого)
	ContentType string `json:"content-type"`
	// Size — размер файла в байтах
	Size int64 `json:"size"`
}

package model

// CkanView — тип представления ресурса в CKAN.
type CkanView string

const (
	ViewText    CkanView = "text_view"
	ViewGeo     CkanView = "geo_view"
	ViewRecline CkanView = "recline_view"
	ViewPDF     CkanView = "pdf_view"
)

// ResourceFormat — справочник допустимых форматов файлов.
// Read-mostly данные, хранятся в таблице resource_formats,
// раздаются через LRU-кэш (service.FormatService).
type ResourceFormat struct {
	// Slug — уникальный идентификатор формата (zip, csv, geojson...)
	Slug string
	// Description — человекочитаемое описание
	Description string
	// Extension — расширение файла без точки
	Extension string
	// MimeTypes — допустимые MIME-типы.
	// Одному расширению может соответствовать несколько типов
	// (например, zip → application/zip, application/x-zip-compressed).
	MimeTypes []string
	// Protocol — протокол синхронизации (опционально)
	Protocol string
	// CkanFormat — код формата в CKAN
	CkanFormat string
	// CkanView — тип представления в CKAN (опционально)
	CkanView CkanView
	// IsGISFormat — является ли формат ГИС-форматом
	IsGISFormat bool
}

// AcceptsMIME сообщает, входит ли contentType в допустимые MIME-типы формата.
func (f *ResourceFormat) AcceptsMIME(contentType string) bool {
	for _, m := range f.MimeTypes {
		if m == contentType {
			return true
		}
	}
	return false
}

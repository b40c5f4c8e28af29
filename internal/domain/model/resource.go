// Пакет model — доменные модели Resource Module.
// Resource — ресурс набора данных каталога, его вид (kind) определяется
// связанной под-записью: href, download, upload, ftp или store.
package model

import (
	"time"
)

// ResourceKind — вид ресурса, определяемый связанной под-записью.
type ResourceKind string

const (
	// KindHref — ресурс, ссылающийся на внешний URL
	KindHref ResourceKind = "href"
	// KindDownload — ресурс, скачиваемый с внешнего URL по расписанию
	KindDownload ResourceKind = "download"
	// KindUpload — ресурс из загруженного файла
	KindUpload ResourceKind = "upload"
	// KindFtp — ресурс из файла, выложенного на FTP
	KindFtp ResourceKind = "ftp"
	// KindStore — ресурс-хранилище (директория с содержимым архива)
	KindStore ResourceKind = "store"
)

// Valid проверяет, что значение kind допустимо.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindHref, KindDownload, KindUpload, KindFtp, KindStore:
		return true
	}
	return false
}

// FileKind сообщает, хранит ли ресурс этого вида физический файл.
func (k ResourceKind) FileKind() bool {
	switch k {
	case KindUpload, KindFtp, KindStore:
		return true
	}
	return false
}

// Language — язык ресурса.
type Language string

const (
	LangFrench  Language = "french"
	LangEnglish Language = "english"
	LangItalian Language = "italian"
	LangGerman  Language = "german"
	LangOther   Language = "other"
)

// Valid проверяет, что значение языка допустимо.
func (l Language) Valid() bool {
	switch l {
	case LangFrench, LangEnglish, LangItalian, LangGerman, LangOther:
		return true
	}
	return false
}

// ResourceType — тип ресурса с точки зрения каталога.
type ResourceType string

const (
	// TypeRaw — сырые данные
	TypeRaw ResourceType = "raw"
	// TypeAnnexe — сопроводительная документация
	TypeAnnexe ResourceType = "annexe"
	// TypeService — сервис
	TypeService ResourceType = "service"
)

// Valid проверяет, что значение типа допустимо.
func (t ResourceType) Valid() bool {
	switch t {
	case TypeRaw, TypeAnnexe, TypeService:
		return true
	}
	return false
}

// SyncFrequency — частота синхронизации для видов href и download.
// Используется внешним планировщиком, сам Resource Module расписание не ведёт.
type SyncFrequency string

// Допустимые частоты синхронизации.
var SyncFrequencies = []SyncFrequency{
	"5mn", "15mn", "20mn", "30mn",
	"1hour", "3hours", "6hours",
	"daily", "weekly", "bimonthly", "monthly",
	"quarterly", "biannual", "annual", "never",
}

// Valid проверяет, что значение частоты допустимо.
func (f SyncFrequency) Valid() bool {
	for _, v := range SyncFrequencies {
		if f == v {
			return true
		}
	}
	return false
}

// Resource — ресурс набора данных.
// Хранится в таблице resources, вид определяется под-записью (Link).
type Resource struct {
	// ID — UUID записи (внутренний идентификатор)
	ID string
	// CkanID — стабильный внешний идентификатор в CKAN.
	// Генерируется один раз при создании и никогда не меняется.
	CkanID string
	// DatasetID — UUID набора данных, которому принадлежит ресурс
	DatasetID string
	// Title — название ресурса
	Title string
	// Description — описание (опционально, Markdown)
	Description string
	// Language — язык ресурса
	Language Language
	// ResourceType — тип ресурса (raw, annexe, service)
	ResourceType ResourceType
	// FormatSlug — ссылка на ResourceFormat
	FormatSlug string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// LastUpdate — время последнего изменения
	LastUpdate time.Time

	// Link — единственная под-запись, определяющая вид ресурса.
	// Инвариант: у ресурса всегда ровно одна под-запись.
	Link *ResourceLink
}

// Kind возвращает вид ресурса по под-записи.
func (r *Resource) Kind() ResourceKind {
	if r.Link == nil {
		return ""
	}
	return r.Link.Kind
}

// ResourceLink — под-запись ресурса (одна на ресурс).
// Для видов href/download заполнены URL/Synchronise/SyncFrequency,
// для видов upload/ftp/store — FilePath/FileSize.
type ResourceLink struct {
	// ID — UUID под-записи
	ID string
	// ResourceID — UUID ресурса-владельца
	ResourceID string
	// Kind — вид под-записи (определяет таблицу)
	Kind ResourceKind

	// URL — внешний URL (href, download)
	URL string
	// Synchronise — включена ли синхронизация с внешним URL
	Synchronise bool
	// SyncFrequency — частота синхронизации
	SyncFrequency SyncFrequency

	// FilePath — абсолютный путь к файлу на диске (upload, ftp, store)
	FilePath string
	// FileSize — размер файла в байтах
	FileSize int64
}

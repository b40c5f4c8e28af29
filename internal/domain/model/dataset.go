package model

// Dataset — набор данных, которому принадлежат ресурсы.
// Resource Module читает наборы данных, но не управляет ими —
// жизненный цикл наборов ведёт родительское приложение каталога.
type Dataset struct {
	// ID — UUID набора данных
	ID string
	// Slug — человекочитаемый идентификатор
	Slug string
	// Title — название
	Title string
	// CkanID — идентификатор пакета в CKAN
	CkanID string
	// EditorUsername — имя пользователя-редактора.
	// Используется для поиска CKAN-учётки, если действующий
	// пользователь не передан явно.
	EditorUsername string
}

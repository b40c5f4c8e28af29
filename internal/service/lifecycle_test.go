package service

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/arturkryukov/geocat/resource-module/internal/domain/model"
)

// TestBuildResource_Defaults проверяет предзаполнение новой записи ресурса.
func TestBuildResource_Defaults(t *testing.T) {
	svc := &LifecycleService{}

	entry := &model.StagingEntry{
		Name:         "communes.zip",
		RelatedModel: model.KindStore,
	}
	res := svc.buildResource("ds-1", model.KindStore, &ResourceInput{}, entry)

	if res.ID == "" || res.CkanID == "" {
		t.Error("идентификаторы должны генерироваться при создании")
	}
	if res.ID == res.CkanID {
		t.Error("внутренний идентификатор и CkanID должны быть независимы")
	}
	if res.Title != "communes" {
		t.Errorf("название должно браться из имени файла, получено %q", res.Title)
	}
	if res.Language != model.LangFrench {
		t.Errorf("язык по умолчанию french, получен %q", res.Language)
	}
	if res.ResourceType != model.TypeRaw {
		t.Errorf("тип файлового ресурса по умолчанию raw, получен %q", res.ResourceType)
	}
}

// TestBuildResource_LinkDefaults проверяет умолчания для ссылочных видов.
func TestBuildResource_LinkDefaults(t *testing.T) {
	svc := &LifecycleService{}

	res := svc.buildResource("ds-1", model.KindHref, &ResourceInput{
		URL: "https://wms.example.com/service",
	}, nil)

	if res.Title != "https://wms.example.com/service" {
		t.Errorf("название ссылочного ресурса по умолчанию — URL, получено %q", res.Title)
	}
	if res.ResourceType != model.TypeService {
		t.Errorf("тип ссылочного ресурса по умолчанию service, получен %q", res.ResourceType)
	}
}

// TestBuildResource_ExplicitMetadata проверяет, что явные метаданные
// не перетираются умолчаниями.
func TestBuildResource_ExplicitMetadata(t *testing.T) {
	svc := &LifecycleService{}

	res := svc.buildResource("ds-1", model.KindUpload, &ResourceInput{
		Title:        "Границы коммун",
		Language:     model.LangEnglish,
		ResourceType: model.TypeAnnexe,
		FormatSlug:   "zip",
	}, &model.StagingEntry{Name: "communes.zip", RelatedModel: model.KindUpload})

	if res.Title != "Границы коммун" {
		t.Errorf("явное название потеряно: %q", res.Title)
	}
	if res.Language != model.LangEnglish {
		t.Errorf("явный язык потерян: %q", res.Language)
	}
	if res.ResourceType != model.TypeAnnexe {
		t.Errorf("явный тип потерян: %q", res.ResourceType)
	}
	if res.FormatSlug != "zip" {
		t.Errorf("явный формат потерян: %q", res.FormatSlug)
	}
}

// TestApplyMetadata проверяет частичное обновление метаданных.
func TestApplyMetadata(t *testing.T) {
	res := &model.Resource{
		Title:        "Старое название",
		Description:  "Старое описание",
		Language:     model.LangFrench,
		ResourceType: model.TypeRaw,
		FormatSlug:   "zip",
	}

	applyMetadata(res, &ResourceInput{Title: "Новое название"})

	if res.Title != "Новое название" {
		t.Errorf("название не обновлено: %q", res.Title)
	}
	if res.Description != "Старое описание" {
		t.Errorf("пустые поля не должны перетирать существующие: %q", res.Description)
	}
	if res.Language != model.LangFrench || res.FormatSlug != "zip" {
		t.Error("незаполненные поля input не должны менять ресурс")
	}
}

// TestSyncFrequencyOrDefault проверяет умолчание частоты синхронизации.
func TestSyncFrequencyOrDefault(t *testing.T) {
	if got := syncFrequencyOrDefault(""); got != "never" {
		t.Errorf("пустая частота должна давать never, получено %q", got)
	}
	if got := syncFrequencyOrDefault("daily"); got != "daily" {
		t.Errorf("допустимая частота должна сохраняться, получено %q", got)
	}
	if got := syncFrequencyOrDefault("each-femtosecond"); got != "never" {
		t.Errorf("недопустимая частота должна давать never, получено %q", got)
	}
}

// TestDurablePath проверяет построение долговременного пути файла.
func TestDurablePath(t *testing.T) {
	svc := &LifecycleService{uploadDir: "/srv/uploads"}

	got := svc.durablePath("res-1", "dir/../../etc/passwd")
	want := filepath.Join("/srv/uploads", "res-1", "passwd")
	if got != want {
		t.Errorf("durablePath = %q, ожидалось %q (путь усечён до базового имени)", got, want)
	}
}

// TestMaterializationError проверяет контракт ошибки материализации.
func TestMaterializationError(t *testing.T) {
	cause := errors.New("диск переполнен")
	err := error(&MaterializationError{ResourceID: "res-1", Err: cause})

	if !errors.Is(err, ErrMaterializationFailed) {
		t.Error("MaterializationError должна сопоставляться с ErrMaterializationFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("MaterializationError должна разворачиваться до причины")
	}

	var matErr *MaterializationError
	if !errors.As(err, &matErr) || matErr.ResourceID != "res-1" {
		t.Error("идентификатор ресурса должен быть доступен через errors.As")
	}
}

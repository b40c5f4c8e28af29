// handler.go — Handler собирает доменные обработчики Resource Module
// в один объект для регистрации маршрутов.
package handlers

// Handler — единая точка входа для всех endpoints.
type Handler struct {
	Uploads   *UploadsHandler
	Resources *ResourcesHandler
	Directory *DirectoryHandler
	Health    *HealthHandler
}

// NewHandler создаёт единый handler для всех endpoints.
func NewHandler(
	uploads *UploadsHandler,
	resources *ResourcesHandler,
	directory *DirectoryHandler,
	health *HealthHandler,
) *Handler {
	return &Handler{
		Uploads:   uploads,
		Resources: resources,
		Directory: directory,
		Health:    health,
	}
}

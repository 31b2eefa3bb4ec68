package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stanstork/medequip-events/internal/authz"
	"github.com/stanstork/medequip-events/internal/handlers"
	"github.com/stanstork/medequip-events/internal/models"
)

// NewRouter sets up the API routes. Everything under /api requires a bearer
// token; alert and failure listings are restricted to operators.
func NewRouter(
	jwtSecret string,
	health *handlers.HealthHandler,
	events *handlers.EventHandler,
	alerts *handlers.AlertHandler,
	notifications *handlers.NotificationHandler,
) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", health.Check).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authz.JWTMiddleware(jwtSecret))

	api.HandleFunc("/events", events.Submit).Methods(http.MethodPost)
	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", notifications.MarkRead).Methods(http.MethodPost)

	operators := []models.UserRole{models.RoleAdministrator, models.RoleSupervisor}
	api.Handle("/alerts", authz.RequireRoleHandler(http.HandlerFunc(alerts.ListActive), operators...)).Methods(http.MethodGet)
	api.Handle("/failures", authz.RequireRoleHandler(http.HandlerFunc(alerts.ListFailures), operators...)).Methods(http.MethodGet)

	return router
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/tenant-onboarding/internal/middleware"
)

// RouterConfig - параметры маршрутизации
type RouterConfig struct {
	AllowedOrigins []string
	// MetricsPath пустой - метрики не публикуются
	MetricsPath    string
	MetricsHandler http.Handler
}

// Router настраивает маршруты API
type Router struct {
	mux           *mux.Router
	logger        *slog.Logger
	cfg           RouterConfig
	wizardHandler *WizardHandler
	orgHandler    *OrgHandler
	importHandler *ImportHandler
}

// NewRouter создаёт новый роутер
func NewRouter(
	wizardHandler *WizardHandler,
	orgHandler *OrgHandler,
	importHandler *ImportHandler,
	cfg RouterConfig,
	logger *slog.Logger,
) *Router {
	return &Router{
		mux:           mux.NewRouter(),
		logger:        logger,
		cfg:           cfg,
		wizardHandler: wizardHandler,
		orgHandler:    orgHandler,
		importHandler: importHandler,
	}
}

// Setup настраивает все маршруты
func (r *Router) Setup() http.Handler {
	r.mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	if r.cfg.MetricsPath != "" && r.cfg.MetricsHandler != nil {
		r.mux.Handle(r.cfg.MetricsPath, r.cfg.MetricsHandler).Methods(http.MethodGet)
	}

	// Шаблоны не зависят от арендатора
	r.mux.HandleFunc("/imports/templates/{type}", r.importHandler.Template).Methods(http.MethodGet)

	api := r.mux.PathPrefix("/").Subrouter()
	api.Use(middleware.Tenant)

	setup := api.PathPrefix("/setup").Subrouter()
	setup.HandleFunc("/progress", r.wizardHandler.Progress).Methods(http.MethodGet)
	setup.HandleFunc("/steps/{step:[0-9]+}", r.wizardHandler.GetStep).Methods(http.MethodGet)
	setup.HandleFunc("/steps/{step:[0-9]+}", r.wizardHandler.SaveStep).Methods(http.MethodPut)
	setup.HandleFunc("/steps/{step:[0-9]+}/draft", r.wizardHandler.SaveDraft).Methods(http.MethodPut)
	setup.HandleFunc("/steps/{step:[0-9]+}/skip", r.wizardHandler.SkipStep).Methods(http.MethodPost)

	api.HandleFunc("/departments", r.orgHandler.ListDepartments).Methods(http.MethodGet)
	api.HandleFunc("/departments", r.orgHandler.CreateDepartment).Methods(http.MethodPost)
	api.HandleFunc("/departments/{id}", r.orgHandler.GetDepartment).Methods(http.MethodGet)
	api.HandleFunc("/departments/{id}", r.orgHandler.UpdateDepartment).Methods(http.MethodPatch)
	api.HandleFunc("/departments/{id}", r.orgHandler.DeleteDepartment).Methods(http.MethodDelete)

	api.HandleFunc("/positions", r.orgHandler.ListPositions).Methods(http.MethodGet)
	api.HandleFunc("/positions", r.orgHandler.CreatePosition).Methods(http.MethodPost)
	api.HandleFunc("/positions/{id}", r.orgHandler.GetPosition).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}", r.orgHandler.UpdatePosition).Methods(http.MethodPatch)
	api.HandleFunc("/positions/{id}", r.orgHandler.DeletePosition).Methods(http.MethodDelete)

	api.HandleFunc("/imports", r.importHandler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/imports", r.importHandler.Upload).Methods(http.MethodPost)
	api.HandleFunc("/imports/{id}", r.importHandler.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/imports/{id}/process", r.importHandler.Process).Methods(http.MethodPost)

	r.mux.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
	r.mux.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	})

	// Применяем middleware
	var handler http.Handler = middleware.ContentType(r.mux)
	handler = middleware.Logger(r.logger)(handler)
	handler = middleware.Recoverer(r.logger)(handler)
	handler = middleware.RequestID(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins: r.cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", middleware.TenantHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}).Handler(handler)

	return handler
}

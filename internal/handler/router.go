package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/handler/chat"
	"github.com/zhouzirui/serene/backend/internal/handler/insight"
	"github.com/zhouzirui/serene/backend/internal/handler/memory"
	middlewarePkg "github.com/zhouzirui/serene/backend/internal/middleware"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// Deps are the services the HTTP surface is built from.
type Deps struct {
	Chat           chat.TurnService
	ChatOptions    chat.Options
	Memory         memory.Store
	Insight        insight.Service
	Metrics        http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "Serene Backend Online"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	chatOpts := deps.ChatOptions
	if chatOpts.AllowedOrigins == nil {
		chatOpts.AllowedOrigins = deps.AllowedOrigins
	}

	r.Route("/api", func(api chi.Router) {
		chat.New(deps.Chat, chatOpts, logger).RegisterRoutes(api)
		memory.New(deps.Memory, logger).RegisterRoutes(api)
		insight.New(deps.Insight, logger).RegisterRoutes(api)
	})

	return r
}

package memory

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	memoryModel "github.com/zhouzirui/serene/backend/internal/model/memory"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// Store is the read and delete surface of the memory store.
type Store interface {
	GetAll() []memoryModel.Fact
	GetContext() string
	Delete(ctx context.Context, id string) (bool, error)
}

// Handler 长期记忆的HTTP处理器
type Handler struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger.Named("memory")}
}

// RegisterRoutes 注册记忆相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/memories", h.handleList)
	r.Get("/memories/context", h.handleContext)
	r.Delete("/memories/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	facts := h.store.GetAll()
	if facts == nil {
		facts = []memoryModel.Fact{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"memories": facts})
}

func (h *Handler) handleContext(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"context": h.store.GetContext()})
}

// handleDelete answers {"success": false} for unknown ids; only a failed
// write is an error.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("delete memory failed", zap.String("id", id), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete memory")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": removed})
}

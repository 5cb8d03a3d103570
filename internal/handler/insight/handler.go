package insight

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/service/ai"
	insightService "github.com/zhouzirui/serene/backend/internal/service/insight"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// Service is the insight generation surface.
type Service interface {
	AnalyzeSentiment(ctx context.Context, text string) insightService.Sentiment
	AnalyzeThought(ctx context.Context, thought string) (insightService.ThoughtPattern, error)
	TaskBreakdown(ctx context.Context, title string) (string, error)
	DailyInsight(ctx context.Context, mood string) (string, error)
	JournalPrompt(ctx context.Context) (string, error)
	TaskInsight(ctx context.Context, title, category string) (string, error)
	ClinicalSummary(ctx context.Context, userName string, records insightService.Records) (string, error)
	AssessmentQuestions(ctx context.Context, records insightService.Records) ([]string, error)
	WellnessAssessment(ctx context.Context, records insightService.Records, answers []insightService.QAPair) (insightService.WellnessReport, error)
}

// Handler 辅助洞察接口的HTTP处理器
type Handler struct {
	svc    Service
	logger *zap.Logger
}

func New(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("insight")}
}

// RegisterRoutes 注册洞察相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze-sentiment", h.handleSentiment)
	r.Post("/analyze-thought-pattern", h.handleThought)
	r.Post("/generate-task-breakdown", h.handleTaskBreakdown)
	r.Post("/daily-insight", h.handleDailyInsight)
	r.Post("/journal-prompt", h.handleJournalPrompt)
	r.Post("/task-insight", h.handleTaskInsight)
	r.Post("/clinical-summary", h.handleClinicalSummary)
	r.Post("/assessment-questions", h.handleAssessmentQuestions)
	r.Post("/wellness-assessment", h.handleWellnessAssessment)
}

func (h *Handler) handleSentiment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &payload) {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"result": h.svc.AnalyzeSentiment(r.Context(), payload.Text)})
}

func (h *Handler) handleThought(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Thought string `json:"thought"`
	}
	if !decode(w, r, &payload) {
		return
	}
	result, err := h.svc.AnalyzeThought(r.Context(), payload.Thought)
	if err != nil {
		h.fail(w, "analyze thought", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (h *Handler) handleTaskBreakdown(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TaskTitle string `json:"task_title"`
	}
	if !decode(w, r, &payload) {
		return
	}
	text, err := h.svc.TaskBreakdown(r.Context(), payload.TaskTitle)
	if err != nil {
		h.fail(w, "task breakdown", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"description": text})
}

func (h *Handler) handleDailyInsight(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RecentMood string `json:"recent_mood"`
	}
	if !decode(w, r, &payload) {
		return
	}
	h.respondText(w, "daily insight", func() (string, error) {
		return h.svc.DailyInsight(r.Context(), payload.RecentMood)
	})
}

func (h *Handler) handleJournalPrompt(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, "journal prompt", func() (string, error) {
		return h.svc.JournalPrompt(r.Context())
	})
}

func (h *Handler) handleTaskInsight(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TaskTitle    string `json:"task_title"`
		TaskCategory string `json:"task_category"`
	}
	if !decode(w, r, &payload) {
		return
	}
	h.respondText(w, "task insight", func() (string, error) {
		return h.svc.TaskInsight(r.Context(), payload.TaskTitle, payload.TaskCategory)
	})
}

func (h *Handler) handleClinicalSummary(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		insightService.Records
		UserName string `json:"user_name"`
	}
	if !decode(w, r, &payload) {
		return
	}
	h.respondText(w, "clinical summary", func() (string, error) {
		return h.svc.ClinicalSummary(r.Context(), payload.UserName, payload.Records)
	})
}

func (h *Handler) handleAssessmentQuestions(w http.ResponseWriter, r *http.Request) {
	var payload insightService.Records
	if !decode(w, r, &payload) {
		return
	}
	questions, err := h.svc.AssessmentQuestions(r.Context(), payload)
	if err != nil {
		h.fail(w, "assessment questions", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (h *Handler) handleWellnessAssessment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		insightService.Records
		QAPairs []insightService.QAPair `json:"qa_pairs"`
	}
	if !decode(w, r, &payload) {
		return
	}
	report, err := h.svc.WellnessAssessment(r.Context(), payload.Records, payload.QAPairs)
	if err != nil {
		h.fail(w, "wellness assessment", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"result": report})
}

func (h *Handler) respondText(w http.ResponseWriter, op string, fn func() (string, error)) {
	text, err := fn()
	if err != nil {
		h.fail(w, op, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, insightService.ErrMissingInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ai.ErrGeneration):
		h.logger.Warn("insight generation failed", zap.String("op", op), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, op+" failed")
	default:
		h.logger.Error("insight failed", zap.String("op", op), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, op+" failed")
	}
}

// decode reads an optional JSON body; an empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/dialogue"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// PhaseHeader carries the routed phase on plain text replies.
const PhaseHeader = "X-Dialogue-Phase"

// TurnService runs turns and schedules memory extraction after them.
type TurnService interface {
	Turn(ctx context.Context, history []chat.Message, phase dialogue.Phase) (*dialogue.State, error)
	Remember(transcript []chat.Message)
}

// Options 控制回复分块下发。
type Options struct {
	ChunkSize  int
	ChunkDelay time.Duration
	// AllowedOrigins limits WebSocket upgrades; empty admits every origin.
	AllowedOrigins []string
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	svc    TurnService
	opts   Options
	logger *zap.Logger
	socket *Socket
}

// New 创建聊天处理器
func New(svc TurnService, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 10
	}
	logger = logger.Named("chat")
	return &Handler{
		svc:    svc,
		opts:   opts,
		logger: logger,
		socket: newSocket(svc, opts, logger),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/ws", h.socket.handle)
}

type wireMessage struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts,omitempty"`
}

type chatRequest struct {
	Messages []wireMessage `json:"messages"`
	Phase    string        `json:"phase"`
}

// decodeMessages accepts both {role, text} and the {role, parts:[{text}]}
// shape older clients send.
func decodeMessages(in []wireMessage) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(in))
	for i, m := range in {
		role, ok := chat.ParseRole(m.Role)
		if !ok {
			return nil, fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
		text := m.Text
		if text == "" && len(m.Parts) > 0 {
			parts := make([]string, 0, len(m.Parts))
			for _, p := range m.Parts {
				parts = append(parts, p.Text)
			}
			text = strings.Join(parts, "")
		}
		out = append(out, chat.Message{Role: role, Text: text})
	}
	return out, nil
}

// handleChat 执行一轮对话并分块返回回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	history, err := decodeMessages(payload.Messages)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	phase, err := dialogue.ParsePhase(payload.Phase)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.svc.Turn(r.Context(), history, phase)
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("chat turn failed", zap.Error(err))
		}
		utils.RespondError(w, status, message)
		return
	}

	reply := chatService.Reply(state)
	var complete bool
	if wantsEventStream(r) {
		complete = h.writeEvents(w, r, state.Phase, reply.Text)
	} else {
		complete = h.writeChunks(w, r, state.Phase, reply.Text)
	}
	if complete {
		h.svc.Remember(state.Messages)
	}
}

func (h *Handler) writeChunks(w http.ResponseWriter, r *http.Request, phase dialogue.Phase, text string) bool {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(PhaseHeader, string(phase))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for _, chunk := range utils.Chunks(text, h.opts.ChunkSize) {
		if _, err := w.Write([]byte(chunk)); err != nil {
			h.logger.Debug("client went away", zap.Error(err))
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		if !h.pause(r.Context()) {
			return false
		}
	}
	return true
}

func (h *Handler) writeEvents(w http.ResponseWriter, r *http.Request, phase dialogue.Phase, text string) bool {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return false
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "phase", map[string]string{"phase": string(phase)}); err != nil {
		return false
	}
	for _, chunk := range utils.Chunks(text, h.opts.ChunkSize) {
		if err := utils.SendSSEEvent(w, flusher, "delta", map[string]string{"text": chunk}); err != nil {
			h.logger.Debug("client went away", zap.Error(err))
			return false
		}
		if !h.pause(r.Context()) {
			return false
		}
	}
	return utils.SendSSEEvent(w, flusher, "end", map[string]any{"phase": string(phase), "text": text}) == nil
}

// pause waits ChunkDelay and reports whether the request is still alive.
func (h *Handler) pause(ctx context.Context) bool {
	if h.opts.ChunkDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(h.opts.ChunkDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// statusFor maps turn errors to an HTTP status and a client facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrEmptyConversation), errors.Is(err, chatService.ErrLastMessageNotUser):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request cancelled"
	case errors.Is(err, ai.ErrGeneration):
		return http.StatusBadGateway, "reply generation failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

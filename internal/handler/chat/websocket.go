package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/dialogue"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

const (
	socketReadTimeout  = 60 * time.Second
	socketWriteTimeout = 10 * time.Second
	socketPingInterval = 54 * time.Second
)

// Socket serves multi-turn chat over a WebSocket. Each connection owns its
// transcript and phase, so clients only send the new user text.
type Socket struct {
	svc         TurnService
	opts        Options
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

func newSocket(svc TurnService, opts Options, logger *zap.Logger) *Socket {
	return &Socket{
		svc:         svc,
		opts:        opts,
		logger:      logger.Named("ws"),
		readTimeout: socketReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(opts.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// originChecker admits requests without an Origin header and, when origins
// is non-empty, only the listed browser origins. An empty list admits all.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Phase     string `json:"phase,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	transcript []chat.Message
	phase      dialogue.Phase
}

func newConnectionState() *connectionState {
	return &connectionState{phase: dialogue.PhaseStart}
}

func (s *connectionState) reset() {
	s.transcript = nil
	s.phase = dialogue.PhaseStart
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	logger *zap.Logger
}

func (c *conn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteTimeout))
}

// handle 处理WebSocket连接
func (s *Socket) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, logger: s.logger}
	state := newConnectionState()
	s.logger.Info("connection opened", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())

	_ = ws.SetReadDeadline(time.Now().Add(s.readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pingLoop(ctx, c)
	}()
	defer wg.Wait()
	defer cancel()

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "message":
			s.handleText(ctx, c, state, msg.Text)
		case "reset":
			state.reset()
			_ = c.send(outgoingMessage{Type: "reset", Phase: string(state.phase)})
		default:
			_ = c.send(outgoingMessage{Type: "error", Error: "unsupported message type: " + msg.Type})
		}
		// a turn may outlast the read timeout
		_ = ws.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

// handleText runs one turn. The transcript only grows when the turn succeeds.
func (s *Socket) handleText(ctx context.Context, c *conn, state *connectionState, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		_ = c.send(outgoingMessage{Type: "error", Error: chatService.ErrLastMessageNotUser.Error()})
		return
	}

	history := append(append([]chat.Message(nil), state.transcript...), chat.UserMessage(text))
	out, err := s.svc.Turn(ctx, history, state.phase)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		_, message := statusFor(err)
		s.logger.Warn("turn failed", zap.Error(err))
		_ = c.send(outgoingMessage{Type: "error", Error: message})
		return
	}

	state.transcript = out.Messages
	state.phase = out.Phase
	reply := chatService.Reply(out)

	if err := c.send(outgoingMessage{Type: "phase", Phase: string(out.Phase)}); err != nil {
		return
	}
	for _, chunk := range utils.Chunks(reply.Text, s.opts.ChunkSize) {
		if err := c.send(outgoingMessage{Type: "delta", Text: chunk}); err != nil {
			return
		}
	}
	if err := c.send(outgoingMessage{Type: "reply", Phase: string(out.Phase), Text: reply.Text}); err != nil {
		return
	}
	s.svc.Remember(state.transcript)
}

// pingLoop 定期发送ping消息
func (s *Socket) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(socketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

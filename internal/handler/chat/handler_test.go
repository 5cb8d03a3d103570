package chat

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/dialogue"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
)

type fakeTurns struct {
	mu         sync.Mutex
	reply      string
	phase      dialogue.Phase
	err        error
	histories  [][]chat.Message
	phases     []dialogue.Phase
	remembered [][]chat.Message
}

func (f *fakeTurns) Turn(_ context.Context, history []chat.Message, phase dialogue.Phase) (*dialogue.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	f.phases = append(f.phases, phase)
	if f.err != nil {
		return nil, f.err
	}
	if err := chatService.Validate(history); err != nil {
		return nil, err
	}
	messages := append(append([]chat.Message(nil), history...), chat.AssistantMessage(f.reply))
	return &dialogue.State{Messages: messages, Phase: f.phase}, nil
}

func (f *fakeTurns) Remember(transcript []chat.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remembered = append(f.remembered, transcript)
}

func (f *fakeTurns) rememberedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.remembered)
}

func setupRouter(svc TurnService) *chi.Mux {
	r := chi.NewRouter()
	New(svc, Options{ChunkSize: 10}, nil).RegisterRoutes(r)
	return r
}

func postChat(r http.Handler, body string, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatStreamsPlainText(t *testing.T) {
	svc := &fakeTurns{reply: "I hear how heavy that feels.", phase: dialogue.PhaseStructuredTherapy}
	r := setupRouter(svc)

	body := `{"messages":[{"role":"user","parts":[{"text":"hi"}]},{"role":"model","text":"hello"},{"role":"user","text":"I feel hopeless about my job"}]}`
	resp := postChat(r, body, "")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get(PhaseHeader); got != "structured_therapy" {
		t.Fatalf("unexpected phase header %q", got)
	}
	if resp.Body.String() != "I hear how heavy that feels." {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}

	history := svc.histories[0]
	if len(history) != 3 || history[0].Text != "hi" || history[1].Role != chat.RoleAssistant {
		t.Fatalf("history decoded badly: %+v", history)
	}
	if svc.phases[0] != dialogue.PhaseStart {
		t.Fatalf("expected start phase, got %s", svc.phases[0])
	}
	if len(svc.remembered) != 1 || len(svc.remembered[0]) != 4 {
		t.Fatalf("expected extraction over the full transcript, got %+v", svc.remembered)
	}
}

func TestChatStreamsServerSentEvents(t *testing.T) {
	svc := &fakeTurns{reply: "Please reach out to 988 right now.", phase: dialogue.PhaseCrisis}
	r := setupRouter(svc)

	resp := postChat(r, `{"messages":[{"role":"user","text":"I want to end it all"}],"phase":"general"}`, "text/event-stream")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	out := resp.Body.String()
	if !strings.HasPrefix(out, "event: phase\ndata: {\"phase\":\"crisis\"}\n\n") {
		t.Fatalf("missing phase event: %q", out)
	}
	if strings.Count(out, "event: delta") != 4 {
		t.Fatalf("expected 4 delta events: %q", out)
	}
	if !strings.Contains(out, "event: end\n") {
		t.Fatalf("missing end event: %q", out)
	}
	if svc.phases[0] != dialogue.PhaseGeneral {
		t.Fatalf("caller phase not forwarded: %s", svc.phases[0])
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	r := setupRouter(&fakeTurns{reply: "x"})

	cases := map[string]string{
		"malformed":      `{"messages":`,
		"unknown role":   `{"messages":[{"role":"robot","text":"hi"}]}`,
		"unknown phase":  `{"messages":[{"role":"user","text":"hi"}],"phase":"sleepy"}`,
		"empty":          `{"messages":[]}`,
		"assistant last": `{"messages":[{"role":"user","text":"hi"},{"role":"assistant","text":"yo"}]}`,
	}
	for name, body := range cases {
		if resp := postChat(r, body, ""); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
	}
}

func TestChatGenerationFailure(t *testing.T) {
	svc := &fakeTurns{err: ai.Fail("dialogue", errors.New("quota"))}
	r := setupRouter(svc)

	resp := postChat(r, `{"messages":[{"role":"user","text":"hi"}]}`, "")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if svc.rememberedCount() != 0 {
		t.Fatal("failed turns must not schedule extraction")
	}
}

func dialSocket(t *testing.T, svc TurnService) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(setupRouter(svc))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readUntil(t *testing.T, ws *websocket.Conn, kind string) []outgoingMessage {
	t.Helper()
	var seen []outgoingMessage
	for {
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg outgoingMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("read err: %v", err)
		}
		seen = append(seen, msg)
		if msg.Type == kind {
			return seen
		}
	}
}

func TestSocketCarriesTranscriptAndPhase(t *testing.T) {
	svc := &fakeTurns{reply: "That sounds hard.", phase: dialogue.PhaseStructuredTherapy}
	ws := dialSocket(t, svc)

	if err := ws.WriteJSON(inboundMessage{Type: "message", Text: "I'm so anxious"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	msgs := readUntil(t, ws, "reply")
	if msgs[0].Type != "phase" || msgs[0].Phase != "structured_therapy" {
		t.Fatalf("expected phase first, got %+v", msgs[0])
	}
	if last := msgs[len(msgs)-1]; last.Text != "That sounds hard." {
		t.Fatalf("unexpected reply %+v", last)
	}

	if err := ws.WriteJSON(inboundMessage{Type: "message", Text: "my boss emailed"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, ws, "reply")

	svc.mu.Lock()
	second, secondPhase := svc.histories[1], svc.phases[1]
	svc.mu.Unlock()
	if len(second) != 3 || second[2].Text != "my boss emailed" {
		t.Fatalf("transcript not carried: %+v", second)
	}
	if secondPhase != dialogue.PhaseStructuredTherapy {
		t.Fatalf("phase not carried: %s", secondPhase)
	}

	if err := ws.WriteJSON(inboundMessage{Type: "reset"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if msgs := readUntil(t, ws, "reset"); msgs[len(msgs)-1].Phase != "start" {
		t.Fatalf("reset must return to start: %+v", msgs)
	}
	if svc.rememberedCount() != 2 {
		t.Fatalf("expected two scheduled extractions, got %d", svc.rememberedCount())
	}
}

func TestSocketReportsErrors(t *testing.T) {
	svc := &fakeTurns{err: ai.Fail("dialogue", errors.New("down"))}
	ws := dialSocket(t, svc)

	if err := ws.WriteJSON(inboundMessage{Type: "message", Text: "hello"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	msgs := readUntil(t, ws, "error")
	if msgs[0].Error != "reply generation failed" {
		t.Fatalf("unexpected error %+v", msgs[0])
	}

	if err := ws.WriteJSON(inboundMessage{Type: "dance"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if msgs := readUntil(t, ws, "error"); !strings.Contains(msgs[0].Error, "unsupported") {
		t.Fatalf("unexpected error %+v", msgs[0])
	}
}

func TestOriginChecker(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	listed := originChecker([]string{"http://localhost:5173"})
	if !listed(request("")) {
		t.Fatalf("requests without origin must pass")
	}
	if !listed(request("http://localhost:5173")) {
		t.Fatalf("listed origin must pass")
	}
	if listed(request("https://evil.example")) {
		t.Fatalf("unlisted origin must be rejected")
	}

	if !originChecker(nil)(request("https://any.example")) {
		t.Fatalf("empty allow-list admits every origin")
	}
	if !originChecker([]string{"*"})(request("https://any.example")) {
		t.Fatalf("wildcard admits every origin")
	}
}

type slowTurns struct {
	*fakeTurns
	delay time.Duration
}

func (s slowTurns) Turn(ctx context.Context, history []chat.Message, phase dialogue.Phase) (*dialogue.State, error) {
	time.Sleep(s.delay)
	return s.fakeTurns.Turn(ctx, history, phase)
}

func TestSocketSurvivesTurnLongerThanReadTimeout(t *testing.T) {
	svc := slowTurns{fakeTurns: &fakeTurns{reply: "Take your time.", phase: dialogue.PhaseGeneral}, delay: 600 * time.Millisecond}
	h := New(svc, Options{ChunkSize: 10}, nil)
	h.socket.readTimeout = 200 * time.Millisecond
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/chat/ws", nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer ws.Close()

	for _, text := range []string{"first", "second"} {
		if err := ws.WriteJSON(inboundMessage{Type: "message", Text: text}); err != nil {
			t.Fatalf("write err: %v", err)
		}
		msgs := readUntil(t, ws, "reply")
		if got := msgs[len(msgs)-1].Text; got != "Take your time." {
			t.Fatalf("unexpected reply %q after %q", got, text)
		}
	}
}

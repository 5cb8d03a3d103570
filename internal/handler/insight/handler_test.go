package insight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	insightService "github.com/zhouzirui/serene/backend/internal/service/insight"
)

type cannedGenerator struct {
	text string
	json string
	err  error
}

func (g cannedGenerator) Generate(context.Context, string, []chat.Message) (string, error) {
	return g.text, g.err
}

func (g cannedGenerator) GenerateJSON(context.Context, string) (string, error) {
	return g.json, g.err
}

func post(gen cannedGenerator, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	New(insightService.NewService(gen, nil), nil).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestTextRoutes(t *testing.T) {
	gen := cannedGenerator{text: "You did well today."}
	cases := map[string]string{
		"/daily-insight":    `{"recent_mood":"tired"}`,
		"/journal-prompt":   ``,
		"/task-insight":     `{"task_title":"Walk","task_category":"Wellness"}`,
		"/clinical-summary": `{"user_name":"Ana","mood_history":[{"mood":"low"}],"journal_history":[],"tasks":[{"title":"x","completed":true}]}`,
	}
	for path, body := range cases {
		rec := post(gen, path, body)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"text":"You did well today."}`, rec.Body.String(), path)
	}

	rec := post(gen, "/generate-task-breakdown", `{"task_title":"Clean desk"}`)
	assert.JSONEq(t, `{"description":"You did well today."}`, rec.Body.String())
}

func TestSentimentRouteFallsBack(t *testing.T) {
	rec := post(cannedGenerator{err: errors.New("down")}, "/analyze-sentiment", `{"text":"I feel calm and happy"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"Positive"`)
	assert.Contains(t, rec.Body.String(), `"source":"heuristic"`)
}

func TestJSONRoutes(t *testing.T) {
	rec := post(cannedGenerator{json: `{"distortion":"Mind Reading","explanation":"e","reframe":"r"}`}, "/analyze-thought-pattern", `{"thought":"They hate me"}`)
	assert.JSONEq(t, `{"result":{"distortion":"Mind Reading","explanation":"e","reframe":"r"}}`, rec.Body.String())

	rec = post(cannedGenerator{json: `["How are you sleeping?"]`}, "/assessment-questions", `{"mood_history":[],"journal_history":[],"tasks":[]}`)
	assert.JSONEq(t, `{"questions":["How are you sleeping?"]}`, rec.Body.String())

	rec = post(cannedGenerator{json: `{"currentVibe":"calm","emotionalPatterns":"steady","keyInsights":["a"],"recommendations":"rest"}`}, "/wellness-assessment", `{"qa_pairs":[{"question":"q","answer":"a"}]}`)
	assert.JSONEq(t, `{"result":{"currentVibe":"calm","emotionalPatterns":"steady","keyInsights":"a","recommendations":"rest"}}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	rec := post(cannedGenerator{}, "/analyze-thought-pattern", `{"thought":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(cannedGenerator{err: errors.New("quota")}, "/journal-prompt", ``)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = post(cannedGenerator{}, "/daily-insight", `{"recent_mood":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

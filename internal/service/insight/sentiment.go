package insight

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
)

// Sentiment sources.
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

type Sentiment struct {
	Score    float64  `json:"score"`
	Label    string   `json:"label"`
	Emotions []string `json:"emotions"`
	Source   string   `json:"source"`
}

type sentimentPayload struct {
	Score    float64  `json:"score"`
	Label    string   `json:"label"`
	Emotions []string `json:"emotions"`
}

// AnalyzeSentiment asks the model for a sentiment reading and falls back to
// the keyword heuristic when the model fails or answers badly. It never
// returns an error.
func (s *Service) AnalyzeSentiment(ctx context.Context, text string) Sentiment {
	text = strings.TrimSpace(text)
	if text == "" {
		return fromHeuristic(sentiment.Analyze(text))
	}

	var payload sentimentPayload
	if err := s.object(ctx, "analyze sentiment", sentimentPrompt(text), '{', &payload); err != nil {
		s.logger.Info("sentiment fallback", zap.Error(err))
		return fromHeuristic(sentiment.Analyze(text))
	}

	score := sentiment.Clamp(payload.Score)
	label, ok := parseLabel(payload.Label)
	if !ok {
		label = sentiment.LabelFor(score)
	}
	emotions := make([]string, 0, len(payload.Emotions))
	for _, e := range payload.Emotions {
		if e = strings.TrimSpace(e); e != "" {
			emotions = append(emotions, e)
		}
	}
	return Sentiment{Score: score, Label: string(label), Emotions: emotions, Source: SourceModel}
}

func fromHeuristic(r sentiment.Result) Sentiment {
	emotions := r.Emotions
	if emotions == nil {
		emotions = []string{}
	}
	return Sentiment{Score: r.Score, Label: string(r.Label), Emotions: emotions, Source: SourceHeuristic}
}

func parseLabel(raw string) (sentiment.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive":
		return sentiment.Positive, true
	case "neutral":
		return sentiment.Neutral, true
	case "negative":
		return sentiment.Negative, true
	default:
		return "", false
	}
}

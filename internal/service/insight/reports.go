package insight

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

// ErrMissingInput is returned when a required field is blank.
var ErrMissingInput = errors.New("missing required input")

type ThoughtPattern struct {
	Distortion  string `json:"distortion"`
	Explanation string `json:"explanation"`
	Reframe     string `json:"reframe"`
}

type WellnessReport struct {
	CurrentVibe       Text `json:"currentVibe"`
	EmotionalPatterns Text `json:"emotionalPatterns"`
	KeyInsights       Text `json:"keyInsights"`
	Recommendations   Text `json:"recommendations"`
}

// Text decodes either a JSON string or a list of strings, which models use
// interchangeably for report sections. Lists are joined one item per line.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*t = Text(strings.Join(items, "\n"))
	return nil
}

func (s *Service) AnalyzeThought(ctx context.Context, thought string) (ThoughtPattern, error) {
	thought = strings.TrimSpace(thought)
	if thought == "" {
		return ThoughtPattern{}, ErrMissingInput
	}
	var out ThoughtPattern
	if err := s.object(ctx, "analyze thought", thoughtPrompt(thought), '{', &out); err != nil {
		return ThoughtPattern{}, err
	}
	if strings.TrimSpace(out.Reframe) == "" {
		return ThoughtPattern{}, ai.Fail("analyze thought", ai.ErrEmptyResponse)
	}
	return out, nil
}

func (s *Service) TaskBreakdown(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrMissingInput
	}
	return s.text(ctx, "task breakdown", taskBreakdownPrompt(title))
}

// DailyInsight tailors the insight to mood when one is given.
func (s *Service) DailyInsight(ctx context.Context, mood string) (string, error) {
	return s.text(ctx, "daily insight", dailyInsightPrompt(strings.TrimSpace(mood)))
}

func (s *Service) JournalPrompt(ctx context.Context) (string, error) {
	return s.text(ctx, "journal prompt", journalPrompt)
}

func (s *Service) TaskInsight(ctx context.Context, title, category string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrMissingInput
	}
	return s.text(ctx, "task insight", taskInsightPrompt(title, strings.TrimSpace(category)))
}

func (s *Service) ClinicalSummary(ctx context.Context, userName string, records Records) (string, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		userName = "Anonymous"
	}
	return s.text(ctx, "clinical summary", clinicalSummaryPrompt(userName, records))
}

// AssessmentQuestions returns the non-blank questions the model proposed.
func (s *Service) AssessmentQuestions(ctx context.Context, records Records) ([]string, error) {
	var raw []string
	if err := s.object(ctx, "assessment questions", assessmentQuestionsPrompt(records), '[', &raw); err != nil {
		return nil, err
	}
	questions := make([]string, 0, len(raw))
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil, ai.Fail("assessment questions", ai.ErrEmptyResponse)
	}
	return questions, nil
}

func (s *Service) WellnessAssessment(ctx context.Context, records Records, answers []QAPair) (WellnessReport, error) {
	var out WellnessReport
	if err := s.object(ctx, "wellness assessment", wellnessAssessmentPrompt(records, answers), '{', &out); err != nil {
		return WellnessReport{}, err
	}
	return out, nil
}

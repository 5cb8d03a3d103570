// Package sentiment scores free text with keyword buckets. It backs the LLM
// sentiment analysis whenever the model is unavailable or answers badly.
package sentiment

import (
	"sort"
	"strings"
)

// Label is the coarse polarity of a text.
type Label string

const (
	Positive Label = "Positive"
	Neutral  Label = "Neutral"
	Negative Label = "Negative"
)

// Result is a sentiment decision. Score is in [-1, 1].
type Result struct {
	Score    float64
	Label    Label
	Emotions []string
}

type bucket struct {
	emotion  string
	polarity int
	keywords []string
}

var buckets = []bucket{
	{emotion: "Anxious", polarity: -1, keywords: []string{"anxious", "anxiety", "nervous", "worried", "worry", "panic", "on edge", "scared", "afraid"}},
	{emotion: "Sad", polarity: -1, keywords: []string{"sad", "depressed", "down", "cry", "crying", "lonely", "hopeless", "empty", "grief", "heartbroken"}},
	{emotion: "Angry", polarity: -1, keywords: []string{"angry", "furious", "mad", "annoyed", "frustrated", "irritated", "hate", "rage"}},
	{emotion: "Overwhelmed", polarity: -1, keywords: []string{"overwhelmed", "stressed", "exhausted", "burned out", "burnt out", "too much", "stuck", "drained"}},
	{emotion: "Happy", polarity: 1, keywords: []string{"happy", "glad", "great", "good", "joy", "excited", "love", "wonderful", "awesome", "thanks"}},
	{emotion: "Hopeful", polarity: 1, keywords: []string{"hopeful", "optimistic", "looking forward", "better", "progress", "proud"}},
	{emotion: "Calm", polarity: 1, keywords: []string{"calm", "relaxed", "peaceful", "rested", "grounded", "content"}},
}

// neutralBand is the half-width of the score range labelled Neutral.
const neutralBand = 0.2

// Analyze scores text. Empty or keyword-free text is Neutral with score 0.
func Analyze(text string) Result {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Result{Label: Neutral}
	}

	hits := make(map[string]int)
	var positive, negative int
	for _, b := range buckets {
		for _, word := range b.keywords {
			if strings.Contains(normalized, word) {
				hits[b.emotion]++
				if b.polarity > 0 {
					positive++
				} else {
					negative++
				}
			}
		}
	}

	total := positive + negative
	if total == 0 {
		return Result{Label: Neutral}
	}

	score := float64(positive-negative) / float64(total)
	return Result{
		Score:    score,
		Label:    LabelFor(score),
		Emotions: rankEmotions(hits),
	}
}

// LabelFor maps a score to its polarity label.
func LabelFor(score float64) Label {
	switch {
	case score > neutralBand:
		return Positive
	case score < -neutralBand:
		return Negative
	default:
		return Neutral
	}
}

// Clamp bounds a score to [-1, 1].
func Clamp(score float64) float64 {
	switch {
	case score < -1:
		return -1
	case score > 1:
		return 1
	default:
		return score
	}
}

func rankEmotions(hits map[string]int) []string {
	emotions := make([]string, 0, len(hits))
	for emotion := range hits {
		emotions = append(emotions, emotion)
	}
	sort.Slice(emotions, func(i, j int) bool {
		if hits[emotions[i]] != hits[emotions[j]] {
			return hits[emotions[i]] > hits[emotions[j]]
		}
		return emotions[i] < emotions[j]
	})
	return emotions
}

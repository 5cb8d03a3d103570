package insight

import "fmt"

const companionDirective = `You are Serene, a compassionate mental wellness companion grounded in Cognitive Behavioral Therapy and mindfulness.
You are a companion, not a doctor: never diagnose. Tone: warm, calm, patient and non-judgmental.
Answer with the requested text only, without preamble or quotation marks.`

func sentimentPrompt(text string) string {
	return fmt.Sprintf(`Analyze the sentiment of this text: %q
Return a JSON object with:
- "score": number from -1.0 (negative) to 1.0 (positive)
- "label": "Positive", "Neutral" or "Negative"
- "emotions": list of short emotion names, e.g. "Anxious", "Hopeful"`, text)
}

func thoughtPrompt(thought string) string {
	return fmt.Sprintf(`Analyze this negative thought using CBT principles: %q
Return a JSON object with:
- "distortion": the name of the cognitive distortion
- "explanation": one or two sentences on why the thought fits it
- "reframe": a balanced alternative thought in the first person`, thought)
}

func taskBreakdownPrompt(title string) string {
	return fmt.Sprintf("Provide a brief, 3-step actionable breakdown for the task: %q. Keep it encouraging.", title)
}

func dailyInsightPrompt(mood string) string {
	if mood == "" {
		return "Generate a short, 1-sentence mindfulness tip or motivating insight for the day. Do not use quotes."
	}
	return fmt.Sprintf("The user is feeling %s. Generate a short, 1-sentence comforting or motivating insight based on CBT principles. Do not use quotes.", mood)
}

const journalPrompt = "Generate a single, deep and reflective journaling prompt for mental wellness. It must be a question. Return ONLY the question."

func taskInsightPrompt(title, category string) string {
	return fmt.Sprintf(`The user just completed the task %q in the category %q.
Write a short, encouraging message of at most 2 sentences:
1. Briefly explain why completing this kind of task helps mental clarity or wellbeing.
2. Congratulate them warmly.`, title, category)
}

func clinicalSummaryPrompt(userName string, r Records) string {
	return fmt.Sprintf(`Patient name: %s
Data provided:
- Recent mood logs: %s
- Recent journal snippets: %s
- Functional status (tasks): %s

Act as a clinical assistant. Write a professional, concise summary report for a psychologist or therapist.`,
		userName, formatRaw(r.MoodHistory), formatRaw(r.JournalHistory), formatTasks(r.Tasks))
}

func assessmentQuestionsPrompt(r Records) string {
	return fmt.Sprintf(`User data:
- Recent moods: %s
- Recent journals: %s
- Pending tasks: %d

Generate 3 specific, empathetic and short open-ended questions that help the user reflect on their mental state.
Return a JSON array of strings.`, formatRaw(r.MoodHistory), formatRaw(r.JournalHistory), r.pendingTasks())
}

func wellnessAssessmentPrompt(r Records, qa []QAPair) string {
	reflection := "none"
	if len(qa) > 0 {
		reflection = ""
		for i, p := range qa {
			if i > 0 {
				reflection += "; "
			}
			reflection += fmt.Sprintf("Q: %s A: %s", p.Question, p.Answer)
		}
	}
	return fmt.Sprintf(`User data analysis:
- Moods: %s
- Journals: %s
- Tasks: %s
- Self-reflection: %s

Provide a compassionate psychological self-assessment report as a JSON object with the string fields
"currentVibe", "emotionalPatterns", "keyInsights" and "recommendations".`,
		formatRaw(r.MoodHistory), formatRaw(r.JournalHistory), formatTasks(r.Tasks), reflection)
}

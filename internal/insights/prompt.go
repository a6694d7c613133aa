package insights

import "strings"

const promptTemplate = `You are a productivity coach. Analyze this user's task data from the last 14 days and provide insights.

Task data by day:
{{summary}}

Respond with ONLY valid JSON in this exact format (no markdown, no code fences):
{
  "great": ["insight 1", "insight 2"],
  "not_great": ["insight 1", "insight 2"],
  "improve": ["suggestion 1", "suggestion 2"]
}

Rules:
- "great": 2-3 specific things the user did well (completion streaks, productive days, good task variety)
- "not_great": 1-2 areas that could be better (skipped days, low completion rates, patterns)
- "improve": 2-3 actionable suggestions for improvement
- Keep each insight to 1-2 sentences
- Be encouraging but honest
- Reference specific days or tasks when possible`

// BuildPrompt fills the coaching prompt with the per-day summaries.
func BuildPrompt(days []DaySummary) string {
	return strings.Replace(promptTemplate, "{{summary}}", SummaryText(days), 1)
}

package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nevindra/recall"
)

// extractionPrompt is the system prompt for model-assisted extraction.
const extractionPrompt = `You are a memory extraction system. Given one exchange between a user and an assistant, extract durable memories ABOUT THE USER AND THEIR PROJECT.

Extract two kinds of memory:

FACTS: stable key/value statements. Examples: tools the user prefers, project settings, decisions made, names, versions. Each fact has:
- scope: "user" (about the person) or "project" (about the work)
- category: short noun like "preference", "decision", "setting", "profile"
- key: short snake_case identifier
- value: the fact content
- confidence: 0.6 to 0.95, how certain the statement is

EPISODES: situation/action/outcome stories worth remembering. Each episode has:
- situation, action, outcome: what happened
- lesson: what to remember
- lesson_type: "pattern", "antipattern", "procedure", or "warning"
- confidence and quality: 0.6 to 0.95

Rules:
- Only extract what is clearly stated or strongly implied by the USER
- Do NOT extract general knowledge or facts about the assistant
- Return ONLY a JSON object, no extra text

Format:
{"facts":[{"scope":"user","category":"preference","key":"editor","value":"vim","confidence":0.8}],"episodes":[{"situation":"...","action":"...","outcome":"...","lesson":"...","lesson_type":"procedure","confidence":0.7,"quality":0.6}]}

Return {"facts":[],"episodes":[]} if nothing qualifies.`

// modelAnalyze sends the turn to the completion provider and parses its JSON
// answer. Any parse failure is returned as an error so the caller can fall
// back to the heuristics.
func (a *Analyzer) modelAnalyze(ctx context.Context, turn Turn) (Candidates, error) {
	var dialog strings.Builder
	dialog.WriteString("User: ")
	dialog.WriteString(turn.User)
	if turn.Assistant != "" {
		dialog.WriteString("\nAssistant: ")
		dialog.WriteString(turn.Assistant)
	}

	resp, err := a.provider.Chat(ctx, recall.ChatRequest{
		Messages: []recall.ChatMessage{
			recall.SystemMessage(extractionPrompt),
			recall.UserMessage(dialog.String()),
		},
	})
	if err != nil {
		return Candidates{}, fmt.Errorf("extraction call: %w", err)
	}

	cands, ok := parseCandidates(resp.Content)
	if !ok {
		return Candidates{}, fmt.Errorf("extraction response did not parse: %.80q", resp.Content)
	}
	return cands, nil
}

// parseCandidates parses the model's extraction response, tolerating
// markdown code fences and surrounding prose.
func parseCandidates(response string) (Candidates, bool) {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end < start {
		return Candidates{}, false
	}

	var c Candidates
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &c); err != nil {
		return Candidates{}, false
	}
	return c, true
}

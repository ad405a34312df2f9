package interpreter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aide/internal/logging"
	"aide/internal/types"
)

// rawCommand mirrors the JSON the completion collaborator is asked for.
// Every field is optional; coercion fills the gaps.
type rawCommand struct {
	Operation   string          `json:"operation"`
	Confidence  *float64        `json:"confidence"`
	Items       json.RawMessage `json:"items"`
	Explanation string          `json:"explanation"`
}

type rawItem struct {
	Kind        string   `json:"kind"`
	Type        string   `json:"type"` // some models emit "type" instead of "kind"
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Location    string   `json:"location"`
	Attendees   []string `json:"attendees"`
	DueDate     string   `json:"due_date"`
	Priority    string   `json:"priority"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}

// parseCommand defensively unwraps the collaborator's free-form text into a
// rawCommand: strip code fences, take the first balanced {...} substring,
// parse that as JSON.
func parseCommand(response string) (*rawCommand, error) {
	cleaned := stripCodeFences(response)

	jsonStr := extractJSON(cleaned)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var raw rawCommand
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("JSON parse failed: %w", err)
	}
	return &raw, nil
}

// stripCodeFences removes leading/trailing markdown fence markers if present.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag like "json" on the fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(trimmed), "```"))
	return trimmed
}

// extractJSON finds the first balanced JSON object in the response.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// coerce validates the parsed command, defaulting rather than rejecting on
// shape problems. Final confidence is min(asr, parsed) clamped to [0,1].
func coerce(raw *rawCommand, asrConfidence float64) *Result {
	result := &Result{
		Operation:   types.Operation(strings.ToLower(strings.TrimSpace(raw.Operation))),
		Explanation: raw.Explanation,
	}
	if !types.ValidOperation(result.Operation) {
		logging.InterpreterDebug("unknown operation %q, defaulting to create", raw.Operation)
		result.Operation = types.OpCreate
	}

	var rawItems []rawItem
	if len(raw.Items) > 0 {
		if err := json.Unmarshal(raw.Items, &rawItems); err != nil {
			logging.InterpreterDebug("items not an array, defaulting to empty: %v", err)
			rawItems = nil
		}
	}
	result.Items = make([]types.CandidateItem, 0, len(rawItems))
	for _, ri := range rawItems {
		result.Items = append(result.Items, coerceItem(ri))
	}

	parsed := 1.0
	if raw.Confidence != nil {
		parsed = *raw.Confidence
	}
	result.Confidence = clamp01(minFloat(asrConfidence, parsed))
	return result
}

func coerceItem(ri rawItem) types.CandidateItem {
	kind := types.Kind(strings.ToLower(strings.TrimSpace(ri.Kind)))
	if ri.Kind == "" && ri.Type != "" {
		kind = types.Kind(strings.ToLower(strings.TrimSpace(ri.Type)))
	}
	if kind == "meeting" {
		kind = types.KindEvent
	}
	if !types.ValidKind(kind) {
		kind = types.KindNote
	}

	title := strings.TrimSpace(ri.Title)
	if title == "" {
		title = "Untitled"
	}

	item := types.CandidateItem{
		Kind:        kind,
		Title:       title,
		Description: strings.TrimSpace(ri.Description),
		Location:    strings.TrimSpace(ri.Location),
		Attendees:   cleanList(ri.Attendees),
		Content:     ri.Content,
		Tags:        cleanList(ri.Tags),
		StartTime:   parseDate(ri.StartTime),
		EndTime:     parseDate(ri.EndTime),
		DueDate:     parseDate(ri.DueDate),
	}

	if kind == types.KindTask {
		priority := types.Priority(strings.ToLower(strings.TrimSpace(ri.Priority)))
		switch priority {
		case "high":
			priority = types.PriorityUrgent
		case "medium":
			priority = types.PriorityImportant
		case "low":
			priority = types.PriorityOptional
		}
		if !types.ValidPriority(priority) {
			priority = types.PriorityImportant
		}
		item.Priority = priority
	}

	return item
}

// dateFormats are tried in order; anything unparseable is dropped, not
// rejected.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	logging.InterpreterDebug("dropping unparseable date %q", s)
	return nil
}

func cleanList(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Package interpreter turns a free-text or voice transcript into a typed
// command: an operation plus candidate items. The completion collaborator
// does the understanding; this package does the asking and the defensive
// parsing of whatever comes back.
package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aide/internal/logging"
	"aide/internal/types"
)

const systemPrompt = `You translate a user's command about their personal items (events, tasks, notes) into one JSON object and nothing else.

Respond with exactly this shape:
{
  "operation": "create" | "edit" | "delete" | "query",
  "confidence": <0.0-1.0>,
  "items": [
    {
      "kind": "event" | "task" | "note",
      "title": "...",
      "description": "...",
      "start_time": "RFC3339 timestamp",
      "end_time": "RFC3339 timestamp",
      "location": "...",
      "attendees": ["..."],
      "due_date": "RFC3339 timestamp",
      "priority": "urgent" | "important" | "optional",
      "content": "...",
      "tags": ["..."]
    }
  ],
  "explanation": "one sentence"
}

Omit fields that do not apply. For edit/delete, put the user's wording of
which items they mean in the title field; it will be matched against their
existing items. Resolve relative dates ("Friday", "tomorrow") against the
current time given in the prompt.`

// Result is an interpreted command.
type Result struct {
	Operation   types.Operation
	Items       []types.CandidateItem
	Confidence  float64
	Explanation string
}

// Interpreter wraps a completion client with prompt construction and
// response coercion.
type Interpreter struct {
	client CompletionClient

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time

	// maxContextItems bounds how many existing items are embedded in the
	// prompt for reference.
	maxContextItems int
}

// New creates an Interpreter over the given completion client.
func New(client CompletionClient) *Interpreter {
	return &Interpreter{
		client:          client,
		now:             time.Now,
		maxContextItems: 20,
	}
}

// Interpret asks the completion collaborator to classify the transcript and
// coerces the response into a Result. asrConfidence is the speech-capture
// confidence (pass 1.0 for typed input); the result confidence never
// exceeds it.
//
// Fails with *types.InterpretationError when the collaborator is
// unreachable or the response holds no parseable JSON. Shape problems
// inside the JSON never fail; they are coerced to defaults.
func (in *Interpreter) Interpret(ctx context.Context, transcript string, asrConfidence float64, contextItems []*types.Item) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryInterpreter, "Interpret")
	defer timer.StopWithThreshold(10 * time.Second)

	prompt := in.buildPrompt(transcript, contextItems)

	logging.InterpreterDebug("interpreting transcript (%d chars, asr=%.2f)", len(transcript), asrConfidence)
	response, err := in.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, &types.InterpretationError{Err: err}
	}

	raw, err := parseCommand(response)
	if err != nil {
		logging.Get(logging.CategoryInterpreter).Error("unparseable response: %v", err)
		return nil, &types.InterpretationError{Raw: response, Err: err}
	}

	result := coerce(raw, asrConfidence)
	logging.Interpreter("interpreted op=%s items=%d confidence=%.2f", result.Operation, len(result.Items), result.Confidence)
	return result, nil
}

// buildPrompt embeds the transcript, the current time and a bounded sample
// of the user's existing items for reference.
func (in *Interpreter) buildPrompt(transcript string, contextItems []*types.Item) string {
	var sb strings.Builder

	now := in.now()
	fmt.Fprintf(&sb, "Current time: %s (%s)\n\n", now.Format(time.RFC3339), now.Weekday())

	if len(contextItems) > 0 {
		sb.WriteString("## Existing items (for reference)\n\n")
		sample := contextItems
		if len(sample) > in.maxContextItems {
			sample = sample[:in.maxContextItems]
		}
		for _, it := range sample {
			fmt.Fprintf(&sb, "- [%s] %s", it.Kind, it.Title)
			if ref := it.ReferenceDate(); !ref.IsZero() {
				fmt.Fprintf(&sb, " (%s)", ref.Format("2006-01-02"))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Command\n\n")
	sb.WriteString(transcript)
	return sb.String()
}

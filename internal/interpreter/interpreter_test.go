package interpreter

import (
	"context"
	"errors"
	"testing"
	"time"

	"aide/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient returns a canned response or error.
type fakeClient struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastPrompt = userPrompt
	return f.response, f.err
}

func TestInterpret_CreateTask(t *testing.T) {
	client := &fakeClient{response: "```json\n" + `{
		"operation": "create",
		"confidence": 0.9,
		"items": [{"kind": "task", "title": "buy groceries", "due_date": "2026-03-06T17:00:00Z", "priority": "important"}],
		"explanation": "create one task"
	}` + "\n```"}

	in := New(client)
	result, err := in.Interpret(context.Background(), "Add task buy groceries by Friday", 0.95, nil)
	require.NoError(t, err)

	assert.Equal(t, types.OpCreate, result.Operation)
	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, types.KindTask, item.Kind)
	assert.Equal(t, "buy groceries", item.Title)
	assert.Equal(t, types.PriorityImportant, item.Priority)
	require.NotNil(t, item.DueDate)
	assert.Equal(t, time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC), item.DueDate.UTC())
	// min(asr=0.95, parsed=0.9)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
}

func TestInterpret_SurroundingProse(t *testing.T) {
	client := &fakeClient{response: `Sure! Here is the structured command:
{"operation": "delete", "confidence": 0.8, "items": [{"title": "today's meetings"}]}
Let me know if you need anything else.`}

	in := New(client)
	result, err := in.Interpret(context.Background(), "Delete all today's meetings", 1.0, nil)
	require.NoError(t, err)

	assert.Equal(t, types.OpDelete, result.Operation)
	require.Len(t, result.Items, 1)
	// No kind given: defaults to note; title preserved for resolution.
	assert.Equal(t, types.KindNote, result.Items[0].Kind)
	assert.Equal(t, "today's meetings", result.Items[0].Title)
}

func TestInterpret_CoercionDefaults(t *testing.T) {
	client := &fakeClient{response: `{
		"operation": "banana",
		"confidence": 7,
		"items": [{"kind": "task", "title": "", "due_date": "next friday sometime", "priority": "whenever"}]
	}`}

	in := New(client)
	result, err := in.Interpret(context.Background(), "do the thing", 1.0, nil)
	require.NoError(t, err)

	assert.Equal(t, types.OpCreate, result.Operation, "unknown operation defaults to create")
	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, "Untitled", item.Title, "missing title defaults to Untitled")
	assert.Nil(t, item.DueDate, "invalid date is dropped, not rejected")
	assert.Equal(t, types.PriorityImportant, item.Priority, "unknown priority defaults to important")
	assert.Equal(t, 1.0, result.Confidence, "confidence clamped to [0,1]")
}

func TestInterpret_ItemsNotAnArray(t *testing.T) {
	client := &fakeClient{response: `{"operation": "create", "items": {"title": "oops"}}`}

	in := New(client)
	result, err := in.Interpret(context.Background(), "x", 1.0, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestInterpret_UnparseableResponse(t *testing.T) {
	client := &fakeClient{response: "I could not understand that command at all."}

	in := New(client)
	_, err := in.Interpret(context.Background(), "x", 1.0, nil)
	require.Error(t, err)

	var ierr *types.InterpretationError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, ierr.Raw, "could not understand", "raw text kept for diagnostics")
}

func TestInterpret_ClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}

	in := New(client)
	_, err := in.Interpret(context.Background(), "x", 1.0, nil)
	var ierr *types.InterpretationError
	require.ErrorAs(t, err, &ierr)
}

func TestInterpret_PromptEmbedsContext(t *testing.T) {
	client := &fakeClient{response: `{"operation": "query", "items": []}`}

	in := New(client)
	in.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	in.maxContextItems = 2

	corpus := []*types.Item{
		{Kind: types.KindEvent, Title: "Team Standup"},
		{Kind: types.KindTask, Title: "Prepare slides"},
		{Kind: types.KindNote, Title: "Should be truncated away"},
	}
	_, err := in.Interpret(context.Background(), "what's on today", 1.0, corpus)
	require.NoError(t, err)

	assert.Contains(t, client.lastPrompt, "2026-03-02")
	assert.Contains(t, client.lastPrompt, "Team Standup")
	assert.Contains(t, client.lastPrompt, "Prepare slides")
	assert.NotContains(t, client.lastPrompt, "Should be truncated away")
	assert.Contains(t, client.lastPrompt, "what's on today")
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	got := extractJSON(`{"title": "curly } brace", "n": 1} trailing`)
	assert.Equal(t, `{"title": "curly } brace", "n": 1}`, got)
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCodeFences(in))
	}
}

package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/interpreter"
	"aide/internal/reconcile"
	"aide/internal/resolver"
	"aide/internal/speech"
	"aide/internal/store"
	"aide/internal/types"
)

const owner = "tester"

// fakeClient returns a canned completion response.
type fakeClient struct {
	response string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, nil
}

func newAssistant(t *testing.T, st store.Store, response string) (*Assistant, *reconcile.Manager) {
	t.Helper()
	mgr := reconcile.NewManager(st, owner, time.Hour)
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(mgr.Close)
	return New(interpreter.New(&fakeClient{response: response}), resolver.New(), mgr), mgr
}

func seed(t *testing.T, st store.Store, items ...*types.Item) {
	t.Helper()
	for _, it := range items {
		it.OwnerID = owner
		_, err := st.Create(context.Background(), it)
		require.NoError(t, err)
	}
}

func TestHandleCommand_CreateTaskEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	a, mgr := newAssistant(t, st, `{
		"operation": "create",
		"confidence": 0.9,
		"items": [{"kind": "task", "title": "buy groceries", "due_date": "2026-03-06T17:00:00Z"}],
		"explanation": "create one task"
	}`)

	out, err := a.HandleCommand(context.Background(), "Add task buy groceries by Friday", 0.95)
	require.NoError(t, err)

	assert.Equal(t, types.OpCreate, out.Operation)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
	require.NotNil(t, out.Batch)
	t.Cleanup(out.Batch.Stop)

	cards := out.Batch.Cards()
	require.Len(t, cards, 1)
	assert.Equal(t, "buy groceries", cards[0].Candidate.Title)

	// Nothing committed until the user approves.
	assert.Empty(t, mgr.Items())

	require.NoError(t, out.Batch.Approve(context.Background(), cards[0].ID))

	items := mgr.Items()
	require.Len(t, items, 1)
	got := items[0]
	assert.Equal(t, types.KindTask, got.Kind)
	assert.Equal(t, "buy groceries", got.Title)
	assert.Equal(t, types.SourceVoice, got.Source, "asr confidence below 1 marks voice")
	require.NotNil(t, got.DueDate)

	// Durable too.
	stored, err := st.Get(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, "buy groceries", stored.Title)
}

func TestHandleCommand_DeleteAllTodaysMeetings(t *testing.T) {
	st := store.NewMemoryStore()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 14, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)

	seed(t, st,
		&types.Item{ID: "m1", Kind: types.KindEvent, Title: "Standup", StartTime: &today},
		&types.Item{ID: "m2", Kind: types.KindEvent, Title: "Design review", StartTime: &today},
		&types.Item{ID: "m3", Kind: types.KindEvent, Title: "Planning", StartTime: &tomorrow},
		&types.Item{ID: "n1", Kind: types.KindNote, Title: "meeting notes"},
	)

	a, mgr := newAssistant(t, st, `{
		"operation": "delete",
		"confidence": 0.85,
		"items": [{"title": "all today's meetings"}]
	}`)

	out, err := a.HandleCommand(context.Background(), "Delete all today's meetings", 1.0)
	require.NoError(t, err)

	assert.Equal(t, types.OpDelete, out.Operation)
	assert.Empty(t, out.Unresolved)
	require.NotNil(t, out.Batch)
	t.Cleanup(out.Batch.Stop)

	// One card per matched item; tomorrow's event and the note are spared.
	cards := out.Batch.Cards()
	require.Len(t, cards, 2)
	for _, c := range cards {
		assert.Equal(t, types.OpDelete, c.Operation)
		assert.Equal(t, types.KindEvent, c.Target.Kind)
	}

	require.NoError(t, out.Batch.ApproveAll(context.Background()))

	remaining := mgr.Items()
	require.Len(t, remaining, 2)
	ids := map[string]bool{}
	for _, it := range remaining {
		ids[it.ID] = true
	}
	assert.True(t, ids["m3"] && ids["n1"], "only tomorrow's event and the note survive: %v", ids)
}

func TestHandleCommand_DeleteNothingMatches(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st, &types.Item{ID: "1", Kind: types.KindNote, Title: "unrelated"})

	a, _ := newAssistant(t, st, `{
		"operation": "delete",
		"items": [{"title": "quarterly budget review"}]
	}`)

	out, err := a.HandleCommand(context.Background(), "Delete the quarterly budget review", 1.0)
	require.NoError(t, err)

	assert.Nil(t, out.Batch, "unresolved operation must not open a batch")
	require.Len(t, out.Unresolved, 1)
	assert.Equal(t, "quarterly budget review", out.Unresolved[0].Reference)
}

func TestHandleCommand_Query(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st,
		&types.Item{ID: "1", Kind: types.KindEvent, Title: "Team Standup"},
		&types.Item{ID: "2", Kind: types.KindNote, Title: "Grocery list"},
	)

	a, _ := newAssistant(t, st, `{
		"operation": "query",
		"items": [{"title": "standup"}]
	}`)

	out, err := a.HandleCommand(context.Background(), "when is my standup", 1.0)
	require.NoError(t, err)

	assert.Nil(t, out.Batch)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, "Team Standup", out.Matches[0].Title)
}

func TestHandleCommand_CreateBatchAutoLinksPairwise(t *testing.T) {
	st := store.NewMemoryStore()
	a, mgr := newAssistant(t, st, `{
		"operation": "create",
		"confidence": 0.9,
		"items": [
			{"kind": "event", "title": "Planning meeting", "start_time": "2026-03-05T10:00:00Z"},
			{"kind": "task", "title": "Prepare agenda", "due_date": "2026-03-04T17:00:00Z"}
		]
	}`)

	out, err := a.HandleCommand(context.Background(), "schedule planning meeting and remind me to prepare the agenda", 1.0)
	require.NoError(t, err)
	require.NotNil(t, out.Batch)
	t.Cleanup(out.Batch.Stop)

	require.NoError(t, out.Batch.ApproveAll(context.Background()))

	items := mgr.Items()
	require.Len(t, items, 2)
	assert.True(t, items[0].Linked(items[1].ID), "batch siblings should auto-link")
	assert.True(t, items[1].Linked(items[0].ID), "links must be symmetric")
}

type scriptedRecognizer struct {
	transcripts []speech.Transcript
}

func (r *scriptedRecognizer) Recognize(ctx context.Context) (<-chan speech.Transcript, error) {
	out := make(chan speech.Transcript, len(r.transcripts))
	for _, tr := range r.transcripts {
		out <- tr
	}
	close(out)
	return out, nil
}

func TestHandleVoice_CapturesThenHandles(t *testing.T) {
	st := store.NewMemoryStore()
	a, _ := newAssistant(t, st, `{
		"operation": "create",
		"confidence": 0.9,
		"items": [{"kind": "note", "title": "call mom"}]
	}`)

	rec := &scriptedRecognizer{transcripts: []speech.Transcript{
		{Text: "add a note", Final: true, Confidence: 0.8},
		{Text: "call mom", Final: true, Confidence: 0.95},
	}}

	out, err := a.HandleVoice(context.Background(), speech.NewSession(rec, time.Minute))
	require.NoError(t, err)
	require.NotNil(t, out.Batch)
	t.Cleanup(out.Batch.Stop)

	// Capture confidence (min over segments, 0.8) caps the result.
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)
}

func TestHandleCommand_EditAppliesToBestMatch(t *testing.T) {
	st := store.NewMemoryStore()
	due := time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)
	seed(t, st, &types.Item{ID: "t1", Kind: types.KindTask, Title: "buy groceries", DueDate: &due, Priority: types.PriorityOptional})

	a, mgr := newAssistant(t, st, `{
		"operation": "edit",
		"items": [{"kind": "task", "title": "groceries", "priority": "urgent"}]
	}`)

	out, err := a.HandleCommand(context.Background(), "make the groceries task urgent", 1.0)
	require.NoError(t, err)
	require.NotNil(t, out.Batch)
	t.Cleanup(out.Batch.Stop)

	cards := out.Batch.Cards()
	require.Len(t, cards, 1)
	require.NoError(t, out.Batch.Approve(context.Background(), cards[0].ID))

	got, ok := mgr.Item("t1")
	require.True(t, ok)
	assert.Equal(t, types.PriorityUrgent, got.Priority)
	assert.Equal(t, "buy groceries", got.Title, "edit reference must not overwrite the title")
}

// Package assistant wires the pipeline end to end: a transcript goes
// through interpretation, references resolve against the working set, the
// proposed mutations become confirmation cards, and approved cards commit
// through the mutation layer with auto-linking afterwards.
package assistant

import (
	"context"
	"sync"
	"time"

	"aide/internal/confirm"
	"aide/internal/interpreter"
	"aide/internal/links"
	"aide/internal/logging"
	"aide/internal/reconcile"
	"aide/internal/resolver"
	"aide/internal/speech"
	"aide/internal/types"
)

// Assistant orchestrates one user's pipeline over their working set.
type Assistant struct {
	interp *interpreter.Interpreter
	res    *resolver.Resolver
	items  *reconcile.Manager
	linker *links.Engine
}

// New wires an Assistant over the reconcile manager, which owns the
// working set the resolver and linker read from.
func New(interp *interpreter.Interpreter, res *resolver.Resolver, items *reconcile.Manager) *Assistant {
	return &Assistant{
		interp: interp,
		res:    res,
		items:  items,
		linker: links.NewEngine(items),
	}
}

// Outcome is the result of handling one command. Exactly one of Batch
// (mutations awaiting confirmation) and Matches (query results) is
// populated; both may be empty when nothing resolved.
type Outcome struct {
	Operation   types.Operation
	Confidence  float64
	Explanation string

	// Batch holds the confirmation cards for create/edit/delete commands.
	// Nil for queries and for commands where nothing resolved.
	Batch *confirm.Batch

	// Matches holds query results.
	Matches []*types.Item

	// Unresolved records every edit/delete reference that matched nothing.
	// Those operations are abandoned, never guessed at.
	Unresolved []*types.NoMatchError
}

// HandleCommand runs the pipeline for one transcript. asrConfidence is the
// speech-capture confidence; pass 1.0 for typed input. A confidence below
// 1.0 marks resulting items as voice-sourced.
func (a *Assistant) HandleCommand(ctx context.Context, text string, asrConfidence float64) (*Outcome, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "HandleCommand")
	defer timer.Stop()

	source := types.SourceManual
	if asrConfidence < 1.0 {
		source = types.SourceVoice
	}

	corpus := a.items.Items()
	result, err := a.interp.Interpret(ctx, text, asrConfidence, corpus)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Operation:   result.Operation,
		Confidence:  result.Confidence,
		Explanation: result.Explanation,
	}

	switch result.Operation {
	case types.OpQuery:
		out.Matches = a.res.Resolve(queryReference(text, result), corpus)

	case types.OpCreate:
		out.Batch = a.openCreateBatch(result, source)

	case types.OpEdit, types.OpDelete:
		out.Batch, out.Unresolved = a.openResolveBatch(text, result, corpus)
	}

	logging.API("handled %q: op=%s cards=%d matches=%d unresolved=%d",
		text, out.Operation, batchSize(out.Batch), len(out.Matches), len(out.Unresolved))
	return out, nil
}

// HandleVoice captures one spoken command through the session and runs it
// through the pipeline with the capture confidence attached.
func (a *Assistant) HandleVoice(ctx context.Context, session *speech.Session) (*Outcome, error) {
	res, err := session.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return a.HandleCommand(ctx, res.Text, res.Confidence)
}

func batchSize(b *confirm.Batch) int {
	if b == nil {
		return 0
	}
	return len(b.Cards())
}

// queryReference prefers the interpreter's extracted reference over the raw
// transcript, which carries question framing the resolver would trip on.
func queryReference(text string, result *interpreter.Result) string {
	if len(result.Items) > 0 && result.Items[0].Title != "" && result.Items[0].Title != "Untitled" {
		return result.Items[0].Title
	}
	return text
}

func (a *Assistant) openCreateBatch(result *interpreter.Result, source types.Source) *confirm.Batch {
	cards := make([]*confirm.Card, 0, len(result.Items))
	for i := range result.Items {
		c := result.Items[i]
		cards = append(cards, confirm.NewCreateCard(&c))
	}
	if len(cards) == 0 {
		return nil
	}

	committer := &batchCommitter{assistant: a, source: source, confidence: result.Confidence}
	batch := confirm.NewBatch(committer, cards)
	batch.OnResolved(func() { a.autoLink(committer.createdItems(), source) })
	return batch
}

// openResolveBatch resolves each candidate's reference and builds one card
// per affected item: deletes fan out to every match, edits apply to the
// best match only.
func (a *Assistant) openResolveBatch(text string, result *interpreter.Result, corpus []*types.Item) (*confirm.Batch, []*types.NoMatchError) {
	var cards []*confirm.Card
	var unresolved []*types.NoMatchError

	candidates := result.Items
	if len(candidates) == 0 {
		candidates = []types.CandidateItem{{Title: text}}
	}

	for i := range candidates {
		c := candidates[i]
		ref := c.Title
		if ref == "" || ref == "Untitled" {
			ref = text
		}

		matches := a.res.Resolve(ref, corpus)
		if len(matches) == 0 {
			nme := &types.NoMatchError{Reference: ref}
			logging.API("abandoned %s: %v", result.Operation, nme)
			unresolved = append(unresolved, nme)
			continue
		}

		switch result.Operation {
		case types.OpDelete:
			for _, m := range matches {
				cards = append(cards, confirm.NewDeleteCard(m))
			}
		case types.OpEdit:
			cards = append(cards, confirm.NewEditCard(matches[0], &c))
		}
	}

	if len(cards) == 0 {
		return nil, unresolved
	}
	committer := &batchCommitter{assistant: a, confidence: result.Confidence}
	return confirm.NewBatch(committer, cards), unresolved
}

// autoLink runs after a create batch fully resolves: items created together
// link pairwise; a lone voice-created item links to its best matches in the
// existing corpus.
func (a *Assistant) autoLink(created []*types.Item, source types.Source) {
	ctx := context.Background()
	switch {
	case len(created) > 1:
		a.linker.AutoLinkBatch(ctx, created)
	case len(created) == 1 && source == types.SourceVoice:
		corpus := a.items.Items()
		others := corpus[:0]
		for _, it := range corpus {
			if it.ID != created[0].ID {
				others = append(others, it)
			}
		}
		a.linker.AutoLinkNew(ctx, created[0], others)
	}
}

// batchCommitter applies approved cards through the mutation layer and
// remembers what it created for post-batch auto-linking.
type batchCommitter struct {
	assistant  *Assistant
	source     types.Source
	confidence float64

	mu      sync.Mutex
	created []*types.Item
}

func (c *batchCommitter) Commit(ctx context.Context, card *confirm.Card) error {
	switch card.Operation {
	case types.OpCreate:
		item := card.Candidate.Materialize("", "", c.source, c.confidence, time.Now())
		applied, err := c.assistant.items.Apply(ctx, types.OpCreate, item)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.created = append(c.created, applied)
		c.mu.Unlock()
		return nil

	case types.OpEdit:
		merged := mergeCandidate(card.Target, card.Candidate)
		_, err := c.assistant.items.Apply(ctx, types.OpEdit, merged)
		return err

	case types.OpDelete:
		_, err := c.assistant.items.Apply(ctx, types.OpDelete, card.Target)
		return err
	}
	return nil
}

func (c *batchCommitter) createdItems() []*types.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Item, len(c.created))
	copy(out, c.created)
	return out
}

// mergeCandidate lays the candidate's populated fields over the target.
// Title is skipped: for edits it carries the user's wording of which item
// they mean, not a new value.
func mergeCandidate(target *types.Item, c *types.CandidateItem) *types.Item {
	it := target.Clone()
	if c == nil {
		return it
	}
	if c.Description != "" {
		it.Description = c.Description
	}
	if c.StartTime != nil {
		v := *c.StartTime
		it.StartTime = &v
	}
	if c.EndTime != nil {
		v := *c.EndTime
		it.EndTime = &v
	}
	if c.Location != "" {
		it.Location = c.Location
	}
	if len(c.Attendees) > 0 {
		it.Attendees = append([]string(nil), c.Attendees...)
	}
	if c.DueDate != nil {
		v := *c.DueDate
		it.DueDate = &v
	}
	if c.Priority != "" && types.ValidPriority(c.Priority) {
		it.Priority = c.Priority
	}
	if c.Content != "" {
		it.Content = c.Content
	}
	if len(c.Tags) > 0 {
		it.Tags = append([]string(nil), c.Tags...)
	}
	return it
}

// Package links scores pairwise affinity between items and maintains the
// bidirectional linkedItems sets. It is the only writer of those sets;
// everything else treats them as read-only.
//
// Linking is best-effort by policy: callers log and swallow LinkError
// rather than letting a failed link block the item mutation that triggered
// it.
package links

import (
	"context"
	"sort"
	"strings"
	"time"

	"aide/internal/logging"
	"aide/internal/types"
)

// Mutator is the narrow slice of the mutation layer the engine needs:
// current item lookup and persisted updates.
type Mutator interface {
	Item(id string) (*types.Item, bool)
	Update(ctx context.Context, item *types.Item) error
}

// Engine scores affinity and creates/removes links.
type Engine struct {
	items Mutator
}

// NewEngine creates an Engine over the given mutator.
func NewEngine(items Mutator) *Engine {
	return &Engine{items: items}
}

// ScoreAffinity computes the additive relationship strength between two
// items. Pure; no side effects.
func (e *Engine) ScoreAffinity(a, b *types.Item) float64 {
	if a == nil || b == nil || a.ID == b.ID {
		return 0
	}

	aText := a.SearchableText()
	bText := b.SearchableText()

	var score float64

	// Shared domain vocabulary.
	for _, kw := range allKeywords {
		if strings.Contains(aText, kw) && strings.Contains(bText, kw) {
			score += weightSharedKeyword
		}
	}

	// Reference dates within a week of each other.
	diff := a.ReferenceDate().Sub(b.ReferenceDate())
	if diff < 0 {
		diff = -diff
	}
	if diff <= 7*24*time.Hour {
		score += weightNearDates
	}

	// Shared attendees.
	if attendeeOverlap(a.Attendees, b.Attendees) {
		score += weightAttendees
	}

	// Explicit mention: a meaningful word from one title inside the other's
	// searchable text.
	if titleMentioned(a.Title, bText) || titleMentioned(b.Title, aText) {
		score += weightMention
	}

	// Cross-type rules, keyed by the ordered kind pair.
	if keywords, ok := crossTypeRules[[2]types.Kind{a.Kind, b.Kind}]; ok {
		for _, kw := range keywords {
			if strings.Contains(aText, kw) || strings.Contains(bText, kw) {
				score += weightCrossType
				break
			}
		}
	}

	return score
}

func attendeeOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, name := range a {
		set[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, name := range b {
		if set[strings.ToLower(strings.TrimSpace(name))] {
			return true
		}
	}
	return false
}

func titleMentioned(title, otherText string) bool {
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.Trim(word, ".,!?'\"")
		if len(word) > 3 && strings.Contains(otherText, word) {
			return true
		}
	}
	return false
}

// Link connects both items bidirectionally. Idempotent: linking an
// already-linked pair is a no-op. If the second write fails the first is
// reverted so the symmetry invariant holds either way.
func (e *Engine) Link(ctx context.Context, aID, bID string) error {
	if aID == bID || aID == "" || bID == "" {
		return nil
	}

	a, ok := e.items.Item(aID)
	if !ok {
		return &types.LinkError{A: aID, B: bID, Err: errMissing(aID)}
	}
	b, ok := e.items.Item(bID)
	if !ok {
		return &types.LinkError{A: aID, B: bID, Err: errMissing(bID)}
	}

	if a.Linked(bID) && b.Linked(aID) {
		return nil
	}

	aNew := withLink(a, bID)
	bNew := withLink(b, aID)

	if err := e.items.Update(ctx, aNew); err != nil {
		return &types.LinkError{A: aID, B: bID, Err: err}
	}
	if err := e.items.Update(ctx, bNew); err != nil {
		// Restore symmetry before reporting.
		if rerr := e.items.Update(ctx, a); rerr != nil {
			logging.LinksWarn("failed to revert half-applied link %s<->%s: %v", aID, bID, rerr)
		}
		return &types.LinkError{A: aID, B: bID, Err: err}
	}

	logging.Links("linked %s <-> %s", aID, bID)
	return nil
}

// Unlink removes the connection from both sides. Idempotent.
func (e *Engine) Unlink(ctx context.Context, aID, bID string) error {
	a, aOK := e.items.Item(aID)
	b, bOK := e.items.Item(bID)
	if !aOK || !bOK {
		return nil // nothing to unlink
	}
	if !a.Linked(bID) && !b.Linked(aID) {
		return nil
	}

	aNew := withoutLink(a, bID)
	bNew := withoutLink(b, aID)

	if err := e.items.Update(ctx, aNew); err != nil {
		return &types.LinkError{A: aID, B: bID, Err: err}
	}
	if err := e.items.Update(ctx, bNew); err != nil {
		if rerr := e.items.Update(ctx, a); rerr != nil {
			logging.LinksWarn("failed to revert half-applied unlink %s<->%s: %v", aID, bID, rerr)
		}
		return &types.LinkError{A: aID, B: bID, Err: err}
	}

	logging.Links("unlinked %s <-> %s", aID, bID)
	return nil
}

func withLink(it *types.Item, id string) *types.Item {
	cp := it.Clone()
	if !cp.Linked(id) {
		cp.LinkedItems = append(cp.LinkedItems, id)
	}
	return cp
}

func withoutLink(it *types.Item, id string) *types.Item {
	cp := it.Clone()
	out := cp.LinkedItems[:0]
	for _, l := range cp.LinkedItems {
		if l != id {
			out = append(out, l)
		}
	}
	cp.LinkedItems = out
	return cp
}

type errMissing string

func (e errMissing) Error() string { return "item " + string(e) + " not found" }

// Suggestion pairs a candidate link target with its affinity score.
type Suggestion struct {
	Item  *types.Item
	Score float64
}

// Suggestions computes the eligible link targets for an item across the
// corpus, best first, for manual approval.
func (e *Engine) Suggestions(item *types.Item, corpus []*types.Item) []Suggestion {
	var out []Suggestion
	for _, other := range corpus {
		if other.ID == item.ID || item.Linked(other.ID) {
			continue
		}
		if score := e.ScoreAffinity(item, other); score >= AffinityThreshold {
			out = append(out, Suggestion{Item: other, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// AutoLinkBatch pairwise-links all items created together in one command.
// Failures are logged and skipped; a bad pair never blocks the rest.
func (e *Engine) AutoLinkBatch(ctx context.Context, created []*types.Item) {
	for i := 0; i < len(created); i++ {
		for j := i + 1; j < len(created); j++ {
			if err := e.Link(ctx, created[i].ID, created[j].ID); err != nil {
				logging.LinksWarn("auto-link within batch failed: %v", err)
			}
		}
	}
}

// AutoLinkNew links a single newly created item to at most AutoLinkLimit of
// its best eligible matches in the corpus, bounding the blast radius of a
// misfire. Failures are logged and skipped.
func (e *Engine) AutoLinkNew(ctx context.Context, item *types.Item, corpus []*types.Item) {
	suggestions := e.Suggestions(item, corpus)
	if len(suggestions) > AutoLinkLimit {
		suggestions = suggestions[:AutoLinkLimit]
	}
	for _, s := range suggestions {
		if err := e.Link(ctx, item.ID, s.Item.ID); err != nil {
			logging.LinksWarn("auto-link of new item failed: %v", err)
			continue
		}
		logging.LinksDebug("auto-linked %s -> %s (score %.0f)", item.ID, s.Item.ID, s.Score)
	}
}

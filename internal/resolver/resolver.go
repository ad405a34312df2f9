// Package resolver matches a free-text reference ("my standup", "all
// overdue tasks") against the current item corpus. Vague plural references
// go through a declarative bulk-predicate table; everything else is scored
// fuzzily against each item's searchable fields.
package resolver

import (
	"sort"
	"strings"
	"time"

	"aide/internal/logging"
	"aide/internal/types"
)

// Resolver resolves references against an item corpus.
type Resolver struct {
	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{now: time.Now}
}

// Resolve returns the items matching the reference, best first. An empty
// result is not an error: it means "nothing matched" and the caller must
// surface that to the user rather than dropping the operation silently.
func (r *Resolver) Resolve(referenceText string, corpus []*types.Item) []*types.Item {
	timer := logging.StartTimer(logging.CategoryResolver, "Resolve")
	defer timer.Stop()

	now := r.now()

	if rule, ok := matchBulkRule(referenceText); ok {
		matches := filterItems(corpus, rule, now)
		logging.Resolver("bulk rule %q matched %d/%d items for %q", rule.Token, len(matches), len(corpus), referenceText)
		return matches
	}

	matches := r.fuzzyResolve(referenceText, corpus, now)
	logging.Resolver("fuzzy resolve %q matched %d/%d items", referenceText, len(matches), len(corpus))
	return matches
}

// =============================================================================
// Bulk-predicate mode
// =============================================================================

// BulkRule selects items by predicate when the reference names a whole
// category ("all overdue tasks"). Matching on the category token is a
// coarse substring heuristic by design; new categories are new table rows,
// not new code.
type BulkRule struct {
	Token string
	Match func(it *types.Item, now time.Time) bool
}

// BulkRules is the recognized category table, checked in order. Earlier
// rows win, so state categories ("overdue", "today") outrank plain kinds.
var BulkRules = []BulkRule{
	{Token: "overdue", Match: func(it *types.Item, now time.Time) bool {
		return it.Kind == types.KindTask && !it.Completed &&
			it.DueDate != nil && it.DueDate.Before(now)
	}},
	{Token: "today", Match: func(it *types.Item, now time.Time) bool {
		switch it.Kind {
		case types.KindEvent:
			return it.StartTime != nil && sameDay(*it.StartTime, now)
		case types.KindTask:
			return it.DueDate != nil && sameDay(*it.DueDate, now)
		}
		return false
	}},
	{Token: "task", Match: kindRule(types.KindTask)},
	{Token: "meeting", Match: kindRule(types.KindEvent)},
	{Token: "event", Match: kindRule(types.KindEvent)},
	{Token: "note", Match: kindRule(types.KindNote)},
}

func kindRule(kind types.Kind) func(*types.Item, time.Time) bool {
	return func(it *types.Item, _ time.Time) bool { return it.Kind == kind }
}

// matchBulkRule reports whether the reference asks for a whole category:
// the token "all" plus a recognized category token.
func matchBulkRule(referenceText string) (BulkRule, bool) {
	text := strings.ToLower(referenceText)
	if !hasWord(text, "all") {
		return BulkRule{}, false
	}
	for _, rule := range BulkRules {
		if strings.Contains(text, rule.Token) {
			return rule, true
		}
	}
	return BulkRule{}, false
}

func hasWord(text, word string) bool {
	for _, f := range strings.Fields(text) {
		if strings.Trim(f, ".,!?'\"") == word {
			return true
		}
	}
	return false
}

func filterItems(corpus []*types.Item, rule BulkRule, now time.Time) []*types.Item {
	var out []*types.Item
	for _, it := range corpus {
		if rule.Match(it, now) {
			out = append(out, it)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// =============================================================================
// Fuzzy mode
// =============================================================================

// Field weights for fuzzy scoring. Title matches dominate; an exact title
// equality earns a further bonus on top of the substring score.
const (
	weightTitle      = 10
	weightTitleExact = 20
	weightDesc       = 5
	weightContent    = 3
	weightLocation   = 7
	weightTags       = 8
	weightAttendees  = 6

	recencyWindow = 7 * 24 * time.Hour
	recencyBoost  = 1.2
)

// stopwords are dropped from the reference before scoring.
var stopwords = map[string]bool{
	"the": true, "and": true, "or": true, "a": true, "an": true,
	"to": true, "for": true, "with": true, "my": true, "i": true, "me": true,
}

func (r *Resolver) fuzzyResolve(referenceText string, corpus []*types.Item, now time.Time) []*types.Item {
	terms := tokenize(referenceText)
	if len(terms) == 0 {
		return nil
	}

	type scoredItem struct {
		item  *types.Item
		score float64
	}

	var scored []scoredItem
	for _, it := range corpus {
		score := scoreItem(it, terms, now)
		if score <= 0 {
			continue
		}
		logging.ResolverDebug("item %q scored %.1f for %q", it.Title, score, referenceText)
		scored = append(scored, scoredItem{item: it, score: score})
	}

	// Stable sort keeps corpus order for tied scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]*types.Item, len(scored))
	for i, s := range scored {
		out[i] = s.item
	}
	return out
}

// tokenize splits the reference into scoring terms: longer than one rune,
// not a stopword.
func tokenize(text string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?'\"")
		if len(f) > 1 && !stopwords[f] {
			terms = append(terms, f)
		}
	}
	return terms
}

func scoreItem(it *types.Item, terms []string, now time.Time) float64 {
	title := strings.ToLower(it.Title)
	desc := strings.ToLower(it.Description)
	content := strings.ToLower(it.Content)
	location := strings.ToLower(it.Location)
	tags := strings.ToLower(strings.Join(it.Tags, " "))
	attendees := strings.ToLower(strings.Join(it.Attendees, " "))

	var score float64
	matched := 0
	for _, term := range terms {
		var termScore float64
		if strings.Contains(title, term) {
			termScore += weightTitle
			if title == term {
				termScore += weightTitleExact
			}
		}
		if desc != "" && strings.Contains(desc, term) {
			termScore += weightDesc
		}
		if content != "" && strings.Contains(content, term) {
			termScore += weightContent
		}
		if location != "" && strings.Contains(location, term) {
			termScore += weightLocation
		}
		if tags != "" && strings.Contains(tags, term) {
			termScore += weightTags
		}
		if attendees != "" && strings.Contains(attendees, term) {
			termScore += weightAttendees
		}
		if termScore > 0 {
			matched++
			score += termScore
		}
	}

	// Reward multi-term matches: each extra matched term adds half again.
	if matched > 1 {
		score *= 1 + 0.5*float64(matched-1)
	}

	// Recently created items get a small boost.
	if age := now.Sub(it.CreatedAt); age >= -recencyWindow && age <= recencyWindow {
		score *= recencyBoost
	}

	return score
}

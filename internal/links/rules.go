package links

import "aide/internal/types"

// Affinity scoring weights. All contributions are additive; a pair is
// eligible for linking once the total reaches AffinityThreshold.
const (
	weightSharedKeyword = 10 // per distinct shared vocabulary keyword
	weightNearDates     = 20 // reference dates within a week of each other
	weightAttendees     = 30 // non-empty attendee intersection
	weightMention       = 50 // one title's word appears in the other's text
	weightCrossType     = 40 // cross-type rule keyword hit

	// AffinityThreshold is the minimum score at which a pair is eligible
	// for linking.
	AffinityThreshold = 30

	// AutoLinkLimit bounds how many links a single new item may auto-create.
	AutoLinkLimit = 2
)

// domainVocabulary groups the fixed keywords whose presence in both items
// counts toward affinity. Grouping is documentation; scoring treats every
// keyword individually.
var domainVocabulary = map[string][]string{
	"meeting": {"meeting", "standup", "sync", "call", "review", "demo", "1:1"},
	"task":    {"task", "todo", "deadline", "due", "finish", "complete", "deliver"},
	"note":    {"note", "idea", "minutes", "summary", "recap"},
	"project": {"project", "sprint", "milestone", "planning", "launch", "release", "roadmap"},
}

// crossTypeRules maps an ordered kind pair to the keywords that signal a
// relationship between those kinds. New pairings are new rows, not new
// branching code.
var crossTypeRules = map[[2]types.Kind][]string{
	{types.KindEvent, types.KindTask}: {"prepare", "agenda", "action item", "follow up", "todo"},
	{types.KindTask, types.KindEvent}: {"prepare", "presentation", "meeting", "discuss", "before"},
	{types.KindEvent, types.KindNote}: {"notes", "minutes", "summary", "recap", "debrief"},
	{types.KindNote, types.KindEvent}: {"meeting", "discussed", "agenda", "decided"},
	{types.KindTask, types.KindNote}:  {"reference", "details", "spec", "instructions", "checklist"},
	{types.KindNote, types.KindTask}:  {"todo", "action", "task", "reminder", "next step"},
}

// allKeywords flattens the vocabulary once at init.
var allKeywords = func() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range domainVocabulary {
		for _, kw := range group {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}()

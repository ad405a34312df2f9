// Package types provides shared type definitions used across aide packages.
// This package exists to break import cycles between the interpreter,
// resolver, links, confirm and reconcile layers. Types here should be
// foundational data structures with no complex dependencies.
package types

import (
	"strings"
	"time"
)

// Kind discriminates the three item flavors.
type Kind string

const (
	KindEvent Kind = "event"
	KindTask  Kind = "task"
	KindNote  Kind = "note"
)

// ValidKind reports whether k is one of the three known kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindEvent, KindTask, KindNote:
		return true
	}
	return false
}

// Priority is the task urgency level.
type Priority string

const (
	PriorityUrgent    Priority = "urgent"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityUrgent, PriorityImportant, PriorityOptional:
		return true
	}
	return false
}

// Source records how an item entered the system.
type Source string

const (
	SourceManual Source = "manual"
	SourceVoice  Source = "voice"
)

// Item is the unit of persistence: one event, task or note.
//
// LinkedItems is always symmetric (if A references B, B references A).
// Only the links package may grow or shrink it; everything else treats it
// as read-only.
type Item struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Event fields
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Location  string     `json:"location,omitempty"`
	Attendees []string   `json:"attendees,omitempty"`

	// Task fields
	DueDate   *time.Time `json:"due_date,omitempty"`
	Priority  Priority   `json:"priority,omitempty"`
	Completed bool       `json:"completed,omitempty"`

	// Note fields
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	LinkedItems []string `json:"linked_items,omitempty"`

	Source     Source  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"` // set for voice-created items, in [0,1]
}

// Clone returns a deep copy of the item. Undo snapshots in the reconcile
// layer depend on the copy sharing no slices or pointers with the original.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	cp.StartTime = cloneTime(it.StartTime)
	cp.EndTime = cloneTime(it.EndTime)
	cp.DueDate = cloneTime(it.DueDate)
	cp.Attendees = cloneStrings(it.Attendees)
	cp.Tags = cloneStrings(it.Tags)
	cp.LinkedItems = cloneStrings(it.LinkedItems)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// SearchableText returns the lower-cased free-text fields of the item used
// by the resolver and the relationship engine: title, description, content,
// location, joined tags and joined attendees.
func (it *Item) SearchableText() string {
	parts := []string{
		it.Title,
		it.Description,
		it.Content,
		it.Location,
		strings.Join(it.Tags, " "),
		strings.Join(it.Attendees, " "),
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// ReferenceDate returns the date most representative of the item: event
// start, else task due date, else creation time.
func (it *Item) ReferenceDate() time.Time {
	if it.StartTime != nil {
		return *it.StartTime
	}
	if it.DueDate != nil {
		return *it.DueDate
	}
	return it.CreatedAt
}

// Linked reports whether the item references the given id.
func (it *Item) Linked(id string) bool {
	for _, l := range it.LinkedItems {
		if l == id {
			return true
		}
	}
	return false
}

// Operation is the mutation class an interpreted command requests.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
	OpQuery  Operation = "query"
)

// ValidOperation reports whether op is a known operation.
func ValidOperation(op Operation) bool {
	switch op {
	case OpCreate, OpEdit, OpDelete, OpQuery:
		return true
	}
	return false
}

// CandidateItem is a partial item produced by interpretation. It may be
// missing an id, timestamps or kind-specific fields; it exists only until
// it is resolved into a concrete mutation.
type CandidateItem struct {
	Kind        Kind       `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Location    string     `json:"location,omitempty"`
	Attendees   []string   `json:"attendees,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Content     string     `json:"content,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Materialize copies the candidate's fields onto a fresh Item. The caller
// supplies identity and provenance.
func (c *CandidateItem) Materialize(id, ownerID string, source Source, confidence float64, now time.Time) *Item {
	return &Item{
		ID:          id,
		Kind:        c.Kind,
		Title:       c.Title,
		Description: c.Description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
		StartTime:   cloneTime(c.StartTime),
		EndTime:     cloneTime(c.EndTime),
		Location:    c.Location,
		Attendees:   cloneStrings(c.Attendees),
		DueDate:     cloneTime(c.DueDate),
		Priority:    c.Priority,
		Content:     c.Content,
		Tags:        cloneStrings(c.Tags),
		Source:      source,
		Confidence:  confidence,
	}
}

// RecommendPriority suggests a priority from the time remaining until due.
//
// TODO: every branch currently returns PriorityImportant, which matches the
// behavior this was ported from but makes the branching pointless. Confirm
// the intended mapping (urgent for <1 day? optional for >7?) before changing;
// callers treat the result as advisory only.
func RecommendPriority(due time.Time, now time.Time) Priority {
	daysUntil := int(due.Sub(now).Hours() / 24)
	switch {
	case daysUntil < 1:
		return PriorityImportant
	case daysUntil < 3:
		return PriorityImportant
	case daysUntil < 7:
		return PriorityImportant
	default:
		return PriorityImportant
	}
}

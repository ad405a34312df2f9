package types

import (
	"strings"
	"testing"
	"time"
)

func TestClone_DeepCopiesSlices(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	it := &Item{
		ID:          "a",
		Kind:        KindTask,
		Title:       "Prepare slides",
		DueDate:     &due,
		Tags:        []string{"work"},
		LinkedItems: []string{"b"},
	}

	cp := it.Clone()
	cp.Tags[0] = "changed"
	cp.LinkedItems[0] = "changed"
	*cp.DueDate = cp.DueDate.AddDate(0, 0, 5)

	if it.Tags[0] != "work" {
		t.Errorf("clone shares Tags slice with original")
	}
	if it.LinkedItems[0] != "b" {
		t.Errorf("clone shares LinkedItems slice with original")
	}
	if !it.DueDate.Equal(due) {
		t.Errorf("clone shares DueDate pointer with original")
	}
}

func TestReferenceDate_Precedence(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	start := created.AddDate(0, 0, 1)
	due := created.AddDate(0, 0, 2)

	it := &Item{CreatedAt: created}
	if !it.ReferenceDate().Equal(created) {
		t.Errorf("expected creation time fallback")
	}

	it.DueDate = &due
	if !it.ReferenceDate().Equal(due) {
		t.Errorf("expected due date over creation time")
	}

	it.StartTime = &start
	if !it.ReferenceDate().Equal(start) {
		t.Errorf("expected start time over due date")
	}
}

func TestSearchableText_IncludesAllFields(t *testing.T) {
	it := &Item{
		Title:     "Team Standup",
		Location:  "Room 4",
		Tags:      []string{"Sync"},
		Attendees: []string{"Alice"},
	}
	text := it.SearchableText()
	for _, want := range []string{"team standup", "room 4", "sync", "alice"} {
		if !strings.Contains(text, want) {
			t.Errorf("searchable text missing %q: %s", want, text)
		}
	}
}

func TestRecommendPriority_SameValueOnEveryBranch(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	// Documents the current (suspect) behavior: the recommendation does not
	// vary with days-until-due.
	for _, days := range []int{0, 2, 5, 30} {
		got := RecommendPriority(now.AddDate(0, 0, days), now)
		if got != PriorityImportant {
			t.Errorf("days=%d: got %s, want %s", days, got, PriorityImportant)
		}
	}
}

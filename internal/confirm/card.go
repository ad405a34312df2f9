// Package confirm implements the per-item confirmation workflow: every
// mutation produced by interpretation becomes a card the user approves,
// edits or rejects individually before anything is committed.
package confirm

import (
	"time"

	"github.com/google/uuid"

	"aide/internal/types"
)

// State is a card's lifecycle position. Approved and rejected are terminal:
// a card never leaves either state.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Card is one proposed mutation awaiting user judgment. All card state is
// owned by its Batch; callers go through Batch methods for transitions and
// treat a Card obtained outside the batch lock as a read-only snapshot.
type Card struct {
	ID        string
	Operation types.Operation

	// Candidate is the editable payload for create and edit operations.
	Candidate *types.CandidateItem

	// Target is the existing item an edit or delete applies to. Nil for
	// creates.
	Target *types.Item

	state      State
	resolvedAt time.Time
	lastErr    error
}

// NewCreateCard proposes creating a new item from the candidate.
func NewCreateCard(candidate *types.CandidateItem) *Card {
	return &Card{
		ID:        uuid.New().String(),
		Operation: types.OpCreate,
		Candidate: candidate,
		state:     StatePending,
	}
}

// NewEditCard proposes applying the candidate's fields to an existing item.
func NewEditCard(target *types.Item, candidate *types.CandidateItem) *Card {
	return &Card{
		ID:        uuid.New().String(),
		Operation: types.OpEdit,
		Candidate: candidate,
		Target:    target,
		state:     StatePending,
	}
}

// NewDeleteCard proposes deleting an existing item.
func NewDeleteCard(target *types.Item) *Card {
	return &Card{
		ID:        uuid.New().String(),
		Operation: types.OpDelete,
		Target:    target,
		state:     StatePending,
	}
}

// State returns the card's current lifecycle position.
func (c *Card) State() State { return c.state }

// Terminal reports whether the card has been approved or rejected.
func (c *Card) Terminal() bool { return c.state != StatePending }

// Err returns the most recent commit failure, if any. A card with a non-nil
// Err is still pending and may be retried.
func (c *Card) Err() error { return c.lastErr }

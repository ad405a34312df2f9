package confirm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"aide/internal/logging"
	"aide/internal/types"
)

var (
	// ErrUnknownCard is returned when a card id is not in the batch.
	ErrUnknownCard = errors.New("confirm: unknown card")

	// ErrCardTerminal is returned when a transition targets an already
	// approved or rejected card.
	ErrCardTerminal = errors.New("confirm: card already resolved")

	// ErrBatchClosed is returned for operations on a closed batch.
	ErrBatchClosed = errors.New("confirm: batch closed")
)

// defaultCloseDelay is how long a fully resolved batch stays visible before
// it closes itself.
const defaultCloseDelay = 1500 * time.Millisecond

// Committer applies an approved card's mutation. Commit runs synchronously
// under Approve; a returned error leaves the card pending so the user can
// fix and retry.
type Committer interface {
	Commit(ctx context.Context, card *Card) error
}

// Batch groups the cards produced by one interpreted command. Cards resolve
// independently: approving or rejecting one never blocks its siblings, and
// a commit failure is local to its card.
type Batch struct {
	ID string

	mu        sync.Mutex
	cards     []*Card
	byID      map[string]*Card
	committer Committer
	closed    bool
	armed     bool
	timer     *time.Timer

	closeDelay time.Duration
	afterFunc  func(time.Duration, func()) *time.Timer // injectable for tests
	onClose    func()
	onResolved func()
}

// NewBatch wraps the cards for one command. The committer receives each
// card as it is approved.
func NewBatch(committer Committer, cards []*Card) *Batch {
	b := &Batch{
		ID:         uuid.New().String(),
		cards:      cards,
		byID:       make(map[string]*Card, len(cards)),
		committer:  committer,
		closeDelay: defaultCloseDelay,
		afterFunc:  time.AfterFunc,
	}
	for _, c := range cards {
		b.byID[c.ID] = c
	}
	logging.Confirm("batch %s opened with %d cards", b.ID, len(cards))
	return b
}

// OnClose registers a callback fired once, after the batch auto-closes.
func (b *Batch) OnClose(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = fn
}

// OnResolved registers a callback fired once, when the last card reaches a
// terminal state (before the auto-close delay). Register it before cards
// start resolving.
func (b *Batch) OnResolved(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResolved = fn
}

// Cards returns the batch's cards in presentation order.
func (b *Batch) Cards() []*Card {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Card, len(b.cards))
	copy(out, b.cards)
	return out
}

// Card looks up a card by id.
func (b *Batch) Card(id string) (*Card, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.byID[id]
	return c, ok
}

// Pending counts the unresolved cards.
func (b *Batch) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingLocked()
}

func (b *Batch) pendingLocked() int {
	n := 0
	for _, c := range b.cards {
		if !c.Terminal() {
			n++
		}
	}
	return n
}

// Closed reports whether the batch has auto-closed.
func (b *Batch) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Edit mutates a pending card's candidate payload before approval.
func (b *Batch) Edit(id string, apply func(*types.CandidateItem)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	c, ok := b.byID[id]
	if !ok {
		return ErrUnknownCard
	}
	if c.Terminal() {
		return ErrCardTerminal
	}
	if c.Candidate == nil {
		c.Candidate = &types.CandidateItem{}
	}
	apply(c.Candidate)
	logging.Confirm("card %s edited", id)
	return nil
}

// Approve commits the card's mutation. On success the card is terminally
// approved; on failure it stays pending with the error recorded on it.
func (b *Batch) Approve(ctx context.Context, id string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	c, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownCard
	}
	if c.Terminal() {
		b.mu.Unlock()
		return ErrCardTerminal
	}
	b.mu.Unlock()

	// Commit outside the lock: the committer may call back into slow
	// storage, and sibling cards must stay operable meanwhile.
	err := b.committer.Commit(ctx, c)

	b.mu.Lock()
	if err != nil {
		c.lastErr = err
		b.mu.Unlock()
		logging.Confirm("card %s approve failed, left pending: %v", id, err)
		return err
	}
	c.lastErr = nil
	c.state = StateApproved
	c.resolvedAt = time.Now()
	b.mu.Unlock()

	logging.Confirm("card %s approved (%s)", id, c.Operation)
	b.maybeScheduleClose()
	return nil
}

// Reject terminally discards the card. Nothing is committed.
func (b *Batch) Reject(id string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	c, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownCard
	}
	if c.Terminal() {
		b.mu.Unlock()
		return ErrCardTerminal
	}
	c.state = StateRejected
	c.resolvedAt = time.Now()
	b.mu.Unlock()

	logging.Confirm("card %s rejected", id)
	b.maybeScheduleClose()
	return nil
}

// ApproveAll approves every pending card in order. Failures are collected;
// a failing card stays pending while the rest proceed.
func (b *Batch) ApproveAll(ctx context.Context) error {
	var errs []error
	for _, c := range b.Cards() {
		if c.Terminal() {
			continue
		}
		if err := b.Approve(ctx, c.ID); err != nil && !errors.Is(err, ErrCardTerminal) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RejectAll rejects every pending card.
func (b *Batch) RejectAll() {
	for _, c := range b.Cards() {
		if !c.Terminal() {
			_ = b.Reject(c.ID)
		}
	}
}

// maybeScheduleClose arms the auto-close timer once every card is resolved.
// The timer is armed outside the lock so a synchronous scheduler in tests
// cannot deadlock against close.
func (b *Batch) maybeScheduleClose() {
	b.mu.Lock()
	if b.closed || b.armed || b.pendingLocked() > 0 {
		b.mu.Unlock()
		return
	}
	b.armed = true
	resolved := b.onResolved
	b.mu.Unlock()

	if resolved != nil {
		resolved()
	}

	t := b.afterFunc(b.closeDelay, b.close)

	b.mu.Lock()
	b.timer = t
	b.mu.Unlock()
}

func (b *Batch) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	fn := b.onClose
	b.mu.Unlock()

	logging.Confirm("batch %s closed", b.ID)
	if fn != nil {
		fn()
	}
}

// Stop cancels the pending auto-close timer, if any. For shutdown paths.
func (b *Batch) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}

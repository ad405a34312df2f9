package types

import "fmt"

// InterpretationError reports that the completion collaborator was
// unreachable or returned text that could not be parsed into the expected
// JSON shape after defensive unwrapping. Raw carries the unparsed response
// for diagnostics.
type InterpretationError struct {
	Raw string
	Err error
}

func (e *InterpretationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interpretation failed: %v", e.Err)
	}
	return "interpretation failed"
}

func (e *InterpretationError) Unwrap() error { return e.Err }

// NoMatchError reports that an edit/delete reference resolved to nothing.
// It is informational: the triggering operation is abandoned, not retried.
type NoMatchError struct {
	Reference string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no items matched %q", e.Reference)
}

// MutationError reports a persistence call failing during an optimistic
// commit. The in-memory state has already been rolled back when the caller
// sees this.
type MutationError struct {
	Op     Operation
	ItemID string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s of item %s failed: %v", e.Op, e.ItemID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// LinkError reports a link or unlink call failing. Linking is best-effort;
// callers log and swallow this, never rolling back the mutation that
// triggered it.
type LinkError struct {
	A, B string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s<->%s failed: %v", e.A, e.B, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Package patch records reversible field-level mutations keyed by action id.
package patch

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrOutstanding is returned when an action id already has a PatchSet.
	ErrOutstanding = errors.New("patch: action already has an outstanding patch set")
	// ErrUnknownAction is returned when committing or rolling back an id with no PatchSet.
	ErrUnknownAction = errors.New("patch: unknown action")
)

// Path addresses a single field in the state tree. Message is empty for
// conversation-level fields; Key selects an entry inside a map-valued field.
type Path struct {
	Convo   string
	Message string
	Field   string
	Key     string
}

func (p Path) String() string {
	s := p.Convo
	if p.Message != "" {
		s += "/messages/" + p.Message
	}
	s += "/" + p.Field
	if p.Key != "" {
		s += "/" + p.Key
	}
	return s
}

// Target is the mutable state a Log patches. Get must return a value that is
// not aliased with the live state.
type Target interface {
	Get(p Path) (value any, ok bool)
	Set(p Path, value any) error
	Delete(p Path) error
}

type entry struct {
	path    Path
	prev    any
	existed bool
}

// PatchSet is the ordered list of prior values recorded for one action.
type PatchSet struct {
	ID      string
	entries []entry
}

// Paths returns the recorded paths in mutation order.
func (ps *PatchSet) Paths() []Path {
	out := make([]Path, len(ps.entries))
	for i, e := range ps.entries {
		out[i] = e.path
	}
	return out
}

// Len returns the number of recorded mutations.
func (ps *PatchSet) Len() int { return len(ps.entries) }

// Tx applies mutations to a Target while capturing each prior value.
type Tx struct {
	target Target
	set    *PatchSet
}

// Set captures the prior value at p and writes v.
func (tx *Tx) Set(p Path, v any) error {
	prev, ok := tx.target.Get(p)
	if err := tx.target.Set(p, v); err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	tx.set.entries = append(tx.set.entries, entry{path: p, prev: prev, existed: ok})
	return nil
}

// Delete captures the prior value at p and removes it.
func (tx *Tx) Delete(p Path) error {
	prev, ok := tx.target.Get(p)
	if !ok {
		return nil
	}
	if err := tx.target.Delete(p); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	tx.set.entries = append(tx.set.entries, entry{path: p, prev: prev, existed: true})
	return nil
}

// Log holds at most one PatchSet per action id. Two PatchSets touching the
// same field are not independent: whichever commit or rollback runs last wins.
type Log struct {
	mu   sync.Mutex
	sets map[string]*PatchSet
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{sets: make(map[string]*PatchSet)}
}

// Record runs fn against target, capturing the prior value of every field fn
// touches. If fn fails, whatever it already applied is reversed and no
// PatchSet is kept.
func (l *Log) Record(id string, target Target, fn func(tx *Tx) error) (*PatchSet, error) {
	l.mu.Lock()
	if _, ok := l.sets[id]; ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOutstanding, id)
	}
	ps := &PatchSet{ID: id}
	l.sets[id] = ps
	l.mu.Unlock()

	tx := &Tx{target: target, set: ps}
	if fn != nil {
		if err := fn(tx); err != nil {
			revErr := reverse(target, ps.entries)
			l.mu.Lock()
			delete(l.sets, id)
			l.mu.Unlock()
			return nil, errors.Join(err, revErr)
		}
	}
	return ps, nil
}

// Commit discards the PatchSet for id.
func (l *Log) Commit(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	delete(l.sets, id)
	return nil
}

// Rollback reverse-applies the PatchSet for id, then discards it. Entries
// whose path no longer resolves are skipped and reported in the error.
func (l *Log) Rollback(id string, target Target) error {
	l.mu.Lock()
	ps, ok := l.sets[id]
	delete(l.sets, id)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	return reverse(target, ps.entries)
}

// Pending reports whether id has an outstanding PatchSet.
func (l *Log) Pending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sets[id]
	return ok
}

// Len returns the number of outstanding PatchSets.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sets)
}

// Clear drops every outstanding PatchSet without applying it.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.sets)
}

func reverse(target Target, entries []entry) error {
	var errs []error
	for _, e := range slices.Backward(entries) {
		var err error
		if e.existed {
			err = target.Set(e.path, e.prev)
		} else {
			err = target.Delete(e.path)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", e.path, err))
		}
	}
	return errors.Join(errs...)
}

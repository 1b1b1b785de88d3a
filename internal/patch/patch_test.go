package patch

import (
	"errors"
	"fmt"
	"testing"
)

// mapTarget is a flat key/value Target keyed by Path.String().
type mapTarget struct {
	values map[string]any
	failOn string
}

func newMapTarget(kv map[string]any) *mapTarget {
	m := &mapTarget{values: make(map[string]any)}
	for k, v := range kv {
		m.values[k] = v
	}
	return m
}

func (m *mapTarget) Get(p Path) (any, bool) {
	v, ok := m.values[p.String()]
	return v, ok
}

func (m *mapTarget) Set(p Path, v any) error {
	if p.String() == m.failOn {
		return fmt.Errorf("refused")
	}
	m.values[p.String()] = v
	return nil
}

func (m *mapTarget) Delete(p Path) error {
	delete(m.values, p.String())
	return nil
}

var (
	namePath  = Path{Convo: "c1", Field: "name"}
	mutePath  = Path{Convo: "c1", Field: "muted"}
	reactPath = Path{Convo: "c1", Message: "5", Field: "reactions", Key: "👍"}
)

func TestRollbackRestoresExactPriorValues(t *testing.T) {
	target := newMapTarget(map[string]any{namePath.String(): "old", mutePath.String(): false})
	log := NewLog()

	_, err := log.Record("a1", target, func(tx *Tx) error {
		if err := tx.Set(namePath, "new"); err != nil {
			return err
		}
		if err := tx.Set(namePath, "newer"); err != nil {
			return err
		}
		return tx.Set(mutePath, true)
	})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := target.Get(namePath); v != "newer" {
		t.Fatalf("name = %v, want newer", v)
	}

	if err := log.Rollback("a1", target); err != nil {
		t.Fatal(err)
	}
	if v, _ := target.Get(namePath); v != "old" {
		t.Errorf("name after rollback = %v, want old", v)
	}
	if v, _ := target.Get(mutePath); v != false {
		t.Errorf("muted after rollback = %v, want false", v)
	}
	if log.Pending("a1") {
		t.Error("patch set should be discarded after rollback")
	}
}

func TestRollbackDeletesFieldsThatDidNotExist(t *testing.T) {
	target := newMapTarget(nil)
	log := NewLog()
	if _, err := log.Record("a1", target, func(tx *Tx) error {
		return tx.Set(reactPath, []string{"~zod"})
	}); err != nil {
		t.Fatal(err)
	}
	if err := log.Rollback("a1", target); err != nil {
		t.Fatal(err)
	}
	if _, ok := target.Get(reactPath); ok {
		t.Error("field created by the action should be removed on rollback")
	}
}

func TestRollbackIgnoresUnrelatedLaterChanges(t *testing.T) {
	target := newMapTarget(map[string]any{namePath.String(): "old", mutePath.String(): false})
	log := NewLog()
	if _, err := log.Record("a1", target, func(tx *Tx) error {
		return tx.Set(namePath, "new")
	}); err != nil {
		t.Fatal(err)
	}
	// Something else changes a sibling field after the action was recorded.
	_ = target.Set(mutePath, true)

	if err := log.Rollback("a1", target); err != nil {
		t.Fatal(err)
	}
	if v, _ := target.Get(namePath); v != "old" {
		t.Errorf("name = %v, want old", v)
	}
	if v, _ := target.Get(mutePath); v != true {
		t.Errorf("muted = %v, want true (untouched by rollback)", v)
	}
}

func TestCommitDiscards(t *testing.T) {
	target := newMapTarget(map[string]any{namePath.String(): "old"})
	log := NewLog()
	if _, err := log.Record("a1", target, func(tx *Tx) error { return tx.Set(namePath, "new") }); err != nil {
		t.Fatal(err)
	}
	if err := log.Commit("a1"); err != nil {
		t.Fatal(err)
	}
	if log.Len() != 0 {
		t.Errorf("Len = %d, want 0", log.Len())
	}
	if err := log.Rollback("a1", target); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Rollback after commit error = %v, want ErrUnknownAction", err)
	}
	if v, _ := target.Get(namePath); v != "new" {
		t.Errorf("name = %v, want new", v)
	}
}

func TestRecordRejectsOutstandingID(t *testing.T) {
	target := newMapTarget(nil)
	log := NewLog()
	if _, err := log.Record("a1", target, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Record("a1", target, nil); !errors.Is(err, ErrOutstanding) {
		t.Errorf("second Record error = %v, want ErrOutstanding", err)
	}
}

func TestRecordFailureReversesPartialMutation(t *testing.T) {
	target := newMapTarget(map[string]any{namePath.String(): "old"})
	target.failOn = mutePath.String()
	log := NewLog()

	_, err := log.Record("a1", target, func(tx *Tx) error {
		if err := tx.Set(namePath, "new"); err != nil {
			return err
		}
		return tx.Set(mutePath, true)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if v, _ := target.Get(namePath); v != "old" {
		t.Errorf("name = %v, want old after failed record", v)
	}
	if log.Pending("a1") {
		t.Error("failed record must not leave a patch set")
	}
}

func TestPatchSetPaths(t *testing.T) {
	target := newMapTarget(nil)
	log := NewLog()
	ps, err := log.Record("a1", target, func(tx *Tx) error {
		_ = tx.Set(namePath, "x")
		return tx.Set(mutePath, true)
	})
	if err != nil {
		t.Fatal(err)
	}
	paths := ps.Paths()
	if ps.Len() != 2 || paths[0] != namePath || paths[1] != mutePath {
		t.Errorf("Paths = %v", paths)
	}
	if got := reactPath.String(); got != "c1/messages/5/reactions/👍" {
		t.Errorf("String() = %q", got)
	}
}

package upload

import (
	"testing"
)

func TestState_MarkAndHas(t *testing.T) {
	var st State

	if st.Has(1) {
		t.Error("empty state claims seq 1 acked")
	}

	st.Mark(3)
	st.Mark(1)
	st.Mark(3) // idempotent

	if !st.Has(1) || !st.Has(3) {
		t.Error("marked seqs not reported")
	}
	if st.Has(2) {
		t.Error("unmarked seq reported as acked")
	}
	if len(st.Acked) != 2 {
		t.Errorf("Acked = %v, want two entries", st.Acked)
	}
	if st.Acked[0] != 1 || st.Acked[1] != 3 {
		t.Errorf("Acked = %v, want sorted [1 3]", st.Acked)
	}
	if st.LastUploadAt.IsZero() {
		t.Error("LastUploadAt not set by Mark")
	}
}

func TestStateRepository_RoundTrip(t *testing.T) {
	repo := NewStateRepository(t.TempDir())

	// Missing file loads as empty state.
	st, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Acked) != 0 {
		t.Fatalf("fresh state has acked batches: %v", st.Acked)
	}

	st.Mark(1)
	st.Mark(2)
	if err := repo.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if !loaded.Has(1) || !loaded.Has(2) || loaded.Has(3) {
		t.Errorf("loaded state = %v", loaded.Acked)
	}
}

package nn

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	window := [][]float64{{0.1, 1}, {0.2, 1}, {-0.1, 1}, {0.05, 1}}
	want, err := nw.PredictOneStep(window)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	path := filepath.Join(t.TempDir(), "sub", "model.json")
	if err := nw.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := loaded.PredictOneStep(window)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if got != want {
		t.Fatalf("round trip changed prediction: %v vs %v", got, want)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	nw, err := New(blockConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path := filepath.Join(t.TempDir(), "best-epoch=3.ckpt")
	if err := SaveCheckpoint(path, &Checkpoint{Epoch: 3, ValLoss: 0.01, Snapshot: nw.Snapshot()}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	ck, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if ck.Epoch != 3 || ck.ValLoss != 0.01 {
		t.Fatalf("unexpected checkpoint %+v", ck)
	}
	if _, err := FromSnapshot(ck.Snapshot); err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
}

func TestSaveCheckpointNonFiniteValLoss(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// A fit without a validation set never lowers the initial loss, so
	// the checkpoint arrives with +Inf. It must still persist.
	path := filepath.Join(t.TempDir(), "state.ckpt")
	ck := &Checkpoint{Epoch: 2, ValLoss: math.Inf(1), Snapshot: nw.Snapshot()}
	if err := SaveCheckpoint(path, ck); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if loaded.ValLoss != 0 {
		t.Fatalf("expected sanitized val loss 0, got %v", loaded.ValLoss)
	}
	if loaded.Epoch != 2 || loaded.Snapshot == nil {
		t.Fatalf("unexpected checkpoint %+v", loaded)
	}
}

func TestLoadCheckpointWithoutSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ckpt")
	if err := SaveCheckpoint(path, &Checkpoint{Epoch: 1}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if _, err := LoadCheckpoint(path); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestLoadWeightsFromSameShape(t *testing.T) {
	a, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cfg := rnnConfig()
	cfg.Seed = 7
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	window := [][]float64{{0.1, 1}, {0.2, 1}, {-0.1, 1}, {0.05, 1}}
	ya, _ := a.PredictOneStep(window)
	if err := b.LoadWeightsFrom(a); err != nil {
		t.Fatalf("load weights: %v", err)
	}
	yb, _ := b.PredictOneStep(window)
	if ya != yb {
		t.Fatalf("weights not copied: %v vs %v", ya, yb)
	}
}

func TestLoadWeightsFromRejectsShapeChange(t *testing.T) {
	a, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cfg := rnnConfig()
	cfg.HiddenDim = 16
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.LoadWeightsFrom(a); err == nil {
		t.Fatalf("expected error for incompatible shapes")
	}
}

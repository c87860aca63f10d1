package forecast

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/forecast/nn"
)

func testRunKey() RunKey {
	return RunKey{
		Scope:           "global",
		Family:          models.FamilyRNN,
		Cell:            models.CellLSTM,
		HorizonDays:     7,
		TargetTransform: TargetTransform,
	}
}

func TestCanonicalKeyDeterministic(t *testing.T) {
	params := map[string]any{"hidden_dim": 32, "n_epochs": 50}
	a := CanonicalKey(testRunKey(), params)
	b := CanonicalKey(testRunKey(), params)
	if a != b {
		t.Fatalf("same inputs produced %s and %s", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("expected 8 hex chars, got %q", a)
	}
}

func TestCanonicalKeyNormalizesSliceTypes(t *testing.T) {
	a := CanonicalKey(testRunKey(), map[string]any{"hidden_fc_sizes": []int{64, 32}})
	b := CanonicalKey(testRunKey(), map[string]any{"hidden_fc_sizes": []any{64, 32}})
	if a != b {
		t.Fatalf("typed and untyped slices diverged: %s vs %s", a, b)
	}
}

func TestCanonicalKeySensitivity(t *testing.T) {
	base := CanonicalKey(testRunKey(), map[string]any{"hidden_dim": 32})
	if got := CanonicalKey(testRunKey(), map[string]any{"hidden_dim": 64}); got == base {
		t.Fatalf("hyperparam change did not change digest")
	}

	key := testRunKey()
	key.Cell = models.CellGRU
	if got := CanonicalKey(key, map[string]any{"hidden_dim": 32}); got == base {
		t.Fatalf("cell change did not change digest")
	}

	key = testRunKey()
	key.HorizonDays = 14
	if got := CanonicalKey(key, map[string]any{"hidden_dim": 32}); got == base {
		t.Fatalf("horizon change did not change digest")
	}
}

func TestModelName(t *testing.T) {
	name := ModelName(testRunKey(), "ab12cd34")
	if name != "crypto_global__rnn__lstm__h7__log_return__ab12cd34" {
		t.Fatalf("unexpected model name %q", name)
	}
}

func TestSlug(t *testing.T) {
	if got := Slug("Block RNN/GRU"); got != "block_rnn_gru" {
		t.Fatalf("unexpected slug %q", got)
	}
}

func TestCreateRunAlwaysInsertsFresh(t *testing.T) {
	store := newMemRunStore()
	reg := NewRegistry(store, t.TempDir())
	ctx := context.Background()
	params := map[string]any{"hidden_dim": 32}

	run, err := reg.CreateRun(ctx, testRunKey(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if run.Status != models.RunStatusPending {
		t.Fatalf("expected pending status, got %s", run.Status)
	}
	if !strings.Contains(run.ArtifactPath, run.ModelName) {
		t.Fatalf("artifact path %q does not contain model name", run.ArtifactPath)
	}
	if got := CanonicalKey(testRunKey(), params); run.KeyDigest != got {
		t.Fatalf("digest %s does not match params digest %s", run.KeyDigest, got)
	}

	// The same configuration never silently reuses the earlier row.
	again, err := reg.CreateRun(ctx, testRunKey(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if again.ID == run.ID {
		t.Fatalf("second create reused run %d", run.ID)
	}
	if again.KeyDigest != run.KeyDigest {
		t.Fatalf("same configuration produced digests %s and %s", run.KeyDigest, again.KeyDigest)
	}
}

func TestRetrainRunKeepsID(t *testing.T) {
	store := newMemRunStore()
	reg := NewRegistry(store, t.TempDir())
	ctx := context.Background()

	run, err := reg.CreateRun(ctx, testRunKey(), map[string]any{"hidden_dim": 32})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.FinalizeRun(ctx, run, run.Hyperparams, []int{1}, 0.2); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	again, err := reg.RetrainRun(ctx, run.ID, testRunKey(), map[string]any{"hidden_dim": 64})
	if err != nil {
		t.Fatalf("retrain: %v", err)
	}
	if again.ID != run.ID {
		t.Fatalf("retrain changed the id: %d vs %d", again.ID, run.ID)
	}
	if again.Status != models.RunStatusPending {
		t.Fatalf("expected pending after retrain, got %s", again.Status)
	}
	if again.KeyDigest == run.KeyDigest {
		t.Fatalf("new hyperparams kept digest %s", run.KeyDigest)
	}
	if !strings.Contains(again.ArtifactPath, again.ModelName) {
		t.Fatalf("artifact path %q not repointed at %q", again.ArtifactPath, again.ModelName)
	}

	if _, err := reg.RetrainRun(ctx, 9999, testRunKey(), map[string]any{"hidden_dim": 64}); !errors.Is(err, ErrModelRunNotFound) {
		t.Fatalf("expected ErrModelRunNotFound, got %v", err)
	}
}

func TestFinalizeRunSortsIDs(t *testing.T) {
	store := newMemRunStore()
	reg := NewRegistry(store, t.TempDir())
	ctx := context.Background()

	run, err := reg.CreateRun(ctx, testRunKey(), map[string]any{"hidden_dim": 32})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.FinalizeRun(ctx, run, map[string]any{"hidden_dim": 32}, []int{3, 1, 2}, 0.2); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	stored, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.RunStatusTrained {
		t.Fatalf("expected trained, got %s", stored.Status)
	}
	want := []int{1, 2, 3}
	for i, id := range stored.TrainingCryptoIDs {
		if id != want[i] {
			t.Fatalf("ids not sorted: %v", stored.TrainingCryptoIDs)
		}
	}
}

func TestLoadModelPrefersBestCheckpoint(t *testing.T) {
	reg := NewRegistry(newMemRunStore(), t.TempDir())
	run := &models.ModelRun{ModelName: "m1"}
	run.ArtifactPath = reg.ArtifactPath(run.ModelName)

	if _, err := reg.LoadModel(run); !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected missing artifact, got %v", err)
	}

	cfg := nn.Config{
		Family: nn.FamilyRNN, Cell: nn.CellLSTM,
		InputSize: 2, HiddenDim: 4, NumLayers: 1, InputChunk: 3, Seed: 1,
	}
	artifactNet, err := nn.New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := artifactNet.Save(run.ArtifactPath); err != nil {
		t.Fatalf("save artifact: %v", err)
	}

	window := [][]float64{{0.1, 1}, {0.2, 1}, {0.3, 1}}
	wantArtifact, _ := artifactNet.PredictOneStep(window)

	loaded, err := reg.LoadModel(run)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := loaded.PredictOneStep(window); got != wantArtifact {
		t.Fatalf("artifact load mismatch: %v vs %v", got, wantArtifact)
	}

	// A best checkpoint with different weights wins over the artifact.
	cfg.Seed = 99
	bestNet, err := nn.New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ckPath := filepath.Join(reg.CheckpointDir(run.ModelName), "best-epoch=5.ckpt")
	if err := nn.SaveCheckpoint(ckPath, &nn.Checkpoint{Epoch: 5, ValLoss: 0.1, Snapshot: bestNet.Snapshot()}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	wantBest, _ := bestNet.PredictOneStep(window)

	loaded, err = reg.LoadModel(run)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := loaded.PredictOneStep(window); got != wantBest {
		t.Fatalf("expected checkpoint weights, got artifact weights")
	}
}

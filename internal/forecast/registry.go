package forecast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/internal/forecast/nn"
	"CoinCast/pkg/logger"
)

// RunKey identifies a model configuration up to hyperparameters.
type RunKey struct {
	Scope           string
	Family          models.ModelFamily
	Cell            models.CellType
	HorizonDays     int
	TargetTransform string
}

// CanonicalKey hashes a run key plus hyperparameters into a short
// digest. Params are normalized recursively (map keys sorted, list
// order preserved) so semantically identical configurations always
// produce the same digest.
func CanonicalKey(key RunKey, params map[string]any) string {
	payload := map[string]any{
		"scope":     key.Scope,
		"family":    string(key.Family),
		"cell":      string(key.Cell),
		"horizon":   key.HorizonDays,
		"transform": key.TargetTransform,
		"params":    normalizeValue(params),
	}
	b, _ := json.Marshal(normalizeValue(payload))
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:8]
}

// normalizeValue coerces params into plain JSON types so the encoder
// emits a canonical form regardless of the Go types supplied.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalizeValue(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

// Slug lowercases and replaces every non-alphanumeric run with "_".
func Slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ModelName renders the canonical model name for a key and digest.
func ModelName(key RunKey, digest string) string {
	return fmt.Sprintf("crypto_%s__%s__%s__h%d__%s__%s",
		Slug(key.Scope), Slug(string(key.Family)), Slug(string(key.Cell)),
		key.HorizonDays, Slug(key.TargetTransform), digest)
}

// Registry manages model run rows and their on-disk artifacts.
type Registry struct {
	runs    repository.ModelRunStore
	workDir string
	log     *logger.Logger
}

func NewRegistry(runs repository.ModelRunStore, workDir string) *Registry {
	return &Registry{runs: runs, workDir: workDir}
}

func (r *Registry) SetLogger(l *logger.Logger) { r.log = l }

// WorkDir returns the registry root directory.
func (r *Registry) WorkDir() string { return r.workDir }

// ArtifactPath is where a model's weights live.
func (r *Registry) ArtifactPath(modelName string) string {
	return filepath.Join(r.workDir, "artifacts", modelName+".json")
}

// SidecarPath is the trainer-state file next to the artifact.
func (r *Registry) SidecarPath(modelName string) string {
	return r.ArtifactPath(modelName) + ".ckpt"
}

// CheckpointDir holds best-epoch checkpoints for a model.
func (r *Registry) CheckpointDir(modelName string) string {
	return filepath.Join(r.workDir, modelName, "checkpoints")
}

// CreateRun inserts a fresh pending row for the key. Params must be
// the effective (post-resolution) hyperparameters so the digest and
// the stored record describe the same configuration. An existing row
// with the same digest is logged but never reused.
func (r *Registry) CreateRun(ctx context.Context, key RunKey, params map[string]any) (*models.ModelRun, error) {
	digest := CanonicalKey(key, params)
	if existing, err := r.runs.FindByDigest(ctx, key.Scope, digest); err == nil && existing != nil && r.log != nil {
		r.log.Info("configuration trained before, inserting new run row",
			logger.Int64("previous_run_id", existing.ID),
			logger.String("key_digest", digest))
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find run: %w", err)
	}

	name := ModelName(key, digest)
	now := time.Now().UTC()
	run := &models.ModelRun{
		Scope:           key.Scope,
		ModelFamily:     key.Family,
		CellType:        key.Cell,
		HorizonDays:     key.HorizonDays,
		TargetTransform: key.TargetTransform,
		KeyDigest:       digest,
		ModelName:       name,
		WorkDir:         r.workDir,
		ArtifactPath:    r.ArtifactPath(name),
		Hyperparams:     params,
		Status:          models.RunStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// RetrainRun repoints an existing row at the key and marks it pending
// again, keeping its id. Used when the caller explicitly opts into
// update-in-place semantics.
func (r *Registry) RetrainRun(ctx context.Context, id int64, key RunKey, params map[string]any) (*models.ModelRun, error) {
	run, err := r.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: run %d", ErrModelRunNotFound, id)
		}
		return nil, fmt.Errorf("load run %d: %w", id, err)
	}

	digest := CanonicalKey(key, params)
	name := ModelName(key, digest)
	run.Scope = key.Scope
	run.ModelFamily = key.Family
	run.CellType = key.Cell
	run.HorizonDays = key.HorizonDays
	run.TargetTransform = key.TargetTransform
	run.KeyDigest = digest
	run.ModelName = name
	run.WorkDir = r.workDir
	run.ArtifactPath = r.ArtifactPath(name)
	run.Hyperparams = params
	run.Status = models.RunStatusPending
	run.UpdatedAt = time.Now().UTC()
	if err := r.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("retrain run %d: %w", id, err)
	}
	return run, nil
}

// Run loads a run row by id.
func (r *Registry) Run(ctx context.Context, id int64) (*models.ModelRun, error) {
	run, err := r.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: run %d", ErrModelRunNotFound, id)
		}
		return nil, fmt.Errorf("load run %d: %w", id, err)
	}
	return run, nil
}

// FinalizeRun marks a run trained and records what training actually
// used after sizing resolution and asset dropout.
func (r *Registry) FinalizeRun(ctx context.Context, run *models.ModelRun, effective map[string]any, trainedIDs []int, valSplit float64) error {
	ids := make([]int, len(trainedIDs))
	copy(ids, trainedIDs)
	sort.Ints(ids)

	run.Hyperparams = effective
	run.TrainingCryptoIDs = ids
	run.ValSplit = valSplit
	run.Status = models.RunStatusTrained
	run.UpdatedAt = time.Now().UTC()
	if err := r.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// FailRun marks a run failed; best effort.
func (r *Registry) FailRun(ctx context.Context, run *models.ModelRun) {
	run.Status = models.RunStatusFailed
	run.UpdatedAt = time.Now().UTC()
	if err := r.runs.Update(ctx, run); err != nil && r.log != nil {
		r.log.Warn("could not mark run failed", logger.Int64("run_id", run.ID), logger.Error(err))
	}
}

// LoadModel restores the network for a run, preferring the newest
// best-epoch checkpoint over the plain artifact.
func (r *Registry) LoadModel(run *models.ModelRun) (*nn.Network, error) {
	if path, ok := r.bestCheckpoint(run.ModelName); ok {
		ck, err := nn.LoadCheckpoint(path)
		if err == nil {
			return nn.FromSnapshot(ck.Snapshot)
		}
		if r.log != nil {
			r.log.Warn("unreadable best checkpoint, falling back to artifact",
				logger.String("path", path), logger.Error(err))
		}
	}

	if run.ArtifactPath == "" {
		return nil, ErrArtifactMissing
	}
	nw, err := nn.Load(run.ArtifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArtifactMissing
		}
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	return nw, nil
}

// bestCheckpoint returns the newest best-* checkpoint file, if any.
func (r *Registry) bestCheckpoint(modelName string) (string, bool) {
	dir := r.CheckpointDir(modelName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "best-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	return best, best != ""
}

package nn

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Snapshot is a serializable copy of a network's configuration and
// weights.
type Snapshot struct {
	Config  Config             `json:"config"`
	Weights map[string]*Tensor `json:"weights"`
}

// Checkpoint wraps a snapshot with training progress, used for
// best-epoch checkpoints and the trainer-state sidecar.
type Checkpoint struct {
	Epoch    int       `json:"epoch"`
	ValLoss  float64   `json:"val_loss"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Snapshot captures the current weights.
func (nw *Network) Snapshot() *Snapshot {
	s := &Snapshot{
		Config:  nw.Cfg,
		Weights: make(map[string]*Tensor, len(nw.prms)),
	}
	for _, p := range nw.prms {
		s.Weights[p.Name] = p.Val.Clone()
	}
	return s
}

// FromSnapshot rebuilds a network from a snapshot.
func FromSnapshot(s *Snapshot) (*Network, error) {
	nw, err := New(s.Config)
	if err != nil {
		return nil, err
	}
	for _, p := range nw.prms {
		w, ok := s.Weights[p.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing weight %s", ErrShapeMismatch, p.Name)
		}
		if err := p.Val.CopyFrom(w); err != nil {
			return nil, fmt.Errorf("weight %s: %w", p.Name, err)
		}
	}
	return nw, nil
}

// Save writes the network weights as JSON, creating parent
// directories as needed.
func (nw *Network) Save(path string) error {
	return writeJSON(path, nw.Snapshot())
}

// Load reads a network saved with Save.
func Load(path string) (*Network, error) {
	var s Snapshot
	if err := readJSON(path, &s); err != nil {
		return nil, err
	}
	return FromSnapshot(&s)
}

// SaveCheckpoint writes an epoch checkpoint. Runs fitted without a
// validation set carry a non-finite loss, which JSON cannot encode;
// it is stored as 0.
func SaveCheckpoint(path string, ck *Checkpoint) error {
	out := *ck
	if math.IsInf(out.ValLoss, 0) || math.IsNaN(out.ValLoss) {
		out.ValLoss = 0
	}
	return writeJSON(path, &out)
}

// LoadCheckpoint reads an epoch checkpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	var ck Checkpoint
	if err := readJSON(path, &ck); err != nil {
		return nil, err
	}
	if ck.Snapshot == nil {
		return nil, fmt.Errorf("%w: checkpoint without snapshot", ErrShapeMismatch)
	}
	return &ck, nil
}

// LoadWeightsFrom copies weights from another network for warm
// starts. Every parameter must match in shape.
func (nw *Network) LoadWeightsFrom(other *Network) error {
	src := make(map[string]*Tensor, len(other.prms))
	for _, p := range other.prms {
		src[p.Name] = p.Val
	}
	for _, p := range nw.prms {
		w, ok := src[p.Name]
		if !ok {
			return fmt.Errorf("%w: missing weight %s", ErrShapeMismatch, p.Name)
		}
		if err := p.Val.CopyFrom(w); err != nil {
			return fmt.Errorf("weight %s: %w", p.Name, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

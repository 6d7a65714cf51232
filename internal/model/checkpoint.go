package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// checkpoint is the on-disk form of a trained network: one JSON document
// holding the bundle and every weight tensor.
type checkpoint struct {
	Bundle  Bundle   `json:"bundle"`
	Tensors []tensor `json:"tensors"`
}

type tensor struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Save writes the network to path, creating parent directories. The file
// is written to a temporary name first and renamed into place.
func (n *Network) Save(path string) error {
	ck := checkpoint{Bundle: n.Bundle()}
	for _, p := range n.Params() {
		ck.Tensors = append(ck.Tensors, tensor{Name: p.Name, Rows: p.Rows, Cols: p.Cols, Data: p.W})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(ck); err != nil {
		tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var ck checkpoint
	if err := json.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}

	n, err := New(ck.Bundle, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}

	byName := make(map[string]tensor, len(ck.Tensors))
	for _, t := range ck.Tensors {
		byName[t.Name] = t
	}
	for _, p := range n.Params() {
		t, ok := byName[p.Name]
		if !ok {
			return nil, fmt.Errorf("checkpoint %s: missing tensor %s", path, p.Name)
		}
		if t.Rows != p.Rows || t.Cols != p.Cols || len(t.Data) != len(p.W) {
			return nil, fmt.Errorf("checkpoint %s: tensor %s is %dx%d, want %dx%d", path, p.Name, t.Rows, t.Cols, p.Rows, p.Cols)
		}
		copy(p.W, t.Data)
	}
	return n, nil
}

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
)

var ErrUnsupportedVersion = errors.New("unsupported graph version")

// MarshalGraph encodes g as indented JSON. The encoding is stable: equal
// graphs produce equal bytes.
func MarshalGraph(g common.OntologyGraph) ([]byte, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return append(data, '\n'), nil
}

// UnmarshalGraph decodes a graph written by MarshalGraph.
func UnmarshalGraph(data []byte) (common.OntologyGraph, error) {
	var g common.OntologyGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return common.OntologyGraph{}, fmt.Errorf("failed to decode graph: %w", err)
	}
	if g.Version != common.GraphVersion {
		return common.OntologyGraph{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, g.Version)
	}
	return g, nil
}

// SaveGraph writes g to path, replacing any existing file atomically.
func SaveGraph(path string, g common.OntologyGraph) error {
	data, err := MarshalGraph(g)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save graph to %s: %w", path, err)
	}
	return nil
}

func LoadGraph(path string) (common.OntologyGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.OntologyGraph{}, fmt.Errorf("failed to read graph: %w", err)
	}
	return UnmarshalGraph(data)
}

package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestSaveLoadGraph(t *testing.T) {
	g := testGraph()
	path := filepath.Join(t.TempDir(), "graph.json")

	if err := SaveGraph(path, g); err != nil {
		t.Fatalf("SaveGraph() error = %v", err)
	}
	loaded, err := LoadGraph(path)
	if err != nil {
		t.Fatalf("LoadGraph() error = %v", err)
	}

	want, err := MarshalGraph(g)
	if err != nil {
		t.Fatalf("MarshalGraph() error = %v", err)
	}
	got, err := MarshalGraph(loaded)
	if err != nil {
		t.Fatalf("MarshalGraph() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("reloaded graph differs:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnmarshalGraphVersion(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"current", `{"version": "1", "entities": []}`, nil},
		{"old", `{"version": "0"}`, ErrUnsupportedVersion},
		{"missing", `{}`, ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalGraph([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UnmarshalGraph() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if _, err := UnmarshalGraph([]byte("{")); err == nil {
		t.Errorf("UnmarshalGraph(invalid) error = nil")
	}
}

func TestChunkRange(t *testing.T) {
	var got [][2]int
	_ = ChunkRange(5, 2, func(start, end int) error {
		got = append(got, [2]int{start, end})
		return nil
	})
	want := [][2]int{{0, 2}, {2, 4}, {4, 5}}
	if len(got) != len(want) {
		t.Fatalf("ChunkRange() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChunkRange()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

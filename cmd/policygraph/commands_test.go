package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/store"
)

type answerOracle struct {
	answer string
}

func (o answerOracle) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not used")
}

func (o answerOracle) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not used")
}

func (o answerOracle) GenerateChatTurn(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatTurn, error) {
	return ai.ChatTurn{Content: o.answer}, nil
}

func (o answerOracle) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (o answerOracle) ResetMetrics()                                                  {}
func (o answerOracle) GetMetrics() ai.ModelMetrics                                    { return ai.ModelMetrics{} }

func writeGraph(t *testing.T) string {
	t.Helper()
	g := common.OntologyGraph{
		Version:   common.GraphVersion,
		ID:        "g1",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sections: []common.DocumentSection{
			{ID: "s1", Header: "1. Approvals", Number: "1", Level: 1, CharEnd: 60},
		},
		Entities: []common.Entity{
			{ID: "s1_policy", Type: "Policy", Name: "Travel Policy"},
			{ID: "s1_role_cfo", Type: "Role", Name: "Chief Financial Officer"},
			{ID: "s1_training", Type: "Training", Name: "Security Training"},
		},
		Relationships: []common.Relationship{
			{SourceID: "s1_policy", TargetID: "s1_role_cfo", Type: "requires_approval_from", SectionID: "s1"},
		},
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := store.SaveGraph(path, g); err != nil {
		t.Fatalf("SaveGraph() error = %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func useOracle(t *testing.T, o ai.GraphAIClient) {
	t.Helper()
	prev := newOracle
	newOracle = func() (ai.GraphAIClient, error) { return o, nil }
	t.Cleanup(func() { newOracle = prev })
}

func TestValidateCommand(t *testing.T) {
	path := writeGraph(t)

	out, err := execute(t, "validate", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	for _, want := range []string{"Entities: 3", "Relationships: 1", "Orphans: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("validate output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "validate", "--strict", path); err == nil {
		t.Error("validate --strict should fail on a graph with an orphan")
	}
}

func TestAskCommand(t *testing.T) {
	useOracle(t, answerOracle{answer: "The Chief Financial Officer approves travel."})
	path := writeGraph(t)

	out, err := execute(t, "ask", path, "Who", "approves", "travel?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "The Chief Financial Officer approves travel." {
		t.Errorf("ask output = %q", got)
	}

	out, err = execute(t, "ask", "--json", path, "Who approves travel?")
	if err != nil {
		t.Fatalf("ask --json error = %v", err)
	}
	if !strings.Contains(out, `"state": "done"`) {
		t.Errorf("ask --json output = %s, want state done", out)
	}
}

func TestCommandErrors(t *testing.T) {
	useOracle(t, answerOracle{})
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"build missing file", []string{"build", filepath.Join(dir, "missing.txt"), "-o", filepath.Join(dir, "g.json")}},
		{"build unsupported type", []string{"build", filepath.Join(dir, "policy.xlsx")}},
		{"ask missing question", []string{"ask", filepath.Join(dir, "g.json")}},
		{"validate missing graph", []string{"validate", filepath.Join(dir, "g.json")}},
		{"mcp missing graph", []string{"mcp", filepath.Join(dir, "g.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("%v should fail", tt.args)
			}
		})
	}
}

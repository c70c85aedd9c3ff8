package model

import (
	"errors"
	"strings"
	"testing"
)

func TestReadEdgelist_SkipMaxAndComments(t *testing.T) {
	m := New("pop", 5)
	in := "from to\n# ring\n0 1\n1 2\n\n2 3\n3 4\n"
	if err := m.ReadEdgelist(strings.NewReader(in), 1, 3); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.NumEdges() != 3 {
		t.Fatalf("edges: got %d want 3", m.NumEdges())
	}
	if got := m.AdjacencyOf(3); len(got) != 1 || got[0] != 2 {
		t.Fatalf("adjacency of 3: %v", got)
	}
}

func TestReadEdgelist_Errors(t *testing.T) {
	for _, in := range []string{"0 9\n", "0\n", "a b\n"} {
		m := New("pop", 5)
		err := m.ReadEdgelist(strings.NewReader(in), 0, 0)
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Field != "edgelist" {
			t.Fatalf("%q: err = %v, want edgelist ConfigError", in, err)
		}
	}
}

func TestReadEntityTies_CreatesEntities(t *testing.T) {
	m := New("pop", 4)
	m.AddEntity("school", 1)
	in := "agent entity\n0 2\n1 2\n3 1\n"
	if err := m.ReadEntityTies(strings.NewReader(in), 1); err != nil {
		t.Fatalf("read: %v", err)
	}
	es := m.Entities()
	if len(es) != 3 || es[2].Len() != 2 || es[1].Name != "entity-1" || es[0].Len() != 0 {
		t.Fatalf("entities: %d %+v", len(es), es)
	}

	err := m.ReadEntityTies(strings.NewReader("2 0\n3 0\n"), 0)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("capacity: err = %v, want ConfigError", err)
	}
}

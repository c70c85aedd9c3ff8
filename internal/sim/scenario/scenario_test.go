package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epiworld.sim/internal/sim/model"
	"epiworld.sim/internal/sim/tuning"
)

func load(t *testing.T, doc string) tuning.Tuning {
	t.Helper()
	tu, err := tuning.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tu
}

const seir = `
name: sample
days: 30
population: {size: 200, network: ring, k: 4}
params: {beta: 0.4, gamma: 0.2, incubation: 0.5}
statuses:
  - {name: Susceptible, update: susceptible}
  - {name: Exposed, update: progress, prob: incubation, to: Infected}
  - {name: Infected, update: infected}
  - {name: Recovered}
viruses:
  - {name: flu, infecting: beta, recovery: gamma, exposed: Exposed, recovered: Recovered, count: 5}
`

func TestBuild_SEIR(t *testing.T) {
	m, err := Build(load(t, seir))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.NumStatuses() != 4 || m.Size() != 200 || m.NumEdges() != 400 {
		t.Fatalf("model: %d statuses, %d agents, %d edges", m.NumStatuses(), m.Size(), m.NumEdges())
	}
	if err := m.Init(30, 9); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	h := m.DB().History()
	if h[0][1] != 5 {
		t.Fatalf("seeded exposed = %d, want 5", h[0][1])
	}
	if h[30][3] == 0 {
		t.Fatalf("nobody recovered in 30 days")
	}
}

func TestBuild_EntitiesAndActions(t *testing.T) {
	doc := `
population:
  size: 10
  entities: [{name: house, size: 4}]
statuses:
  - {name: S}
  - {name: I}
viruses: [{name: v, infecting: 1, exposed: I, count: 1}]
tools: [{name: mask, susceptibility: 0.2}]
contacts: {source: entities, strategy: independent}
actions:
  - {name: sweep, kind: contact_sweep, status: S}
  - {name: masks, kind: distribute_tool, day: 3, status: S, tool: mask, prob: 1}
`
	m, err := Build(load(t, doc))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := len(m.Entities()); got != 3 {
		t.Fatalf("entities = %d, want 3", got)
	}
	if got := m.Entities()[2].Len(); got != 2 {
		t.Fatalf("last household = %d members, want 2", got)
	}
	if c := m.Contacts(); c.Source != model.ContactsEntities || c.Strategy != model.ExposureIndependent {
		t.Fatalf("contacts = %+v", c)
	}
	if got := len(m.GlobalActions()); got != 2 || m.GlobalActions()[0].Day != model.EveryDay || m.GlobalActions()[1].Day != 3 {
		t.Fatalf("actions = %+v", m.GlobalActions())
	}
}

func TestBuild_UnknownParameter(t *testing.T) {
	doc := strings.Replace(seir, "infecting: beta", "infecting: betta", 1)
	_, err := Build(load(t, doc))
	var ce *model.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestBuild_ReadsPopulationFiles(t *testing.T) {
	dir := t.TempDir()
	edges := filepath.Join(dir, "net.txt")
	if err := os.WriteFile(edges, []byte("source target\n0 1\n1 2\n2 3\n"), 0o644); err != nil {
		t.Fatalf("write edges: %v", err)
	}
	ties := filepath.Join(dir, "ties.txt")
	if err := os.WriteFile(ties, []byte("0 0\n1 0\n4 1\n"), 0o644); err != nil {
		t.Fatalf("write ties: %v", err)
	}

	tu := load(t, strings.Replace(seir, "{size: 200, network: ring, k: 4}", "{size: 5}", 1))
	tu.Population.Edgelist = edges
	tu.Population.EdgelistSkip = 1
	tu.Population.EntityTies = ties
	m, err := Build(tu)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.NumEdges() != 3 {
		t.Fatalf("edges = %d, want 3", m.NumEdges())
	}
	if es := m.Entities(); len(es) != 2 || es[0].Len() != 2 || es[1].Len() != 1 {
		t.Fatalf("entities = %+v", es)
	}

	tu.Population.Edgelist = filepath.Join(dir, "missing.txt")
	if _, err := Build(tu); err == nil {
		t.Fatalf("expected error for missing edgelist")
	}
}

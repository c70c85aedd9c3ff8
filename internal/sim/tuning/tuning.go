package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"epiworld.sim/internal/persistence/tables"
)

//go:embed scenario.schema.json
var schemaJSON string

// Tuning is a scenario file: the engine knobs of a batch plus the data describing the
// population, statuses, viruses and tools.
type Tuning struct {
	Name       string `yaml:"name"`
	Days       int    `yaml:"days"`
	Seed       int64  `yaml:"seed"`
	Replicates int    `yaml:"replicates"`
	Threads    int    `yaml:"threads"`

	Population Population         `yaml:"population"`
	Params     map[string]float64 `yaml:"params"`
	Statuses   []StatusSpec       `yaml:"statuses"`
	Infectious []string           `yaml:"infectious,omitempty"`
	Viruses    []VirusSpec        `yaml:"viruses"`
	Tools      []ToolSpec         `yaml:"tools,omitempty"`
	Contacts   ContactSpec        `yaml:"contacts"`
	Actions    []ActionSpec       `yaml:"actions,omitempty"`

	Output   Output   `yaml:"output"`
	Index    Index    `yaml:"index"`
	Observer Observer `yaml:"observer"`
}

type Population struct {
	Size        int     `yaml:"size"`
	Network     string  `yaml:"network"`
	K           int     `yaml:"k"`
	P           float64 `yaml:"p"`
	Directed    bool    `yaml:"directed"`
	NetworkSeed int64   `yaml:"network_seed"`

	// Edgelist adds the "from to" ties of a text file to the network. Relative paths are
	// resolved against the scenario file.
	Edgelist     string `yaml:"edgelist,omitempty"`
	EdgelistSkip int    `yaml:"edgelist_skip,omitempty"`
	EdgelistMax  int    `yaml:"edgelist_max,omitempty"`
	// EntityTies lists "agent entity" memberships, after the groups declared in Entities.
	EntityTies     string `yaml:"entity_ties,omitempty"`
	EntityTiesSkip int    `yaml:"entity_ties_skip,omitempty"`

	Entities []EntitySpec `yaml:"entities,omitempty"`
}

// EntitySpec splits the population into consecutive groups of Size agents.
type EntitySpec struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

type StatusSpec struct {
	Name string `yaml:"name"`
	// Update is one of "", "susceptible", "progress", "incubate", "infected".
	Update string   `yaml:"update,omitempty"`
	Prob   ProbSpec `yaml:"prob,omitempty"`
	Shape  ProbSpec `yaml:"shape,omitempty"`
	Scale  ProbSpec `yaml:"scale,omitempty"`
	To     string   `yaml:"to,omitempty"`
	// Queue overrides the default propagation: "none", "self", "everyone".
	Queue string `yaml:"queue,omitempty"`
}

type VirusSpec struct {
	Name       string   `yaml:"name"`
	Infecting  ProbSpec `yaml:"infecting"`
	Recovery   ProbSpec `yaml:"recovery,omitempty"`
	Death      ProbSpec `yaml:"death,omitempty"`
	Exposed    string   `yaml:"exposed"`
	Recovered  string   `yaml:"recovered,omitempty"`
	Removed    string   `yaml:"removed,omitempty"`
	Prevalence float64  `yaml:"prevalence,omitempty"`
	Count      int      `yaml:"count,omitempty"`
}

type ToolSpec struct {
	Name           string   `yaml:"name"`
	Susceptibility ProbSpec `yaml:"susceptibility,omitempty"`
	Transmission   ProbSpec `yaml:"transmission,omitempty"`
	Recovery       ProbSpec `yaml:"recovery,omitempty"`
	Death          ProbSpec `yaml:"death,omitempty"`
	Prevalence     float64  `yaml:"prevalence,omitempty"`
}

type ContactSpec struct {
	Source        string   `yaml:"source"`
	Sample        int      `yaml:"sample"`
	Replacement   bool     `yaml:"replacement"`
	Strategy      string   `yaml:"strategy"`
	Rate          ProbSpec `yaml:"rate,omitempty"`
	MaxCandidates int      `yaml:"max_candidates"`
}

// ActionSpec is a global action. Day 0 means every day.
type ActionSpec struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Day    int      `yaml:"day,omitempty"`
	Status string   `yaml:"status,omitempty"`
	Tool   string   `yaml:"tool,omitempty"`
	Prob   ProbSpec `yaml:"prob,omitempty"`
}

type Output struct {
	Dir      string           `yaml:"dir"`
	Pattern  string           `yaml:"pattern"`
	Tables   tables.Selection `yaml:"tables"`
	Snapshot bool             `yaml:"snapshot"`
	DayLog   bool             `yaml:"day_log"`
	Chart    bool             `yaml:"chart"`
}

type Index struct {
	Path string `yaml:"path"`
}

type Observer struct {
	Listen string `yaml:"listen"`
}

// ProbSpec is a probability written either as a number or as the name of a parameter.
type ProbSpec struct {
	Value float64
	Param string
}

func (p *ProbSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: probability must be a number or a parameter name", n.Line)
	}
	if n.ShortTag() == "!!str" {
		p.Param = strings.TrimSpace(n.Value)
		return nil
	}
	return n.Decode(&p.Value)
}

func (p ProbSpec) MarshalYAML() (any, error) {
	if p.Param != "" {
		return p.Param, nil
	}
	return p.Value, nil
}

func (p ProbSpec) IsZero() bool { return p.Param == "" && p.Value == 0 }

// Load reads and validates a scenario file. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	if strings.TrimSpace(path) == "" {
		t := defaults()
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return defaults(), err
	}
	t, err := Parse(raw)
	if err != nil {
		return t, err
	}
	dir := filepath.Dir(path)
	t.Population.Edgelist = resolve(dir, t.Population.Edgelist)
	t.Population.EntityTies = resolve(dir, t.Population.EntityTies)
	return t, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Parse decodes a scenario document, checking it against the embedded schema first.
func Parse(raw []byte) (Tuning, error) {
	t := defaults()
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("scenario.yaml: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return t, fmt.Errorf("scenario.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("scenario.yaml: %w", err)
	}
	return t, nil
}

var schema = jsonschema.MustCompileString("scenario.schema.json", schemaJSON)

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

func defaults() Tuning {
	return Tuning{
		Name:       "model",
		Days:       100,
		Seed:       1,
		Replicates: 1,
		Threads:    1,
		Population: Population{Network: "none"},
		Params:     map[string]float64{},
		Contacts:   ContactSpec{Source: "network", Strategy: "roulette"},
		Output:     Output{Pattern: "rep-%03d"},
		Observer:   Observer{Listen: ""},
	}
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Threads <= 0 {
		t.Threads = 1
	}
	if t.Replicates <= 0 {
		t.Replicates = 1
	}
	if t.Params == nil {
		t.Params = map[string]float64{}
	}
	t.Population.Network = lower(t.Population.Network, "none")
	t.Contacts.Source = lower(t.Contacts.Source, "network")
	t.Contacts.Strategy = lower(t.Contacts.Strategy, "roulette")
	for i := range t.Statuses {
		t.Statuses[i].Update = lower(t.Statuses[i].Update, "")
		t.Statuses[i].Queue = lower(t.Statuses[i].Queue, "")
	}
	for i := range t.Actions {
		t.Actions[i].Kind = lower(t.Actions[i].Kind, "")
	}
	if t.Output.Pattern == "" {
		t.Output.Pattern = "rep-%03d"
	}
}

func lower(s, def string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}

func (t Tuning) Validate() error {
	t.Normalize()
	if t.Days < 0 {
		return fmt.Errorf("days must be >= 0")
	}
	if t.Population.Size <= 0 {
		return fmt.Errorf("population.size must be > 0")
	}
	switch t.Population.Network {
	case "none":
	case "ring", "smallworld":
		if t.Population.K < 2 || t.Population.K%2 != 0 || t.Population.K >= t.Population.Size {
			return fmt.Errorf("population.k must be even and in [2, size)")
		}
		if t.Population.P < 0 || t.Population.P > 1 {
			return fmt.Errorf("population.p must be in [0,1]")
		}
	default:
		return fmt.Errorf("unknown population.network: %s", t.Population.Network)
	}
	if t.Population.EdgelistSkip < 0 || t.Population.EdgelistMax < 0 || t.Population.EntityTiesSkip < 0 {
		return fmt.Errorf("population skip and max counts must be >= 0")
	}
	for _, e := range t.Population.Entities {
		if e.Size <= 0 {
			return fmt.Errorf("entity %s size must be > 0", e.Name)
		}
	}

	if len(t.Statuses) == 0 {
		return fmt.Errorf("statuses must not be empty")
	}
	status := map[string]bool{}
	for _, s := range t.Statuses {
		if s.Name == "" {
			return fmt.Errorf("status name must not be empty")
		}
		if status[s.Name] {
			return fmt.Errorf("duplicate status: %s", s.Name)
		}
		status[s.Name] = true
	}
	known := func(name string) bool { return name == "" || status[name] }
	for _, s := range t.Statuses {
		switch s.Update {
		case "", "susceptible", "infected":
		case "progress", "incubate":
			if s.To == "" {
				return fmt.Errorf("status %s: %s needs to", s.Name, s.Update)
			}
		default:
			return fmt.Errorf("status %s: unknown update %s", s.Name, s.Update)
		}
		if !known(s.To) {
			return fmt.Errorf("status %s: unknown target status %s", s.Name, s.To)
		}
		switch s.Queue {
		case "", "none", "self", "everyone":
		default:
			return fmt.Errorf("status %s: unknown queue %s", s.Name, s.Queue)
		}
	}
	for _, name := range t.Infectious {
		if !status[name] {
			return fmt.Errorf("infectious: unknown status %s", name)
		}
	}

	virus := map[string]bool{}
	for _, v := range t.Viruses {
		if v.Name == "" || virus[v.Name] {
			return fmt.Errorf("virus name must be unique and non-empty: %q", v.Name)
		}
		virus[v.Name] = true
		if v.Exposed == "" || !status[v.Exposed] {
			return fmt.Errorf("virus %s: exposed must name a status", v.Name)
		}
		if !known(v.Recovered) || !known(v.Removed) {
			return fmt.Errorf("virus %s: unknown recovered/removed status", v.Name)
		}
		if v.Prevalence < 0 || v.Prevalence > 1 {
			return fmt.Errorf("virus %s: prevalence must be in [0,1]", v.Name)
		}
		if v.Count < 0 || (v.Count > 0 && v.Prevalence > 0) {
			return fmt.Errorf("virus %s: set either prevalence or count", v.Name)
		}
	}
	tool := map[string]bool{}
	for _, tl := range t.Tools {
		if tl.Name == "" || tool[tl.Name] {
			return fmt.Errorf("tool name must be unique and non-empty: %q", tl.Name)
		}
		tool[tl.Name] = true
	}

	switch t.Contacts.Source {
	case "network", "entities", "population":
	default:
		return fmt.Errorf("unknown contacts.source: %s", t.Contacts.Source)
	}
	switch t.Contacts.Strategy {
	case "roulette", "independent":
	default:
		return fmt.Errorf("unknown contacts.strategy: %s", t.Contacts.Strategy)
	}
	if t.Contacts.Sample < 0 || t.Contacts.MaxCandidates < 0 {
		return fmt.Errorf("contacts.sample and contacts.max_candidates must be >= 0")
	}

	for _, a := range t.Actions {
		switch a.Kind {
		case "contact_sweep":
			if !status[a.Status] {
				return fmt.Errorf("action %s: unknown status %s", a.Name, a.Status)
			}
		case "distribute_tool":
			if !status[a.Status] || !tool[a.Tool] {
				return fmt.Errorf("action %s: needs a known status and tool", a.Name)
			}
		default:
			return fmt.Errorf("action %s: unknown kind %s", a.Name, a.Kind)
		}
		if a.Day < 0 || a.Day > t.Days {
			return fmt.Errorf("action %s: day must be in [0, days]", a.Name)
		}
		if p := a.Prob.Param; p != "" {
			if _, ok := t.Params[p]; !ok {
				return fmt.Errorf("action %s: unknown parameter %s", a.Name, p)
			}
		}
	}
	if s := fmt.Sprintf(t.Output.Pattern, 0); strings.Contains(s, "%!") || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("output.pattern must format one integer: %q", t.Output.Pattern)
	}
	return nil
}

package model

import (
	"fmt"
	"math"

	"epiworld.sim/internal/sim/database"
	"epiworld.sim/internal/sim/rng"
)

// State is the lifecycle stage of a Model.
type State int

const (
	Configured State = iota
	Initialized
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type virusSeed struct {
	variant    int
	prevalence float64
	count      int
}

type toolSeed struct {
	id         int
	prevalence float64
}

// Model owns the population, the registries and one replicate's runtime state. It is not
// safe for concurrent use; parallel replicates each run on a Clone.
type Model struct {
	name string
	size int

	// Configuration. Shared read-only between clones once validated.
	statuses      []statusEntry
	params        *Params
	adj           [][]int
	inbound       [][]int
	directed      bool
	agentEntities [][]int
	entities      []*Entity
	viruses       []*Virus
	virusSeeds    []virusSeed
	tools         []*Tool
	toolSeeds     []toolSeed
	actions       []GlobalAction
	infectiousSet []Status
	infectious    []bool
	contacts      ContactConfig
	validated     bool

	// Runtime.
	state   State
	days    int
	seed    int64
	day     int
	agents  []Agent
	queue   *Queue
	db      *database.Database
	rng     *rng.Stream
	events  []event
	scratch contactScratch
	counts  dayCounts
	dayLog  DayLogger
	err     error
}

// New returns a model with size unconnected agents.
func New(name string, size int) *Model {
	if size < 0 {
		size = 0
	}
	return &Model{
		name:          name,
		size:          size,
		params:        NewParams(),
		adj:           make([][]int, size),
		agentEntities: make([][]int, size),
	}
}

func (m *Model) Name() string             { return m.name }
func (m *Model) Size() int                { return m.size }
func (m *Model) State() State             { return m.state }
func (m *Model) Today() int               { return m.day }
func (m *Model) Days() int                { return m.days }
func (m *Model) Seed() int64              { return m.seed }
func (m *Model) Params() *Params          { return m.params }
func (m *Model) RNG() *rng.Stream         { return m.rng }
func (m *Model) Queue() *Queue            { return m.queue }
func (m *Model) Viruses() []*Virus        { return m.viruses }
func (m *Model) Tools() []*Tool           { return m.tools }
func (m *Model) Uniform() float64         { return m.rng.Uniform() }
func (m *Model) Err() error               { return m.err }
func (m *Model) Directed() bool           { return m.directed }
func (m *Model) SetDayLogger(l DayLogger) { m.dayLog = l }

// DB is the current replicate's database.
func (m *Model) DB() *database.Database { return m.db }

// Agent returns the agent with the given id, or nil before Init.
func (m *Model) Agent(id int) *Agent {
	if id < 0 || id >= len(m.agents) {
		return nil
	}
	return &m.agents[id]
}

// SetParam adds or updates a parameter. Probabilities bound to it see the new value.
func (m *Model) SetParam(name string, v float64) { m.params.Set(name, v) }

// Param returns the named parameter, or 0 when it does not exist.
func (m *Model) Param(name string) float64 { return m.params.Value(name) }

// Eval resolves a probability against the parameter table.
func (m *Model) Eval(p Prob) float64 {
	if p.param == "" {
		return p.value
	}
	if p.bound {
		return m.params.values[p.idx]
	}
	v, ok := m.params.Get(p.param)
	if !ok {
		if m.err == nil {
			m.err = &ConfigError{Field: "param", Reason: fmt.Sprintf("unknown parameter %q", p.param)}
		}
		return 0
	}
	return v
}

// AddVirus registers a prototype seeded at the given prevalence (fraction of agents) on Init.
func (m *Model) AddVirus(v *Virus, prevalence float64) *Virus {
	m.registerVirus(v, virusSeed{prevalence: prevalence})
	return v
}

// AddVirusN registers a prototype seeded into exactly n agents on Init.
func (m *Model) AddVirusN(v *Virus, n int) *Virus {
	m.registerVirus(v, virusSeed{count: n, prevalence: -1})
	return v
}

func (m *Model) registerVirus(v *Virus, s virusSeed) {
	v.variant = len(m.viruses)
	s.variant = v.variant
	m.viruses = append(m.viruses, v)
	m.virusSeeds = append(m.virusSeeds, s)
	m.validated = false
}

// AddTool registers a tool given to the given fraction of agents on Init.
func (m *Model) AddTool(t *Tool, prevalence float64) *Tool {
	t.id = len(m.tools)
	m.tools = append(m.tools, t)
	m.toolSeeds = append(m.toolSeeds, toolSeed{id: t.id, prevalence: prevalence})
	m.validated = false
	return t
}

// Validate resolves parameter handles and checks cross references. It runs once; a
// validated model must not be reconfigured.
func (m *Model) Validate() error {
	if m.validated {
		return nil
	}
	if len(m.statuses) == 0 {
		return &ConfigError{Field: "statuses", Reason: "at least one status is required"}
	}
	for _, st := range m.statuses {
		if b, ok := st.update.(binder); ok {
			if err := b.bind(m); err != nil {
				return err
			}
		}
		if st.queue.Scope == Inherit {
			return &ConfigError{Field: "status " + st.name, Reason: "default propagation cannot inherit"}
		}
	}
	for _, v := range m.viruses {
		if err := v.bind(m); err != nil {
			return err
		}
	}
	for i, s := range m.virusSeeds {
		if s.prevalence > 1 || (s.prevalence < 0 && s.count < 0) {
			return &ConfigError{Field: "virus " + m.viruses[i].Name, Reason: "invalid seeding"}
		}
	}
	for _, t := range m.tools {
		if err := t.bind(m); err != nil {
			return err
		}
	}
	if err := m.contacts.ContactRate.bind(m.params, "contacts.rate"); err != nil {
		return err
	}
	if m.contacts.MaxCandidates <= 0 {
		m.contacts.MaxCandidates = DefaultMaxCandidates
	}
	if m.contacts.SampleSize < 0 {
		return &ConfigError{Field: "contacts.sample", Reason: "must be >= 0"}
	}
	m.infectious = nil
	if len(m.infectiousSet) > 0 {
		m.infectious = make([]bool, len(m.statuses))
		for _, s := range m.infectiousSet {
			if !m.validStatus(s) {
				return &ConfigError{Field: "infectious", Reason: fmt.Sprintf("status %d out of range", s)}
			}
			m.infectious[s] = true
		}
	}
	m.inbound = nil
	if m.directed {
		m.inbound = make([][]int, m.size)
		for from, row := range m.adj {
			for _, to := range row {
				m.inbound[to] = append(m.inbound[to], from)
			}
		}
	}
	for i := range m.actions {
		act := &m.actions[i]
		if act.Action == nil {
			return &ConfigError{Field: "action " + act.Name, Reason: "nil action"}
		}
		if b, ok := act.Action.(binder); ok {
			if err := b.bind(m); err != nil {
				return err
			}
		}
	}
	m.validated = true
	return nil
}

// Init validates the configuration and prepares a fresh replicate: all agents start in the
// first status, viruses and tools are seeded, the queue holds every agent whose status has
// an updater and the database holds only the day 0 snapshot.
func (m *Model) Init(days int, seed int64) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if days < 0 {
		return &ConfigError{Field: "days", Reason: "must be >= 0"}
	}
	m.days = days
	m.seed = seed
	if m.rng == nil {
		m.rng = rng.New(uint64(seed))
	} else {
		m.rng.Reseed(uint64(seed))
	}
	m.reset()
	return nil
}

func (m *Model) reset() {
	if len(m.agents) != m.size {
		m.agents = make([]Agent, m.size)
	}
	for i := range m.agents {
		m.agents[i].reset(i, m.adj[i], m.agentEntities[i])
	}
	if m.db == nil {
		m.db = database.New(m.StatusNames(), m.virusNames(), m.toolNames())
	} else {
		m.db.Reset()
	}
	if m.queue == nil || len(m.queue.counts) != m.size {
		m.queue = newQueue(m.size)
	}
	m.scratch.reset(m.size, m.contacts.MaxCandidates)
	m.events = m.events[:0]
	m.queue.pending = m.queue.pending[:0]
	m.err = nil
	m.day = 0

	m.seedViruses()
	m.seedTools()

	for i := range m.agents {
		m.queue.counts[i] = 0
		if m.statuses[m.agents[i].status].update != nil {
			m.queue.counts[i] = 1
		}
	}
	m.recordDay()
	m.state = Initialized
}

func (m *Model) seedViruses() {
	for _, s := range m.virusSeeds {
		v := m.viruses[s.variant]
		n := s.count
		if s.prevalence >= 0 {
			n = int(math.Round(s.prevalence * float64(m.size)))
		}
		cand := m.scratch.pool[:0]
		for i := range m.agents {
			if len(m.agents[i].viruses) == 0 {
				cand = append(cand, i)
			}
		}
		m.rng.Shuffle(cand)
		if n > len(cand) {
			n = len(cand)
		}
		for _, id := range cand[:n] {
			a := &m.agents[id]
			a.viruses = append(a.viruses, v.instantiate(0))
			a.status = v.Exposed
			m.db.RecordTransmission(0, database.SeedSource, id, v.variant)
		}
		m.scratch.pool = cand[:0]
	}
}

func (m *Model) seedTools() {
	for _, s := range m.toolSeeds {
		t := m.tools[s.id]
		n := int(math.Round(s.prevalence * float64(m.size)))
		if n <= 0 {
			continue
		}
		cand := m.scratch.pool[:0]
		for i := range m.agents {
			cand = append(cand, i)
		}
		m.rng.Shuffle(cand)
		if n > len(cand) {
			n = len(cand)
		}
		for _, id := range cand[:n] {
			a := &m.agents[id]
			a.tools = append(a.tools, t.instantiate(0))
		}
		m.scratch.pool = cand[:0]
	}
}

// Run executes days until the horizon. It stops at the first invariant fault.
func (m *Model) Run() error {
	if m.state != Initialized {
		return fmt.Errorf("run: model is %s, want initialized", m.state)
	}
	m.state = Running
	for m.day < m.days {
		if err := m.Step(); err != nil {
			return err
		}
	}
	m.state = Finished
	return nil
}

// Step simulates one day: the agent pass, then each due global action, then the daily
// snapshot.
func (m *Model) Step() error {
	if m.state != Running && m.state != Initialized {
		return fmt.Errorf("step: model is %s", m.state)
	}
	m.state = Running
	m.day++
	startTx := len(m.db.Transmissions())
	startTr := len(m.db.Transitions())

	for id := range m.agents {
		if m.queue.counts[id] <= 0 {
			continue
		}
		a := &m.agents[id]
		u := m.statuses[a.status].update
		if u == nil {
			continue
		}
		u.Update(a, m)
		if m.err != nil {
			return m.err
		}
	}
	m.applyEvents()
	m.queue.flush(m)

	for i := range m.actions {
		act := &m.actions[i]
		if !act.due(m.day) {
			continue
		}
		act.Action.Apply(m)
		if m.err != nil {
			return m.err
		}
		m.applyEvents()
		m.queue.flush(m)
	}

	m.recordDay()
	if m.day >= m.days {
		m.state = Finished
	}
	if m.dayLog != nil {
		entry := DayLogEntry{
			Day:           m.day,
			Counts:        m.counts.status,
			Transmissions: m.db.Transmissions()[startTx:],
			Transitions:   m.db.Transitions()[startTr:],
			Queued:        m.queue.Len(),
		}
		if err := m.dayLog.WriteDay(entry); err != nil {
			return fmt.Errorf("day log: %w", err)
		}
	}
	return nil
}

// Clone returns a model sharing this model's validated configuration with a private
// parameter table and no runtime state. Call Validate or Init on the receiver first.
func (m *Model) Clone() *Model {
	c := &Model{
		name:          m.name,
		size:          m.size,
		statuses:      m.statuses[:len(m.statuses):len(m.statuses)],
		params:        m.params.clone(),
		adj:           m.adj,
		inbound:       m.inbound,
		directed:      m.directed,
		agentEntities: m.agentEntities,
		entities:      m.entities[:len(m.entities):len(m.entities)],
		viruses:       m.viruses[:len(m.viruses):len(m.viruses)],
		virusSeeds:    m.virusSeeds[:len(m.virusSeeds):len(m.virusSeeds)],
		tools:         m.tools[:len(m.tools):len(m.tools)],
		toolSeeds:     m.toolSeeds[:len(m.toolSeeds):len(m.toolSeeds)],
		actions:       m.actions[:len(m.actions):len(m.actions)],
		infectiousSet: m.infectiousSet,
		infectious:    m.infectious,
		contacts:      m.contacts,
		validated:     m.validated,
		days:          m.days,
		seed:          m.seed,
	}
	return c
}

type dayCounts struct {
	status  []int
	variant [][]int
	tool    [][]int
}

func (m *Model) recordDay() {
	ns := len(m.statuses)
	c := &m.counts
	if len(c.status) != ns {
		c.status = make([]int, ns)
		c.variant = grid(len(m.viruses), ns)
		c.tool = grid(len(m.tools), ns)
	}
	clear(c.status)
	for _, row := range c.variant {
		clear(row)
	}
	for _, row := range c.tool {
		clear(row)
	}
	for i := range m.agents {
		a := &m.agents[i]
		c.status[a.status]++
		for _, v := range a.viruses {
			c.variant[v.variant][a.status]++
		}
		for _, t := range a.tools {
			c.tool[t.id][a.status]++
		}
	}
	m.db.RecordDay(c.status, c.variant, c.tool)
}

func grid(rows, cols int) [][]int {
	g := make([][]int, rows)
	for i := range g {
		g[i] = make([]int, cols)
	}
	return g
}

func (m *Model) virusNames() []string {
	out := make([]string, len(m.viruses))
	for i, v := range m.viruses {
		out[i] = v.Name
	}
	return out
}

func (m *Model) toolNames() []string {
	out := make([]string, len(m.tools))
	for i, t := range m.tools {
		out[i] = t.Name
	}
	return out
}

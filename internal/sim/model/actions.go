package model

// EveryDay schedules a global action on all days.
const EveryDay = -1

// Action is the body of a global action. Actions that hold Prob handles get them bound
// when the model is validated.
type Action interface {
	Apply(m *Model)
}

type ActionFunc func(m *Model)

func (f ActionFunc) Apply(m *Model) { f(m) }

// GlobalAction runs once per day, after the agent pass, in registration order. Its
// mutation requests are applied before the next action runs.
type GlobalAction struct {
	Name   string
	Day    int
	Action Action
}

func (g *GlobalAction) due(day int) bool {
	return g.Day == EveryDay || g.Day == day
}

// AddGlobalAction schedules act on every day.
func (m *Model) AddGlobalAction(name string, act Action) {
	m.AddGlobalActionOn(name, EveryDay, act)
}

// AddGlobalActionOn schedules act on a single day.
func (m *Model) AddGlobalActionOn(name string, day int, act Action) {
	m.actions = append(m.actions, GlobalAction{Name: name, Day: day, Action: act})
	m.validated = false
}

func (m *Model) GlobalActions() []GlobalAction { return m.actions }

// ContactSweep exposes every agent in status to its sampled contacts. It ignores the
// queue, so the swept status does not need an updater.
func ContactSweep(status Status) Action {
	return ActionFunc(func(m *Model) {
		for id := range m.agents {
			a := &m.agents[id]
			if a.status != status {
				continue
			}
			if v, src, ok := m.SampleExposure(a); ok {
				m.Infect(a, v, src)
			}
			if m.err != nil {
				return
			}
		}
	})
}

// DistributeTool gives t to each agent in status with probability p.
func DistributeTool(t *Tool, status Status, p Prob) Action {
	return &toolDistribution{tool: t, status: status, prob: p}
}

type toolDistribution struct {
	tool   *Tool
	status Status
	prob   Prob
}

func (d *toolDistribution) Apply(m *Model) {
	prob := m.Eval(d.prob)
	for id := range m.agents {
		a := &m.agents[id]
		if a.status != d.status || a.toolIndex(d.tool.id) >= 0 {
			continue
		}
		if m.rng.Uniform() < prob {
			m.GiveTool(a, d.tool)
		}
	}
}

func (d *toolDistribution) bind(m *Model) error {
	if d.tool == nil {
		return &ConfigError{Field: "distribute_tool.tool", Reason: "nil tool"}
	}
	if !m.validStatus(d.status) {
		return &ConfigError{Field: "distribute_tool.status", Reason: "status out of range"}
	}
	return d.prob.bind(m.params, "distribute_tool.prob")
}

package model

import (
	"fmt"
	"math"
)

// UpdateSusceptible samples the agent's contacts and infects it on a successful exposure.
var UpdateSusceptible Updater = UpdaterFunc(func(a *Agent, m *Model) {
	if v, src, ok := m.SampleExposure(a); ok {
		m.Infect(a, v, src)
	}
})

// UpdateInfected lets the agent's first virus either clear, moving the agent to the virus
// Recovered status, or kill, moving it to Removed. One draw decides.
var UpdateInfected Updater = UpdaterFunc(func(a *Agent, m *Model) {
	v := a.Virus(0)
	if v == nil {
		return
	}
	w := [2]float64{m.RecoveryProb(a, v), m.DeathProb(a, v)}
	switch Roulette(w[:], m.rng) {
	case 0:
		m.RecoverFrom(a, v)
	case 1:
		m.Kill(a, v)
	}
})

// Progress moves the agent to To with daily probability Prob.
type Progress struct {
	Prob Prob
	To   Status
}

func (p *Progress) Update(a *Agent, m *Model) {
	if m.rng.Uniform() < m.Eval(p.Prob) {
		m.ChangeStatus(a, p.To)
	}
}

func (p *Progress) bind(m *Model) error {
	if !m.validStatus(p.To) {
		return &ConfigError{Field: "progress.to", Reason: fmt.Sprintf("status %d out of range", p.To)}
	}
	return p.Prob.bind(m.params, "progress.prob")
}

// Incubate draws a Gamma(Shape, Scale) incubation period for the agent's first virus the
// first time it is visited, stores it in the virus data at Slot, and moves the agent to To
// once that many days have passed since infection. A NaN at Slot means not yet drawn; a
// Payload that already holds a number there fixes the period instead.
type Incubate struct {
	Shape Prob
	Scale Prob
	Slot  int
	To    Status
}

func (u *Incubate) Update(a *Agent, m *Model) {
	v := a.Virus(0)
	if v == nil {
		return
	}
	for len(v.data) <= u.Slot {
		v.data = append(v.data, math.NaN())
	}
	if math.IsNaN(v.data[u.Slot]) {
		v.data[u.Slot] = m.rng.Gamma(m.Eval(u.Shape), m.Eval(u.Scale))
	}
	if float64(m.day-v.date) >= v.data[u.Slot] {
		m.ChangeStatus(a, u.To)
	}
}

func (u *Incubate) bind(m *Model) error {
	if !m.validStatus(u.To) {
		return &ConfigError{Field: "incubate.to", Reason: fmt.Sprintf("status %d out of range", u.To)}
	}
	if u.Slot < 0 {
		return &ConfigError{Field: "incubate.slot", Reason: "must be >= 0"}
	}
	if err := u.Shape.bind(m.params, "incubate.shape"); err != nil {
		return err
	}
	return u.Scale.bind(m.params, "incubate.scale")
}

// Chain runs several updaters in order on the same agent.
type Chain []Updater

func (c Chain) Update(a *Agent, m *Model) {
	for _, u := range c {
		u.Update(a, m)
	}
}

func (c Chain) bind(m *Model) error {
	for _, u := range c {
		if b, ok := u.(binder); ok {
			if err := b.bind(m); err != nil {
				return err
			}
		}
	}
	return nil
}

package model

import "math"

// ContactSource selects where an exposed agent draws its contacts from.
type ContactSource int

const (
	ContactsNetwork ContactSource = iota
	ContactsEntities
	ContactsPopulation
)

// ExposureStrategy decides how candidate transmissions become one infection.
type ExposureStrategy int

const (
	// ExposureRoulette draws once over the candidate weights; the residual mass is no infection.
	ExposureRoulette ExposureStrategy = iota
	// ExposureIndependent treats every candidate as an independent trial and then picks the
	// source among them in proportion to its weight.
	ExposureIndependent
)

const DefaultMaxCandidates = 4096

// ContactConfig controls contact sampling for exposure.
type ContactConfig struct {
	Source ContactSource
	// SampleSize caps the contacts examined per agent per day. Zero examines all of them.
	// For ContactsPopulation it is the fixed number of draws when ContactRate is zero.
	SampleSize  int
	Replacement bool
	Strategy    ExposureStrategy
	// ContactRate is the mean daily contacts for ContactsPopulation.
	ContactRate Prob
	// MaxCandidates bounds the per-agent candidate buffer; overflowing it aborts the run.
	MaxCandidates int
}

// SetContacts replaces the contact sampling configuration.
func (m *Model) SetContacts(c ContactConfig) {
	m.contacts = c
	m.validated = false
}

func (m *Model) Contacts() ContactConfig { return m.contacts }

type contactScratch struct {
	pool    []int
	picks   []int
	viruses []*Virus
	sources []int
	weights []float64
	mark    []uint32
	stamp   uint32
}

func (s *contactScratch) reset(n, maxCandidates int) {
	if cap(s.weights) < maxCandidates {
		s.viruses = make([]*Virus, 0, maxCandidates)
		s.sources = make([]int, 0, maxCandidates)
		s.weights = make([]float64, 0, maxCandidates)
	}
	if len(s.mark) != n {
		s.mark = make([]uint32, n)
		s.stamp = 0
	}
}

func (s *contactScratch) nextStamp() uint32 {
	s.stamp++
	if s.stamp == 0 {
		clear(s.mark)
		s.stamp = 1
	}
	return s.stamp
}

// eachContact visits the agents that can sample id as a contact: network neighbours, or
// agents with a tie into id on directed networks, and entity co-members. Duplicates are
// possible when an agent is reachable both ways.
func (m *Model) eachContact(id int, fn func(c int)) {
	adj := m.adj
	if m.inbound != nil {
		adj = m.inbound
	}
	for _, c := range adj[id] {
		fn(c)
	}
	for _, e := range m.agentEntities[id] {
		for _, c := range m.entities[e].members {
			if c != id {
				fn(c)
			}
		}
	}
}

// IsInfectious reports whether the agent can transmit today.
func (m *Model) IsInfectious(a *Agent) bool {
	if len(a.viruses) == 0 {
		return false
	}
	if len(m.infectious) == 0 {
		return true
	}
	return m.infectious[a.status]
}

// TransmissionWeight is the probability that v passes from source to target in one contact.
func (m *Model) TransmissionWeight(target, source *Agent, v *Virus) float64 {
	w := (1 - m.combined(target, effectSusceptibility)) * clamp01(m.Eval(v.Infecting)) *
		(1 - m.combined(source, effectTransmission))
	return clamp01(w)
}

// RecoveryProb combines the virus recovery rate with the agent's tools.
func (m *Model) RecoveryProb(a *Agent, v *Virus) float64 {
	base := clamp01(m.Eval(v.Recovery))
	return 1 - (1-base)*(1-m.combined(a, effectRecovery))
}

// DeathProb is the virus death rate reduced by the agent's tools.
func (m *Model) DeathProb(a *Agent, v *Virus) float64 {
	return clamp01(m.Eval(v.Death)) * (1 - m.combined(a, effectDeath))
}

// SampleExposure samples the agent's contacts for today and decides whether one of them
// infects it. ok is false when no transmission happens.
func (m *Model) SampleExposure(a *Agent) (v *Virus, source int, ok bool) {
	sc := &m.scratch
	contacts := m.sampleContacts(a)
	if len(contacts) == 0 {
		return nil, 0, false
	}
	sc.viruses = sc.viruses[:0]
	sc.sources = sc.sources[:0]
	sc.weights = sc.weights[:0]
	for _, c := range contacts {
		src := &m.agents[c]
		if !m.IsInfectious(src) {
			continue
		}
		for _, sv := range src.viruses {
			w := m.TransmissionWeight(a, src, sv)
			if w <= 0 {
				continue
			}
			if len(sc.weights) >= m.contacts.MaxCandidates {
				m.abort(a.id, "exposure candidates exceed %d", m.contacts.MaxCandidates)
				return nil, 0, false
			}
			sc.viruses = append(sc.viruses, sv)
			sc.sources = append(sc.sources, c)
			sc.weights = append(sc.weights, w)
		}
	}
	if len(sc.weights) == 0 {
		return nil, 0, false
	}
	var idx int
	switch m.contacts.Strategy {
	case ExposureIndependent:
		idx = m.independentExposure(sc.weights)
	default:
		idx = Roulette(sc.weights, m.rng)
	}
	if idx == NoOutcome {
		return nil, 0, false
	}
	return sc.viruses[idx], sc.sources[idx], true
}

func (m *Model) independentExposure(weights []float64) int {
	escape := 1.0
	sum := 0.0
	for _, w := range weights {
		escape *= 1 - w
		sum += w
	}
	if m.rng.Uniform() >= 1-escape {
		return NoOutcome
	}
	u := m.rng.Uniform() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

// sampleContacts returns today's contacts of a. The slice is only valid until the next call.
func (m *Model) sampleContacts(a *Agent) []int {
	sc := &m.scratch
	cfg := m.contacts
	var pool []int
	switch cfg.Source {
	case ContactsPopulation:
		return m.samplePopulation(a)
	case ContactsEntities:
		stamp := sc.nextStamp()
		sc.mark[a.id] = stamp
		sc.pool = sc.pool[:0]
		for _, e := range a.entities {
			for _, c := range m.entities[e].members {
				if sc.mark[c] != stamp {
					sc.mark[c] = stamp
					sc.pool = append(sc.pool, c)
				}
			}
		}
		pool = sc.pool
	default:
		pool = a.neighbors
	}
	k := cfg.SampleSize
	if len(pool) == 0 || k <= 0 || (k >= len(pool) && !cfg.Replacement) {
		return pool
	}
	sc.picks = sc.picks[:0]
	if cfg.Replacement {
		for i := 0; i < k; i++ {
			sc.picks = append(sc.picks, pool[m.rng.Intn(len(pool))])
		}
		return sc.picks
	}
	sc.picks = append(sc.picks, pool...)
	for i := 0; i < k; i++ {
		j := i + m.rng.Intn(len(sc.picks)-i)
		sc.picks[i], sc.picks[j] = sc.picks[j], sc.picks[i]
	}
	return sc.picks[:k]
}

func (m *Model) samplePopulation(a *Agent) []int {
	sc := &m.scratch
	n := len(m.agents) - 1
	if n <= 0 {
		return nil
	}
	k := m.contacts.SampleSize
	if rate := m.Eval(m.contacts.ContactRate); rate > 0 {
		k = m.rng.Binomial(n, math.Min(1, rate/float64(n)))
	}
	if k <= 0 {
		return nil
	}
	if !m.contacts.Replacement && k > n {
		k = n
	}
	sc.picks = sc.picks[:0]
	stamp := sc.nextStamp()
	for len(sc.picks) < k {
		c := m.rng.Intn(n)
		if c >= a.id {
			c++
		}
		if !m.contacts.Replacement {
			if sc.mark[c] == stamp {
				continue
			}
			sc.mark[c] = stamp
		}
		sc.picks = append(sc.picks, c)
	}
	return sc.picks
}

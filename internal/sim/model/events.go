package model

type eventKind uint8

const (
	eventStatus eventKind = iota
	eventInfect
	eventRemoveVirus
	eventGiveTool
	eventRemoveTool
)

// event is a buffered mutation request. Requests made during a phase are applied in order
// once the phase ends, so every updater of the phase sees the same state.
type event struct {
	kind   eventKind
	agent  int
	to     Status
	code   Propagation
	virus  *Virus
	tool   *Tool
	source int
}

// ChangeStatus requests a status change using the target status propagation.
func (m *Model) ChangeStatus(a *Agent, to Status) {
	m.ChangeStatusWith(a, to, QueueDefault)
}

func (m *Model) ChangeStatusWith(a *Agent, to Status, q Propagation) {
	if !m.validStatus(to) {
		m.abort(a.id, "status %d out of range", to)
		return
	}
	m.events = append(m.events, event{kind: eventStatus, agent: a.id, to: to, code: q})
}

// Infect requests that a acquires a copy of v. source is the transmitting agent or
// database.SeedSource.
func (m *Model) Infect(a *Agent, v *Virus, source int) {
	if v == nil || v.variant < 0 || v.variant >= len(m.viruses) {
		m.abort(a.id, "infect with unregistered virus")
		return
	}
	m.events = append(m.events, event{kind: eventInfect, agent: a.id, virus: v, source: source})
}

// RecoverFrom removes v and moves the agent to the virus Recovered status.
func (m *Model) RecoverFrom(a *Agent, v *Virus) {
	m.RemoveVirus(a, v, v.Recovered, v.QueueEnd)
}

// Kill removes v and moves the agent to the virus Removed status.
func (m *Model) Kill(a *Agent, v *Virus) {
	m.RemoveVirus(a, v, v.Removed, v.QueueRemoved)
}

// RemoveVirus detaches the instance v from a. to may be NoStatus.
func (m *Model) RemoveVirus(a *Agent, v *Virus, to Status, q Propagation) {
	if v == nil || v.variant < 0 || v.variant >= len(m.viruses) {
		m.abort(a.id, "remove unregistered virus")
		return
	}
	if to != NoStatus && !m.validStatus(to) {
		m.abort(a.id, "status %d out of range", to)
		return
	}
	m.events = append(m.events, event{kind: eventRemoveVirus, agent: a.id, virus: v, to: to, code: q})
}

// GiveTool attaches a copy of the registered tool t.
func (m *Model) GiveTool(a *Agent, t *Tool) {
	if t == nil || t.id < 0 || t.id >= len(m.tools) {
		m.abort(a.id, "give unregistered tool")
		return
	}
	m.events = append(m.events, event{kind: eventGiveTool, agent: a.id, tool: t})
}

func (m *Model) RemoveTool(a *Agent, t *Tool) {
	if t == nil {
		return
	}
	m.events = append(m.events, event{kind: eventRemoveTool, agent: a.id, tool: t})
}

func (m *Model) applyEvents() {
	for i := range m.events {
		ev := &m.events[i]
		a := &m.agents[ev.agent]
		switch ev.kind {
		case eventStatus:
			m.setStatus(a, ev.to)
			m.queue.push(a.id, m.resolve(ev.code, ev.to))
		case eventInfect:
			if a.virusIndex(ev.virus.variant) >= 0 {
				continue
			}
			proto := m.viruses[ev.virus.variant]
			a.viruses = append(a.viruses, proto.instantiate(m.day))
			m.db.RecordTransmission(m.day, ev.source, a.id, proto.variant)
			m.setStatus(a, proto.Exposed)
			m.queue.push(a.id, m.resolve(proto.QueueInit, proto.Exposed))
		case eventRemoveVirus:
			idx := a.instanceIndex(ev.virus)
			if idx < 0 && m.viruses[ev.virus.variant] == ev.virus {
				idx = a.virusIndex(ev.virus.variant)
			}
			if idx < 0 {
				continue
			}
			a.viruses = append(a.viruses[:idx], a.viruses[idx+1:]...)
			to := ev.to
			if to == NoStatus {
				to = a.status
			}
			m.setStatus(a, to)
			m.queue.push(a.id, m.resolve(ev.code, to))
		case eventGiveTool:
			if a.toolIndex(ev.tool.id) >= 0 {
				continue
			}
			a.tools = append(a.tools, m.tools[ev.tool.id].instantiate(m.day))
		case eventRemoveTool:
			if j := a.toolIndex(ev.tool.id); j >= 0 {
				a.tools = append(a.tools[:j], a.tools[j+1:]...)
			}
		}
		ev.virus, ev.tool = nil, nil
	}
	m.events = m.events[:0]
}

func (m *Model) setStatus(a *Agent, to Status) {
	if a.status == to {
		return
	}
	m.db.RecordTransition(m.day, a.id, int(a.status), int(to))
	a.status = to
}

func (m *Model) resolve(q Propagation, to Status) Propagation {
	if q.Scope == Inherit {
		return m.statuses[to].queue
	}
	return q
}

func (a *Agent) instanceIndex(v *Virus) int {
	for i, own := range a.viruses {
		if own == v {
			return i
		}
	}
	return -1
}

func (a *Agent) toolIndex(id int) int {
	for i, t := range a.tools {
		if t.id == id {
			return i
		}
	}
	return -1
}

package model

import "fmt"

// Entity is a named group of agents, such as a household or workplace. Membership is
// part of the configuration and is shared by clones.
type Entity struct {
	id       int
	Name     string
	Capacity int
	members  []int
}

func (e *Entity) ID() int        { return e.id }
func (e *Entity) Members() []int { return e.members }
func (e *Entity) Len() int       { return len(e.members) }

// AddEntity registers a group. A non-positive capacity means unlimited.
func (m *Model) AddEntity(name string, capacity int) *Entity {
	e := &Entity{id: len(m.entities), Name: name, Capacity: capacity}
	m.entities = append(m.entities, e)
	return e
}

// AddToEntity makes agent a member of entity.
func (m *Model) AddToEntity(agent, entity int) error {
	if agent < 0 || agent >= m.size {
		return &ConfigError{Field: "entity member", Reason: fmt.Sprintf("agent %d out of range", agent)}
	}
	if entity < 0 || entity >= len(m.entities) {
		return &ConfigError{Field: "entity", Reason: fmt.Sprintf("entity %d out of range", entity)}
	}
	e := m.entities[entity]
	if e.Capacity > 0 && len(e.members) >= e.Capacity {
		return &ConfigError{Field: "entity " + e.Name, Reason: fmt.Sprintf("capacity %d reached", e.Capacity)}
	}
	for _, id := range m.agentEntities[agent] {
		if id == entity {
			return nil
		}
	}
	e.members = append(e.members, agent)
	m.agentEntities[agent] = append(m.agentEntities[agent], entity)
	return nil
}

func (m *Model) Entities() []*Entity { return m.entities }

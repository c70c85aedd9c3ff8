package model

// Agent is one individual of the population. Its state changes only through mutation
// requests on the Model.
type Agent struct {
	id        int
	status    Status
	viruses   []*Virus
	tools     []*Tool
	neighbors []int
	entities  []int
}

func (a *Agent) ID() int             { return a.id }
func (a *Agent) Status() Status      { return a.status }
func (a *Agent) Viruses() []*Virus   { return a.viruses }
func (a *Agent) NumViruses() int     { return len(a.viruses) }
func (a *Agent) Tools() []*Tool      { return a.tools }
func (a *Agent) NumTools() int       { return len(a.tools) }
func (a *Agent) Neighbors() []int    { return a.neighbors }
func (a *Agent) Entities() []int     { return a.entities }
func (a *Agent) HasVirus(v int) bool { return a.virusIndex(v) >= 0 }

// Virus returns the i-th virus carried by the agent, or nil.
func (a *Agent) Virus(i int) *Virus {
	if i < 0 || i >= len(a.viruses) {
		return nil
	}
	return a.viruses[i]
}

func (a *Agent) Tool(i int) *Tool {
	if i < 0 || i >= len(a.tools) {
		return nil
	}
	return a.tools[i]
}

func (a *Agent) virusIndex(variant int) int {
	for i, v := range a.viruses {
		if v.variant == variant {
			return i
		}
	}
	return -1
}

func (a *Agent) reset(id int, neighbors, entities []int) {
	a.id = id
	a.status = 0
	clear(a.viruses)
	a.viruses = a.viruses[:0]
	clear(a.tools)
	a.tools = a.tools[:0]
	a.neighbors = neighbors
	a.entities = entities
}

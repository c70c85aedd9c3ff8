package model

// Status indexes the model's status table.
type Status int

// NoStatus leaves the agent's status unchanged where a target status is optional.
const NoStatus Status = -1

// Updater runs once per simulated day for every queued agent in a status that has one.
// Updaters read state and request mutations through the Model; requests are applied
// after the whole pass.
type Updater interface {
	Update(a *Agent, m *Model)
}

type UpdaterFunc func(a *Agent, m *Model)

func (f UpdaterFunc) Update(a *Agent, m *Model) { f(a, m) }

// binder is implemented by built-in updaters that hold Prob handles or status targets.
type binder interface {
	bind(m *Model) error
}

type statusEntry struct {
	name   string
	update Updater
	queue  Propagation
}

// AddStatus appends a status. A nil updater makes the status passive: agents in it are not
// visited by the daily pass and leave the queue when they enter it.
func (m *Model) AddStatus(name string, u Updater) Status {
	q := QueueSelf
	if u == nil {
		q = QueueNoOne
	}
	m.statuses = append(m.statuses, statusEntry{name: name, update: u, queue: q})
	m.validated = false
	return Status(len(m.statuses) - 1)
}

// SetStatusQueue overrides the propagation applied when an agent enters s without an
// explicit code.
func (m *Model) SetStatusQueue(s Status, q Propagation) {
	if !m.validStatus(s) {
		return
	}
	m.statuses[s].queue = q
}

// SetInfectious restricts which statuses make a virus carrier a transmission source.
// With no statuses set every carrier is infectious.
func (m *Model) SetInfectious(statuses ...Status) {
	m.infectiousSet = append(m.infectiousSet[:0:0], statuses...)
	m.validated = false
}

func (m *Model) NumStatuses() int { return len(m.statuses) }

func (m *Model) StatusName(s Status) string {
	if !m.validStatus(s) {
		return ""
	}
	return m.statuses[s].name
}

func (m *Model) StatusNames() []string {
	out := make([]string, len(m.statuses))
	for i, st := range m.statuses {
		out[i] = st.name
	}
	return out
}

// StatusByName returns the status called name.
func (m *Model) StatusByName(name string) (Status, bool) {
	for i, st := range m.statuses {
		if st.name == name {
			return Status(i), true
		}
	}
	return NoStatus, false
}

func (m *Model) validStatus(s Status) bool {
	return s >= 0 && int(s) < len(m.statuses)
}

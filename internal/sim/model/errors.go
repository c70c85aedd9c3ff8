package model

import "fmt"

// ConfigError reports an invalid model configuration. It is returned before any day runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// InvariantError is an internal fault detected while a run is in progress. Day and Agent
// identify where it happened so the run can be reproduced from its seed.
type InvariantError struct {
	Day    int
	Agent  int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on day %d (agent %d): %s", e.Day, e.Agent, e.Reason)
}

func (m *Model) abort(agent int, format string, args ...any) {
	if m.err != nil {
		return
	}
	m.err = &InvariantError{Day: m.day, Agent: agent, Reason: fmt.Sprintf(format, args...)}
}

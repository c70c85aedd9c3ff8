package model

import "epiworld.sim/internal/sim/database"

// DayLogEntry summarizes one simulated day. Its slices are only valid during WriteDay.
type DayLogEntry struct {
	Day           int                     `json:"day"`
	Counts        []int                   `json:"counts"`
	Queued        int                     `json:"queued"`
	Transmissions []database.Transmission `json:"transmissions,omitempty"`
	Transitions   []database.Transition   `json:"transitions,omitempty"`
}

// DayLogger receives a record at the end of every simulated day.
type DayLogger interface {
	WriteDay(e DayLogEntry) error
}

// Package database records what happens during one simulation run.
//
// A Database is append-only while a run is in progress: daily status counts, transmission
// events and status-transition events. Everything else (reproductive numbers, transition
// matrices, generation times) is derived on demand from those logs.
package database

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// SeedSource is the source id recorded for infections placed at initialization.
const SeedSource = -1

type Transmission struct {
	Day     int `json:"day"`
	Source  int `json:"source"`
	Target  int `json:"target"`
	Variant int `json:"variant"`
}

type Transition struct {
	Day   int `json:"day"`
	Agent int `json:"agent"`
	From  int `json:"from"`
	To    int `json:"to"`
}

type Database struct {
	statusNames  []string
	variantNames []string
	toolNames    []string

	history        [][]int
	variantHistory [][][]int
	toolHistory    [][][]int

	transmissions []Transmission
	transitions   []Transition
}

func New(statusNames, variantNames, toolNames []string) *Database {
	return &Database{
		statusNames:  append([]string(nil), statusNames...),
		variantNames: append([]string(nil), variantNames...),
		toolNames:    append([]string(nil), toolNames...),
	}
}

// Reset empties every log while keeping the name tables.
func (db *Database) Reset() {
	db.history = db.history[:0]
	db.variantHistory = db.variantHistory[:0]
	db.toolHistory = db.toolHistory[:0]
	db.transmissions = db.transmissions[:0]
	db.transitions = db.transitions[:0]
}

// RecordDay appends the end-of-day tallies. Slices are copied.
// variantCounts and toolCounts are indexed [variant|tool][status] and may be nil.
func (db *Database) RecordDay(counts []int, variantCounts, toolCounts [][]int) {
	db.history = append(db.history, append([]int(nil), counts...))
	db.variantHistory = append(db.variantHistory, copyGrid(variantCounts))
	db.toolHistory = append(db.toolHistory, copyGrid(toolCounts))
}

func (db *Database) RecordTransmission(day, source, target, variant int) {
	db.transmissions = append(db.transmissions, Transmission{Day: day, Source: source, Target: target, Variant: variant})
}

func (db *Database) RecordTransition(day, agent, from, to int) {
	if from == to {
		return
	}
	db.transitions = append(db.transitions, Transition{Day: day, Agent: agent, From: from, To: to})
}

func (db *Database) StatusNames() []string  { return db.statusNames }
func (db *Database) VariantNames() []string { return db.variantNames }
func (db *Database) ToolNames() []string    { return db.toolNames }

// Days is the number of recorded daily snapshots.
func (db *Database) Days() int { return len(db.history) }

func (db *Database) History() [][]int              { return db.history }
func (db *Database) VariantHistory() [][][]int     { return db.variantHistory }
func (db *Database) ToolHistory() [][][]int        { return db.toolHistory }
func (db *Database) Transmissions() []Transmission { return db.transmissions }
func (db *Database) Transitions() []Transition     { return db.transitions }

// TodayTotals returns the status names and the most recent daily counts.
func (db *Database) TodayTotals() ([]string, []int) {
	if len(db.history) == 0 {
		return db.statusNames, make([]int, len(db.statusNames))
	}
	last := db.history[len(db.history)-1]
	return db.statusNames, append([]int(nil), last...)
}

// Digest hashes the three logs. Two runs with equal digests recorded the same history.
func (db *Database) Digest() string {
	h := sha256.New()
	var buf [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = h.Write(buf[:])
	}
	put(len(db.history))
	for _, row := range db.history {
		for _, c := range row {
			put(c)
		}
	}
	put(len(db.transmissions))
	for _, tr := range db.transmissions {
		put(tr.Day)
		put(tr.Source)
		put(tr.Target)
		put(tr.Variant)
	}
	put(len(db.transitions))
	for _, tr := range db.transitions {
		put(tr.Day)
		put(tr.Agent)
		put(tr.From)
		put(tr.To)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

func copyGrid(g [][]int) [][]int {
	if g == nil {
		return nil
	}
	out := make([][]int, len(g))
	for i, row := range g {
		out[i] = append([]int(nil), row...)
	}
	return out
}

package database

import "epiworld.sim/internal/persistence/snapshot"

// ExportSnapshot copies the logs into their persisted form. The digest is filled in.
func (db *Database) ExportSnapshot(h snapshot.Header) snapshot.DatabaseV1 {
	h.Version = snapshot.Version
	h.Digest = db.Digest()
	out := snapshot.DatabaseV1{
		Header:         h,
		StatusNames:    append([]string(nil), db.statusNames...),
		VariantNames:   append([]string(nil), db.variantNames...),
		ToolNames:      append([]string(nil), db.toolNames...),
		History:        copyGrid(db.history),
		VariantHistory: make([][][]int, len(db.variantHistory)),
		ToolHistory:    make([][][]int, len(db.toolHistory)),
		Transmissions:  make([]snapshot.TransmissionV1, len(db.transmissions)),
		Transitions:    make([]snapshot.TransitionV1, len(db.transitions)),
	}
	for i, g := range db.variantHistory {
		out.VariantHistory[i] = copyGrid(g)
	}
	for i, g := range db.toolHistory {
		out.ToolHistory[i] = copyGrid(g)
	}
	for i, tr := range db.transmissions {
		out.Transmissions[i] = snapshot.TransmissionV1{Day: tr.Day, Source: tr.Source, Target: tr.Target, Variant: tr.Variant}
	}
	for i, tr := range db.transitions {
		out.Transitions[i] = snapshot.TransitionV1{Day: tr.Day, Agent: tr.Agent, From: tr.From, To: tr.To}
	}
	return out
}

// FromSnapshot rebuilds a Database from persisted logs.
func FromSnapshot(s snapshot.DatabaseV1) *Database {
	db := New(s.StatusNames, s.VariantNames, s.ToolNames)
	for i, row := range s.History {
		var vh, th [][]int
		if i < len(s.VariantHistory) {
			vh = s.VariantHistory[i]
		}
		if i < len(s.ToolHistory) {
			th = s.ToolHistory[i]
		}
		db.RecordDay(row, vh, th)
	}
	for _, tr := range s.Transmissions {
		db.RecordTransmission(tr.Day, tr.Source, tr.Target, tr.Variant)
	}
	for _, tr := range s.Transitions {
		db.RecordTransition(tr.Day, tr.Agent, tr.From, tr.To)
	}
	return db
}

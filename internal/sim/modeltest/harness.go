package modeltest

import (
	"testing"

	"epiworld.sim/internal/sim/model"
)

// SEIR is a small ring-network SEIR model used by black-box tests:
// - Susceptible agents sample their neighbours every day
// - Exposed agents become infectious with daily probability "incubation"
// - Infected agents recover with daily probability "recovery"
type SEIR struct {
	T     testing.TB
	Model *model.Model
	Virus *model.Virus

	S, E, I, R model.Status
}

// NewSEIR builds an n-agent ring of degree k with seeds initial infections.
func NewSEIR(t testing.TB, n, k, seeds int) *SEIR {
	t.Helper()

	m := model.New("seir", n)
	m.SetParam("transmission", 0.9)
	m.SetParam("incubation", 0.5)
	m.SetParam("recovery", 0.3)

	h := &SEIR{T: t, Model: m}
	incubate := &model.Progress{Prob: model.Param("incubation")}
	h.S = m.AddStatus("Susceptible", model.UpdateSusceptible)
	h.E = m.AddStatus("Exposed", incubate)
	h.I = m.AddStatus("Infected", model.UpdateInfected)
	h.R = m.AddStatus("Recovered", nil)
	incubate.To = h.I
	m.SetInfectious(h.E, h.I)

	v := model.NewVirus("flu")
	v.Infecting = model.Param("transmission")
	v.Recovery = model.Param("recovery")
	v.Exposed = h.E
	v.Recovered = h.R
	h.Virus = m.AddVirusN(v, seeds)

	if err := m.ConnectRing(k); err != nil {
		t.Fatalf("ring: %v", err)
	}
	return h
}

// Run initializes and runs the model for days with seed.
func (h *SEIR) Run(days int, seed int64) {
	h.T.Helper()
	if err := h.Model.Init(days, seed); err != nil {
		h.T.Fatalf("init: %v", err)
	}
	if err := h.Model.Run(); err != nil {
		h.T.Fatalf("run: %v", err)
	}
}

// Digest runs a fresh copy of the model and returns the database digest.
func Digest(t testing.TB, n, days int, seed int64) string {
	t.Helper()
	h := NewSEIR(t, n, 2, 1)
	h.Run(days, seed)
	return h.Model.DB().Digest()
}

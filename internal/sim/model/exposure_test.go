package model_test

import (
	"errors"
	"math"
	"testing"

	"epiworld.sim/internal/sim/model"
)

// triangle returns three fully tied agents, two of them infected with a w=0.3 virus, and
// the one left susceptible.
func triangle(t *testing.T, c model.ContactConfig) (*model.Model, *model.Agent) {
	t.Helper()
	m := model.New("triangle", 3)
	m.AddStatus("S", nil)
	i := m.AddStatus("I", nil)
	v := model.NewVirus("x")
	v.Infecting = model.Const(0.3)
	v.Exposed = i
	m.AddVirusN(v, 2)
	for _, e := range [][2]int{{0, 1}, {0, 2}, {1, 2}} {
		if err := m.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("edge: %v", err)
		}
	}
	m.SetContacts(c)
	if err := m.Init(1, 5); err != nil {
		t.Fatalf("init: %v", err)
	}
	for id := 0; id < 3; id++ {
		if a := m.Agent(id); a.NumViruses() == 0 {
			return m, a
		}
	}
	t.Fatalf("no susceptible agent after seeding")
	return nil, nil
}

func TestExposure_StrategyFrequencies(t *testing.T) {
	cases := []struct {
		name string
		cfg  model.ContactConfig
		want float64
	}{
		{"roulette", model.ContactConfig{}, 0.6},
		{"independent", model.ContactConfig{Strategy: model.ExposureIndependent}, 0.51},
		{"independent one contact", model.ContactConfig{Strategy: model.ExposureIndependent, SampleSize: 1}, 0.3},
		{"roulette with replacement", model.ContactConfig{SampleSize: 2, Replacement: true}, 0.6},
	}
	const n = 100000
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, a := triangle(t, tc.cfg)
			hits := 0
			for k := 0; k < n; k++ {
				if v, src, ok := m.SampleExposure(a); ok {
					if v == nil || src == a.ID() {
						t.Fatalf("exposure from %d with virus %v", src, v)
					}
					hits++
				}
			}
			if f := float64(hits) / n; math.Abs(f-tc.want) > 0.01 {
				t.Fatalf("infection frequency %.4f, want %.2f", f, tc.want)
			}
		})
	}
}

func TestIncubate_DrawsIntoSlotAndProgresses(t *testing.T) {
	const days = 15
	m := model.New("incubate", 50)
	m.AddStatus("S", nil)
	inc := &model.Incubate{Shape: model.Const(4), Scale: model.Const(1), Slot: 1}
	e := m.AddStatus("E", inc)
	i := m.AddStatus("I", nil)
	inc.To = i
	v := model.NewVirus("x")
	v.Exposed = e
	m.AddVirusN(v, 50)
	if err := m.Init(days, 3); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	moved := map[int]int{}
	for _, tr := range m.DB().Transitions() {
		if tr.To == int(i) {
			moved[tr.Agent] = tr.Day
		}
	}
	for id := 0; id < m.Size(); id++ {
		a := m.Agent(id)
		data := a.Virus(0).Data()
		if len(data) != 2 || !math.IsNaN(data[0]) || !(data[1] > 0) {
			t.Fatalf("agent %d payload %v, want [NaN, period]", id, data)
		}
		want := int(math.Max(1, math.Ceil(data[1])))
		day, ok := moved[id]
		switch {
		case want <= days && (!ok || day != want):
			t.Fatalf("agent %d with period %.2f moved on day %d (%v), want %d", id, data[1], day, ok, want)
		case want > days && ok:
			t.Fatalf("agent %d with period %.2f moved early on day %d", id, data[1], day)
		}
	}
}

func TestIncubate_PresetPayloadFixesPeriod(t *testing.T) {
	m := model.New("preset", 4)
	m.AddStatus("S", nil)
	inc := &model.Incubate{Shape: model.Const(4), Scale: model.Const(1)}
	e := m.AddStatus("E", inc)
	i := m.AddStatus("I", nil)
	inc.To = i
	v := model.NewVirus("x")
	v.Exposed = e
	v.Payload = []float64{3}
	m.AddVirusN(v, 4)
	if err := m.Init(5, 1); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, tr := range m.DB().Transitions() {
		if tr.To == int(i) && tr.Day != 3 {
			t.Fatalf("transition %+v, want day 3", tr)
		}
	}
	if got := m.DB().History()[5][i]; got != 4 {
		t.Fatalf("infected = %d, want 4", got)
	}
}

func TestGlobalAction_UnknownParameterFailsInit(t *testing.T) {
	m := model.New("actions", 10)
	s := m.AddStatus("S", model.UpdateSusceptible)
	mask := m.AddTool(model.NewTool("mask"), 0)
	m.AddGlobalActionOn("vax", 5, model.DistributeTool(mask, s, model.Param("coverage")))
	err := m.Init(10, 1)
	var ce *model.ConfigError
	if !errors.As(err, &ce) || ce.Field != "distribute_tool.prob" {
		t.Fatalf("init err = %v, want unknown parameter", err)
	}
	if m.State() == model.Initialized {
		t.Fatalf("model initialized with an unbound action parameter")
	}
}

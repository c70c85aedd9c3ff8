package model

// ToolFunc computes a day-dependent effect for a tool instance, overriding the constant.
type ToolFunc func(t *Tool, day int, p *Params) float64

// Tool is a prototype for an intervention carried by agents. Each effect is a probability
// in [0,1]; reductions from several tools combine as 1 - prod(1 - r).
type Tool struct {
	Name string

	SusceptibilityReduction Prob
	TransmissionReduction   Prob
	RecoveryEnhancement     Prob
	DeathReduction          Prob

	Susceptibility ToolFunc
	Transmission   ToolFunc
	Recovery       ToolFunc
	Death          ToolFunc

	Payload []float64

	id   int
	date int
	data []float64
}

func NewTool(name string) *Tool {
	return &Tool{Name: name, id: -1}
}

func (t *Tool) ID() int         { return t.id }
func (t *Tool) Date() int       { return t.date }
func (t *Tool) Data() []float64 { return t.data }

func (t *Tool) instantiate(day int) *Tool {
	inst := *t
	inst.date = day
	inst.data = append([]float64(nil), t.Payload...)
	inst.Payload = nil
	return &inst
}

func (t *Tool) bind(m *Model) error {
	field := "tool " + t.Name
	for _, p := range []struct {
		name string
		prob *Prob
	}{
		{".susceptibility", &t.SusceptibilityReduction},
		{".transmission", &t.TransmissionReduction},
		{".recovery", &t.RecoveryEnhancement},
		{".death", &t.DeathReduction},
	} {
		if err := p.prob.bind(m.params, field+p.name); err != nil {
			return err
		}
	}
	return nil
}

type toolEffect int

const (
	effectSusceptibility toolEffect = iota
	effectTransmission
	effectRecovery
	effectDeath
)

func (m *Model) toolEffect(t *Tool, e toolEffect) float64 {
	var (
		fn ToolFunc
		p  Prob
	)
	switch e {
	case effectSusceptibility:
		fn, p = t.Susceptibility, t.SusceptibilityReduction
	case effectTransmission:
		fn, p = t.Transmission, t.TransmissionReduction
	case effectRecovery:
		fn, p = t.Recovery, t.RecoveryEnhancement
	default:
		fn, p = t.Death, t.DeathReduction
	}
	if fn != nil {
		return clamp01(fn(t, m.day, m.params))
	}
	return clamp01(m.Eval(p))
}

// combined returns 1 - prod(1 - r) over the agent's tools.
func (m *Model) combined(a *Agent, e toolEffect) float64 {
	if len(a.tools) == 0 {
		return 0
	}
	keep := 1.0
	for _, t := range a.tools {
		keep *= 1 - m.toolEffect(t, e)
	}
	return 1 - keep
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

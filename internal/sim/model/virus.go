package model

// Virus is a pathogen prototype. Registered prototypes are copied into agents on infection;
// the copy carries the infection day and a private data payload.
type Virus struct {
	Name string

	Infecting Prob
	Recovery  Prob
	Death     Prob

	// Exposed is the status an agent enters when infected. Recovered and Removed are
	// optional; NoStatus keeps the agent's status when the virus leaves.
	Exposed   Status
	Recovered Status
	Removed   Status

	QueueInit    Propagation
	QueueEnd     Propagation
	QueueRemoved Propagation

	// Payload seeds the data of every instance.
	Payload []float64

	variant int
	date    int
	data    []float64
}

// NewVirus returns a prototype with no status targets and zero probabilities.
func NewVirus(name string) *Virus {
	return &Virus{
		Name:         name,
		Exposed:      NoStatus,
		Recovered:    NoStatus,
		Removed:      NoStatus,
		QueueEnd:     QueueDefault,
		QueueRemoved: QueueDefault,
		variant:      -1,
	}
}

// Variant is the prototype index this virus was registered under.
func (v *Virus) Variant() int { return v.variant }

// Date is the day the instance was acquired.
func (v *Virus) Date() int { return v.date }

// Data is the instance payload. Updaters may write to it.
func (v *Virus) Data() []float64 { return v.data }

// SetData replaces the instance payload.
func (v *Virus) SetData(d []float64) { v.data = d }

func (v *Virus) instantiate(day int) *Virus {
	inst := *v
	inst.date = day
	inst.data = append([]float64(nil), v.Payload...)
	inst.Payload = nil
	return &inst
}

func (v *Virus) bind(m *Model) error {
	field := "virus " + v.Name
	if err := v.Infecting.bind(m.params, field+".infecting"); err != nil {
		return err
	}
	if err := v.Recovery.bind(m.params, field+".recovery"); err != nil {
		return err
	}
	if err := v.Death.bind(m.params, field+".death"); err != nil {
		return err
	}
	if !m.validStatus(v.Exposed) {
		return &ConfigError{Field: field + ".exposed", Reason: "status out of range"}
	}
	for _, s := range []Status{v.Recovered, v.Removed} {
		if s != NoStatus && !m.validStatus(s) {
			return &ConfigError{Field: field, Reason: "status out of range"}
		}
	}
	return nil
}

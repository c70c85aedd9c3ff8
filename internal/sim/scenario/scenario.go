// Package scenario turns a tuning file into a configured model.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"epiworld.sim/internal/sim/model"
	"epiworld.sim/internal/sim/tuning"
)

func prob(p tuning.ProbSpec) model.Prob {
	if p.Param != "" {
		return model.Param(p.Param)
	}
	return model.Const(p.Value)
}

// Build creates the model described by t. The model is validated but not initialized.
func Build(t tuning.Tuning) (*model.Model, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	m := model.New(t.Name, t.Population.Size)

	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.SetParam(name, t.Params[name])
	}

	if err := buildStatuses(m, t); err != nil {
		return nil, err
	}
	if err := buildPopulation(m, t.Population); err != nil {
		return nil, err
	}

	for _, vs := range t.Viruses {
		v := model.NewVirus(vs.Name)
		v.Infecting = prob(vs.Infecting)
		v.Recovery = prob(vs.Recovery)
		v.Death = prob(vs.Death)
		v.Exposed = status(m, vs.Exposed)
		v.Recovered = status(m, vs.Recovered)
		v.Removed = status(m, vs.Removed)
		if vs.Count > 0 {
			m.AddVirusN(v, vs.Count)
		} else {
			m.AddVirus(v, vs.Prevalence)
		}
	}

	tools := map[string]*model.Tool{}
	for _, ts := range t.Tools {
		tl := model.NewTool(ts.Name)
		tl.SusceptibilityReduction = prob(ts.Susceptibility)
		tl.TransmissionReduction = prob(ts.Transmission)
		tl.RecoveryEnhancement = prob(ts.Recovery)
		tl.DeathReduction = prob(ts.Death)
		tools[ts.Name] = m.AddTool(tl, ts.Prevalence)
	}

	c := model.ContactConfig{
		SampleSize:    t.Contacts.Sample,
		Replacement:   t.Contacts.Replacement,
		ContactRate:   prob(t.Contacts.Rate),
		MaxCandidates: t.Contacts.MaxCandidates,
	}
	switch t.Contacts.Source {
	case "entities":
		c.Source = model.ContactsEntities
	case "population":
		c.Source = model.ContactsPopulation
	}
	if t.Contacts.Strategy == "independent" {
		c.Strategy = model.ExposureIndependent
	}
	m.SetContacts(c)

	for _, a := range t.Actions {
		var act model.Action
		switch a.Kind {
		case "contact_sweep":
			act = model.ContactSweep(status(m, a.Status))
		case "distribute_tool":
			act = model.DistributeTool(tools[a.Tool], status(m, a.Status), prob(a.Prob))
		}
		if a.Day > 0 {
			m.AddGlobalActionOn(a.Name, a.Day, act)
		} else {
			m.AddGlobalAction(a.Name, act)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func status(m *model.Model, name string) model.Status {
	if name == "" {
		return model.NoStatus
	}
	s, _ := m.StatusByName(name)
	return s
}

// buildStatuses adds statuses in file order, then resolves targets once every name exists.
func buildStatuses(m *model.Model, t tuning.Tuning) error {
	type pending struct {
		to  string
		set func(model.Status)
	}
	var later []pending
	for _, ss := range t.Statuses {
		var u model.Updater
		switch ss.Update {
		case "susceptible":
			u = model.UpdateSusceptible
		case "infected":
			u = model.UpdateInfected
		case "progress":
			p := &model.Progress{Prob: prob(ss.Prob)}
			later = append(later, pending{ss.To, func(s model.Status) { p.To = s }})
			u = p
		case "incubate":
			inc := &model.Incubate{Shape: prob(ss.Shape), Scale: prob(ss.Scale)}
			later = append(later, pending{ss.To, func(s model.Status) { inc.To = s }})
			u = inc
		}
		s := m.AddStatus(ss.Name, u)
		switch ss.Queue {
		case "none":
			m.SetStatusQueue(s, model.QueueNoOne)
		case "self":
			m.SetStatusQueue(s, model.QueueSelf)
		case "everyone":
			m.SetStatusQueue(s, model.QueueEveryone)
		}
	}
	for _, p := range later {
		s, ok := m.StatusByName(p.to)
		if !ok {
			return &model.ConfigError{Field: "status.to", Reason: fmt.Sprintf("unknown status %q", p.to)}
		}
		p.set(s)
	}
	var infectious []model.Status
	for _, name := range t.Infectious {
		infectious = append(infectious, status(m, name))
	}
	m.SetInfectious(infectious...)
	return nil
}

func buildPopulation(m *model.Model, p tuning.Population) error {
	m.SetDirected(p.Directed)
	switch p.Network {
	case "ring":
		if err := m.ConnectRing(p.K); err != nil {
			return err
		}
	case "smallworld":
		if err := m.ConnectSmallWorld(p.K, p.P, p.NetworkSeed); err != nil {
			return err
		}
	}
	for _, es := range p.Entities {
		first := len(m.Entities())
		for id := 0; id < p.Size; id++ {
			if id%es.Size == 0 {
				m.AddEntity(fmt.Sprintf("%s-%d", es.Name, id/es.Size), es.Size)
			}
			if err := m.AddToEntity(id, first+id/es.Size); err != nil {
				return err
			}
		}
	}
	if p.Edgelist != "" {
		if err := readFile(p.Edgelist, func(f *os.File) error { return m.ReadEdgelist(f, p.EdgelistSkip, p.EdgelistMax) }); err != nil {
			return err
		}
	}
	if p.EntityTies != "" {
		if err := readFile(p.EntityTies, func(f *os.File) error { return m.ReadEntityTies(f, p.EntityTiesSkip) }); err != nil {
			return err
		}
	}
	return nil
}

func readFile(path string, read func(f *os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

package model

import (
	"fmt"
	"sort"
)

// Params is the per-model parameter table. Names are resolved to indices once, when the
// prototypes referencing them are validated; values may change at any time.
type Params struct {
	names  []string
	index  map[string]int
	values []float64
}

func NewParams() *Params {
	return &Params{index: map[string]int{}}
}

// Set adds name or updates its value.
func (p *Params) Set(name string, v float64) {
	if i, ok := p.index[name]; ok {
		p.values[i] = v
		return
	}
	p.index[name] = len(p.values)
	p.names = append(p.names, name)
	p.values = append(p.values, v)
}

func (p *Params) Get(name string) (float64, bool) {
	i, ok := p.index[name]
	if !ok {
		return 0, false
	}
	return p.values[i], true
}

// Value returns the parameter or 0 when it does not exist.
func (p *Params) Value(name string) float64 {
	v, _ := p.Get(name)
	return v
}

func (p *Params) Len() int { return len(p.values) }

// Names returns the parameter names sorted alphabetically.
func (p *Params) Names() []string {
	out := append([]string(nil), p.names...)
	sort.Strings(out)
	return out
}

func (p *Params) clone() *Params {
	c := &Params{
		names:  append([]string(nil), p.names...),
		index:  make(map[string]int, len(p.index)),
		values: append([]float64(nil), p.values...),
	}
	for k, v := range p.index {
		c.index[k] = v
	}
	return c
}

// Prob is a probability that is either a constant or a live handle on a named parameter.
// The zero value is the constant 0.
type Prob struct {
	value float64
	param string
	idx   int
	bound bool
}

func Const(v float64) Prob { return Prob{value: v} }

// Param refers to the model parameter called name. Changing the parameter changes
// every Prob bound to it.
func Param(name string) Prob { return Prob{param: name} }

// Name is the referenced parameter, or "" for constants.
func (p Prob) Name() string { return p.param }

func (p Prob) IsZero() bool { return p.param == "" && p.value == 0 }

func (p *Prob) bind(params *Params, field string) error {
	if p.param == "" {
		return nil
	}
	i, ok := params.index[p.param]
	if !ok {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("unknown parameter %q", p.param)}
	}
	p.idx = i
	p.bound = true
	return nil
}

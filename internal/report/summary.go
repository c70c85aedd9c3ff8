// Package report renders batch summaries and epidemic curves.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"epiworld.sim/internal/sim/model"
)

// Summary describes a finished batch.
type Summary struct {
	Name       string
	Population int
	Entities   int
	Edges      int
	Days       int
	Variants   []string
	Tools      []string
	Params     map[string]float64

	Replicates int
	Threads    int
	Elapsed    time.Duration

	Statuses []string
	Initial  []float64
	Final    []float64
}

// NewSummary collects the model description and the mean first and last day of curves.
func NewSummary(m *model.Model, c *Curves, threads int, elapsed time.Duration) Summary {
	s := Summary{
		Name:       m.Name(),
		Population: m.Size(),
		Entities:   len(m.Entities()),
		Edges:      m.NumEdges(),
		Days:       c.Days() - 1,
		Params:     map[string]float64{},
		Replicates: c.Replicates(),
		Threads:    threads,
		Elapsed:    elapsed,
		Statuses:   c.Statuses,
	}
	for _, v := range m.Viruses() {
		s.Variants = append(s.Variants, v.Name)
	}
	for _, t := range m.Tools() {
		s.Tools = append(s.Tools, t.Name)
	}
	for _, name := range m.Params().Names() {
		s.Params[name] = m.Param(name)
	}
	if mean := c.Mean(); len(mean) > 0 {
		s.Initial = mean[0]
		s.Final = mean[len(mean)-1]
	}
	return s
}

// AgentDaysPerSecond is the simulation throughput over the whole batch.
func (s Summary) AgentDaysPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Population) * float64(s.Days) * float64(s.Replicates) / s.Elapsed.Seconds()
}

func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	rule := strings.Repeat("_", 80)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "SIMULATION STUDY")
	fmt.Fprintln(&b)
	row := func(label, value string) { fmt.Fprintf(&b, "%-20s: %s\n", label, value) }
	row("Name of the model", orNone(s.Name))
	row("Population size", humanize.Comma(int64(s.Population)))
	row("Network ties", humanize.Comma(int64(s.Edges)))
	row("Number of entities", humanize.Comma(int64(s.Entities)))
	row("Days (duration)", humanize.Comma(int64(s.Days)))
	row("Replicates", fmt.Sprintf("%s (%d threads)", humanize.Comma(int64(s.Replicates)), s.Threads))
	row("Total elapsed t", s.Elapsed.Round(time.Millisecond).String())
	row("Speed", strings.TrimSpace(humanize.SIWithDigits(s.AgentDaysPerSecond(), 2, ""))+" agents x day / second")
	fmt.Fprintln(&b)

	list := func(title string, names []string) {
		fmt.Fprintf(&b, "%s:\n", title)
		if len(names) == 0 {
			fmt.Fprintln(&b, " (none)")
		}
		for _, n := range names {
			fmt.Fprintf(&b, " - %s\n", n)
		}
		fmt.Fprintln(&b)
	}
	list("Virus(es)", s.Variants)
	list("Tool(s)", s.Tools)

	fmt.Fprintln(&b, "Model parameters:")
	names := make([]string, 0, len(s.Params))
	for n := range s.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(&b, " (none)")
	}
	for _, n := range names {
		fmt.Fprintf(&b, " - %-18s: %s\n", n, humanize.FtoaWithDigits(s.Params[n], 4))
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Mean distribution of the population at time %d:\n", s.Days)
	for i, name := range s.Statuses {
		var from, to float64
		if i < len(s.Initial) {
			from = s.Initial[i]
		}
		if i < len(s.Final) {
			to = s.Final[i]
		}
		fmt.Fprintf(&b, "  - (%d) %-12s: %s -> %s\n", i, name,
			humanize.CommafWithDigits(from, 1), humanize.CommafWithDigits(to, 1))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

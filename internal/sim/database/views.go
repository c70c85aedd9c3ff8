package database

import "sort"

// RepNum is the number of downstream transmissions attributed to one source exposure.
type RepNum struct {
	Variant     int
	Source      int
	ExposureDay int
	Count       int
}

type exposureKey struct {
	variant int
	agent   int
}

type repKey struct {
	variant int
	source  int
	day     int
}

// ReproductiveNumbers groups downstream transmissions by (variant, source, source exposure day).
// Every recorded exposure gets a row, so sources that never transmitted appear with Count 0.
// A transmission is attributed to the source's latest exposure to the same variant.
func (db *Database) ReproductiveNumbers() []RepNum {
	exposed := map[exposureKey]int{}
	counts := map[repKey]int{}
	var order []repKey

	for _, tr := range db.transmissions {
		if tr.Source != SeedSource {
			day, ok := exposed[exposureKey{tr.Variant, tr.Source}]
			if !ok {
				day = -1
			}
			k := repKey{tr.Variant, tr.Source, day}
			if _, seen := counts[k]; !seen {
				order = append(order, k)
			}
			counts[k]++
		}
		exposed[exposureKey{tr.Variant, tr.Target}] = tr.Day
		k := repKey{tr.Variant, tr.Target, tr.Day}
		if _, seen := counts[k]; !seen {
			counts[k] = 0
			order = append(order, k)
		}
	}

	out := make([]RepNum, 0, len(order))
	for _, k := range order {
		out = append(out, RepNum{Variant: k.variant, Source: k.source, ExposureDay: k.day, Count: counts[k]})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ExposureDay < b.ExposureDay
	})
	return out
}

// GenerationTime is the gap between a source's exposure and the exposure it caused.
type GenerationTime struct {
	Variant     int
	Source      int
	ExposureDay int
	Gap         int
}

func (db *Database) GenerationTimes() []GenerationTime {
	exposed := map[exposureKey]int{}
	var out []GenerationTime
	for _, tr := range db.transmissions {
		if tr.Source != SeedSource {
			if day, ok := exposed[exposureKey{tr.Variant, tr.Source}]; ok {
				out = append(out, GenerationTime{
					Variant:     tr.Variant,
					Source:      tr.Source,
					ExposureDay: day,
					Gap:         tr.Day - day,
				})
			}
		}
		exposed[exposureKey{tr.Variant, tr.Target}] = tr.Day
	}
	return out
}

// MeanGenerationTime returns the average gap per variant. Variants without
// attributed transmissions are absent from the map.
func MeanGenerationTime(gts []GenerationTime) map[int]float64 {
	sum := map[int]int{}
	n := map[int]int{}
	for _, g := range gts {
		sum[g.Variant] += g.Gap
		n[g.Variant]++
	}
	out := make(map[int]float64, len(n))
	for v, c := range n {
		out[v] = float64(sum[v]) / float64(c)
	}
	return out
}

type TransitionCount struct {
	Day   int
	From  int
	To    int
	Count int
}

// TransitionCounts tallies transition events per (day, from, to), ordered by day then from, to.
func (db *Database) TransitionCounts() []TransitionCount {
	type key struct{ day, from, to int }
	counts := map[key]int{}
	for _, tr := range db.transitions {
		counts[key{tr.Day, tr.From, tr.To}]++
	}
	out := make([]TransitionCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, TransitionCount{Day: k.day, From: k.from, To: k.to, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return out
}

// TransitionMatrix estimates P(to | from) from the transition log. Row i holds departures
// from status i; rows without observed departures stay all-zero.
func (db *Database) TransitionMatrix() [][]float64 {
	n := len(db.statusNames)
	for _, tr := range db.transitions {
		if tr.From >= n {
			n = tr.From + 1
		}
		if tr.To >= n {
			n = tr.To + 1
		}
	}
	counts := make([][]int, n)
	for i := range counts {
		counts[i] = make([]int, n)
	}
	for _, tr := range db.transitions {
		counts[tr.From][tr.To]++
	}
	out := make([][]float64, n)
	for i, row := range counts {
		out[i] = make([]float64, n)
		total := 0
		for _, c := range row {
			total += c
		}
		if total == 0 {
			continue
		}
		for j, c := range row {
			out[i][j] = float64(c) / float64(total)
		}
	}
	return out
}

package model

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"epiworld.sim/internal/sim/rng"
)

// SetDirected makes AddEdge create one-way ties. Call it before adding edges.
func (m *Model) SetDirected(d bool) {
	m.directed = d
	m.validated = false
}

// AddEdge ties from to to, and to to from unless the model is directed. Self loops and
// duplicate ties are ignored.
func (m *Model) AddEdge(from, to int) error {
	if from < 0 || from >= m.size || to < 0 || to >= m.size {
		return &ConfigError{Field: "edge", Reason: fmt.Sprintf("%d-%d out of range", from, to)}
	}
	if from == to {
		return nil
	}
	if !slices.Contains(m.adj[from], to) {
		m.adj[from] = append(m.adj[from], to)
	}
	if !m.directed && !slices.Contains(m.adj[to], from) {
		m.adj[to] = append(m.adj[to], from)
	}
	m.validated = false
	return nil
}

// ConnectRing ties every agent to its k nearest agents on a ring, k/2 on each side.
func (m *Model) ConnectRing(k int) error {
	if k < 2 || k%2 != 0 || k >= m.size {
		return &ConfigError{Field: "ring.k", Reason: fmt.Sprintf("need even 2 <= k < %d, got %d", m.size, k)}
	}
	for i := 0; i < m.size; i++ {
		for j := 1; j <= k/2; j++ {
			if err := m.AddEdge(i, (i+j)%m.size); err != nil {
				return err
			}
		}
	}
	return nil
}

// ConnectSmallWorld builds a Watts-Strogatz network: a ring lattice of degree k whose ties
// are rewired to a uniformly chosen agent with probability p. The topology depends only
// on seed.
func (m *Model) ConnectSmallWorld(k int, p float64, seed int64) error {
	if k < 2 || k%2 != 0 || k >= m.size {
		return &ConfigError{Field: "smallworld.k", Reason: fmt.Sprintf("need even 2 <= k < %d, got %d", m.size, k)}
	}
	if p < 0 || p > 1 {
		return &ConfigError{Field: "smallworld.p", Reason: "must be in [0,1]"}
	}
	r := rng.New(uint64(seed))
	for i := 0; i < m.size; i++ {
		for j := 1; j <= k/2; j++ {
			to := (i + j) % m.size
			if r.Uniform() < p {
				for tries := 0; tries < m.size; tries++ {
					c := r.Intn(m.size)
					if c != i && !slices.Contains(m.adj[i], c) {
						to = c
						break
					}
				}
			}
			if err := m.AddEdge(i, to); err != nil {
				return err
			}
		}
	}
	return nil
}

// NumEdges counts ties; undirected ties count once.
func (m *Model) NumEdges() int {
	n := 0
	for _, row := range m.adj {
		n += len(row)
	}
	if !m.directed {
		n /= 2
	}
	return n
}

// WriteEdgelist writes one "from to" line per tie. Undirected ties are written once.
func (m *Model) WriteEdgelist(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for from, row := range m.adj {
		for _, to := range row {
			if !m.directed && to < from {
				continue
			}
			if _, err := fmt.Fprintf(bw, "%d %d\n", from, to); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// AdjacencyOf returns the agents id is tied to.
func (m *Model) AdjacencyOf(id int) []int {
	if id < 0 || id >= m.size {
		return nil
	}
	return m.adj[id]
}

package model

import "testing"

// ringModel returns n agents on a ring with a single active status whose updater is fn.
func ringModel(t *testing.T, n int, fn func(a *Agent, m *Model)) *Model {
	t.Helper()
	m := New("queue", n)
	m.AddStatus("Active", UpdaterFunc(fn))
	if err := m.ConnectRing(2); err != nil {
		t.Fatalf("ring: %v", err)
	}
	if err := m.Init(5, 1); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m
}

func TestQueue_RemovedAgentIsNotVisited(t *testing.T) {
	visits := map[int]int{}
	m := ringModel(t, 3, func(a *Agent, m *Model) {
		visits[a.ID()]++
		if a.ID() == 0 && m.Today() == 1 {
			m.ChangeStatusWith(a, a.Status(), QueueNoOne)
		}
	})
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if visits[0] != 1 {
		t.Fatalf("agent 0 visited %d times, want 1", visits[0])
	}
	if visits[1] != 5 || visits[2] != 5 {
		t.Fatalf("visits = %v, want 5 for agents 1 and 2", visits)
	}
	if m.Queue().Active(0) {
		t.Fatalf("agent 0 still queued")
	}
	if n := len(m.DB().Transitions()); n != 0 {
		t.Fatalf("same-status change recorded %d transitions", n)
	}
}

func TestQueue_EveryoneAndDepth(t *testing.T) {
	m := ringModel(t, 5, func(a *Agent, m *Model) {
		if a.ID() != 0 {
			return
		}
		switch m.Today() {
		case 1:
			m.ChangeStatusWith(a, a.Status(), QueueEveryone)
		case 2:
			m.ChangeStatusWith(a, a.Status(), Depth(2).Removing())
		}
	})
	if err := m.Step(); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	q := m.Queue()
	for id, want := range []int{2, 2, 1, 1, 2} {
		if got := q.Count(id); got != want {
			t.Fatalf("day 1 agent %d count %d, want %d", id, got, want)
		}
	}
	if err := m.Step(); err != nil {
		t.Fatalf("day 2: %v", err)
	}
	for id, want := range []int{1, 1, 0, 0, 1} {
		if got := q.Count(id); got != want {
			t.Fatalf("day 2 agent %d count %d, want %d", id, got, want)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("active = %d, want 3", q.Len())
	}
}

func TestQueue_PassiveStatusLeavesQueue(t *testing.T) {
	m := New("passive", 2)
	var done Status
	m.AddStatus("Waiting", UpdaterFunc(func(a *Agent, m *Model) { m.ChangeStatus(a, done) }))
	done = m.AddStatus("Done", nil)
	if err := m.Init(2, 1); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Queue().Len() != 0 {
		t.Fatalf("queue still holds %d agents", m.Queue().Len())
	}
	h := m.DB().History()
	if got := h[len(h)-1][done]; got != 2 {
		t.Fatalf("done = %d, want 2", got)
	}
	if n := len(m.DB().Transitions()); n != 2 {
		t.Fatalf("transitions = %d, want 2", n)
	}
}

func TestQueue_EveryoneFollowsInboundTiesOnDirectedNetworks(t *testing.T) {
	m := New("directed", 4)
	m.AddStatus("Active", UpdaterFunc(func(a *Agent, m *Model) {
		if a.ID() == 0 && m.Today() == 1 {
			m.ChangeStatusWith(a, a.Status(), QueueEveryone)
		}
	}))
	m.SetDirected(true)
	// 1 and 2 sample 0; 0 samples 3.
	for _, e := range [][2]int{{1, 0}, {2, 0}, {0, 3}} {
		if err := m.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("edge %v: %v", e, err)
		}
	}
	if err := m.Init(2, 1); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Step(); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	for id, want := range []int{2, 2, 2, 1} {
		if got := m.Queue().Count(id); got != want {
			t.Fatalf("agent %d count %d, want %d", id, got, want)
		}
	}
}

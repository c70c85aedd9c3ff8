package model

// Scope selects which agents a queue change touches.
type Scope int

const (
	// Inherit defers to the propagation of the status being entered.
	Inherit Scope = iota
	// NoOne drops the agent from the queue regardless of its count.
	NoOne
	OnlySelf
	// Everyone touches the agent and its direct contacts.
	Everyone
	// Hops touches every agent within Depth contact hops.
	Hops
)

type Trigger int

const (
	OnAdd Trigger = iota
	OnRemove
)

// Propagation is the queue code carried by a status change or virus attach/detach.
// The zero value inherits the target status default.
type Propagation struct {
	Scope   Scope
	Trigger Trigger
	Depth   int
}

var (
	QueueDefault  = Propagation{}
	QueueNoOne    = Propagation{Scope: NoOne}
	QueueSelf     = Propagation{Scope: OnlySelf}
	QueueEveryone = Propagation{Scope: Everyone}
)

// Depth touches agents up to n hops away. Depth(0) is QueueSelf.
func Depth(n int) Propagation {
	if n <= 0 {
		return QueueSelf
	}
	return Propagation{Scope: Hops, Depth: n}
}

// Removing turns an additive code into a decrement.
func (p Propagation) Removing() Propagation {
	p.Trigger = OnRemove
	return p
}

func (p Propagation) hops() int {
	switch p.Scope {
	case Everyone:
		return 1
	case Hops:
		return p.Depth
	default:
		return 0
	}
}

// Queue is the multiset of agents the daily pass visits. An agent is active while its
// count is positive.
type Queue struct {
	counts  []int
	pending []queueChange

	mark     []uint32
	stamp    uint32
	frontier []int
	next     []int
}

type queueChange struct {
	agent int
	code  Propagation
}

func newQueue(n int) *Queue {
	return &Queue{counts: make([]int, n), mark: make([]uint32, n)}
}

func (q *Queue) Active(id int) bool {
	return id >= 0 && id < len(q.counts) && q.counts[id] > 0
}

func (q *Queue) Count(id int) int {
	if id < 0 || id >= len(q.counts) {
		return 0
	}
	return q.counts[id]
}

// Len returns the number of active agents.
func (q *Queue) Len() int {
	n := 0
	for _, c := range q.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

func (q *Queue) push(agent int, code Propagation) {
	q.pending = append(q.pending, queueChange{agent: agent, code: code})
}

func (q *Queue) bump(id int, t Trigger) {
	if t == OnRemove {
		if q.counts[id] > 0 {
			q.counts[id]--
		}
		return
	}
	q.counts[id]++
}

// flush applies pending changes in request order.
func (q *Queue) flush(m *Model) {
	for _, ch := range q.pending {
		switch ch.code.Scope {
		case NoOne:
			q.counts[ch.agent] = 0
		case OnlySelf:
			q.bump(ch.agent, ch.code.Trigger)
		case Everyone, Hops:
			q.spread(m, ch.agent, ch.code.hops(), ch.code.Trigger)
		}
	}
	q.pending = q.pending[:0]
}

// spread bumps every agent within depth hops of origin exactly once.
func (q *Queue) spread(m *Model, origin, depth int, t Trigger) {
	q.stamp++
	if q.stamp == 0 {
		clear(q.mark)
		q.stamp = 1
	}
	q.mark[origin] = q.stamp
	q.bump(origin, t)
	q.frontier = append(q.frontier[:0], origin)
	for d := 0; d < depth && len(q.frontier) > 0; d++ {
		q.next = q.next[:0]
		for _, id := range q.frontier {
			m.eachContact(id, func(c int) {
				if q.mark[c] == q.stamp {
					return
				}
				q.mark[c] = q.stamp
				q.bump(c, t)
				q.next = append(q.next, c)
			})
		}
		q.frontier, q.next = q.next, q.frontier
	}
}

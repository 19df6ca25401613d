// Package comm provides the collective-communication surface the derivative
// engine relies on. Parallelism in this core is process-style: a fixed group
// of participants is established per run, and every exchange is a single
// blocking all-gather round in which each member contributes a payload and
// receives every member's payload before any member proceeds.
//
// There is deliberately no timeout or cancellation: a member that never calls
// a collective leaves the others blocked. Keeping collective call counts in
// lockstep is a caller obligation, not a runtime-checked invariant.
package comm

import "sync"

// Communicator is one member's handle on a fixed communication group.
// A nil Communicator is the "no processes" sentinel used by subsystems that
// were not assigned a partition.
type Communicator interface {
	// Rank is this member's index within the group, in [0, Size).
	Rank() int
	// Size is the number of members in the group.
	Size() int
	// Allgather contributes payload and blocks until every member of the
	// group has contributed, then returns all payloads indexed by rank.
	Allgather(payload []byte) ([][]byte, error)
}

// group coordinates all members of one fixed-size communication group.
type group struct {
	n   int
	mu  sync.Mutex
	cur *round
}

// round is a single all-gather exchange. Slots become immutable once done is
// closed, so waiters read them without holding the lock.
type round struct {
	slots   [][]byte
	arrived int
	done    chan struct{}
}

// member is one rank's handle on its group.
type member struct {
	rank int
	g    *group
}

// NewGroup establishes a communication group of n members and returns one
// Communicator per rank. The group is fixed for its lifetime.
func NewGroup(n int) []Communicator {
	g := &group{n: n}
	members := make([]Communicator, n)
	for i := range members {
		members[i] = &member{rank: i, g: g}
	}
	return members
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.g.n }

func (m *member) Allgather(payload []byte) ([][]byte, error) {
	g := m.g

	g.mu.Lock()
	if g.cur == nil {
		g.cur = &round{
			slots: make([][]byte, g.n),
			done:  make(chan struct{}),
		}
	}
	r := g.cur
	r.slots[m.rank] = payload
	r.arrived++
	if r.arrived == g.n {
		// Last arrival completes the round; the next call starts a new one.
		g.cur = nil
		close(r.done)
		g.mu.Unlock()
	} else {
		g.mu.Unlock()
		<-r.done
	}

	return r.slots, nil
}

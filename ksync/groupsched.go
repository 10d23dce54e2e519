package ksync

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// Constraints is an opaque scheduling-constraint set attached to a
// Group; its contents are not interpreted by ksync, only swapped in
// and out atomically across every member thread.
type Constraints any

// DefaultConstraints is the well-known default-priority aperiodic
// constraint every member falls back to if both the proposed change
// and the rollback to the prior constraints fail for some member.
// ApplyConstraints(DefaultConstraints) must never fail; it is the
// floor the protocol guarantees every member can always reach.
var DefaultConstraints Constraints = "default-aperiodic"

// Member is the minimal surface GroupChangeConstraints needs from a
// thread in order to apply or roll back a constraint change on it,
// analogous to mm.Thread and ksync.Waiter: a narrow interface instead
// of a dependency on package sched.
type Member interface {
	Waiter
	// ApplyConstraints installs c as this member's active scheduling
	// constraints, returning an error if c is invalid for this member.
	ApplyConstraints(c Constraints) error
}

// Group is a named collection of threads that change scheduling
// constraints together via a five-step leader-election/barrier/
// rollback protocol: one caller is elected leader per
// round, every member barriers around the apply step, and a failed
// apply on any member rolls the whole group back to its previous
// constraints — falling all the way back to DefaultConstraints if even
// that rollback fails for someone.
type Group struct {
	mu      sync.Mutex
	name    string
	members []Member
	current Constraints
	irqs    *IRQState

	leaderID atomic.Uint64 // 0 = no leader this round, else WaiterID()+1
	shared   atomic.Pointer[groupChange]
}

// groupChange is the state the elected leader seeds once per call to
// GroupChangeConstraints, and every member reads to learn the
// proposed/previous constraints, synchronize at the group's barriers,
// and report apply failures.
type groupChange struct {
	next Constraints
	prev Constraints

	entry    *Barrier // rendezvous before anyone applies next
	applied  *Barrier // rendezvous after everyone has tried to apply next
	rollback *Barrier // rendezvous after everyone has tried to roll back

	changingFail atomic.Bool
	rollBackFail atomic.Bool
	countdown    atomic.Int64 // members remaining to finish this round
}

// NewGroup creates an empty constraint group with the given initial
// constraints.
func NewGroup(name string, initial Constraints, irqs *IRQState) *Group {
	return &Group{name: name, current: initial, irqs: irqs}
}

// AddMember adds m to the group, applying the group's current
// constraints to it immediately. Must not be called concurrently with
// GroupChangeConstraints.
func (g *Group) AddMember(m Member) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := m.ApplyConstraints(g.current); err != nil {
		return err
	}
	g.members = append(g.members, m)
	return nil
}

// RemoveMember removes m from the group. Must not be called
// concurrently with GroupChangeConstraints.
func (g *Group) RemoveMember(m Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, cur := range g.members {
		if cur.WaiterID() == m.WaiterID() {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return
		}
	}
}

// Size returns the number of members currently in the group.
func (g *Group) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Current returns the group's active constraints.
func (g *Group) Current() Constraints {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Outcome reports which constraint set a member ended up under.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeRolledBack
	OutcomeDefault
)

// GroupChangeConstraints implements a coordinated, group-wide
// constraint change. Every member thread calls this concurrently with
// the same next value:
//
//  1. The first caller to win the CAS into leaderID becomes leader for
//     this round; it seeds the shared proposal and a trio of barriers
//     sized to the group, then joins the others.
//  2. All members rendezvous at the entry barrier.
//  3. Every member calls its own ApplyConstraints(next); any failure
//     sets changingFail.
//  4. All members rendezvous at the applied barrier. If changingFail,
//     every member attempts ApplyConstraints(prev); any failure there
//     sets rollBackFail, and all members rendezvous at the rollback
//     barrier before any member that saw rollBackFail falls back to
//     ApplyConstraints(DefaultConstraints), which must succeed.
//  5. The last member to finish detaches the shared round state and
//     unlocks the group for the next caller of GroupChangeConstraints.
//
// Every member's returned Outcome is exactly one of Applied (all
// members accepted next), RolledBack (some member rejected next but
// every member re-accepted prev), or Default (some member's rollback
// also failed, so every member was forced to DefaultConstraints) —
// members never end the call under a mix of these.
func (g *Group) GroupChangeConstraints(self Member, next Constraints) (Outcome, error) {
	myID := self.WaiterID() + 1

	var ch *groupChange
	if g.leaderID.CompareAndSwap(0, myID) {
		g.mu.Lock()
		n := len(g.members)
		prev := g.current
		g.mu.Unlock()

		ch = &groupChange{
			next:     next,
			prev:     prev,
			entry:    &Barrier{n: n, irqs: g.irqs, q: NewWaitQueue("group-entry", g.irqs)},
			applied:  &Barrier{n: n, irqs: g.irqs, q: NewWaitQueue("group-applied", g.irqs)},
			rollback: &Barrier{n: n, irqs: g.irqs, q: NewWaitQueue("group-rollback", g.irqs)},
		}
		ch.countdown.Store(int64(n))
		g.shared.Store(ch)
	} else {
		for {
			ch = g.shared.Load()
			if ch != nil {
				break
			}
			runtime.Gosched()
		}
	}

	ch.entry.Wait(self)

	if err := self.ApplyConstraints(next); err != nil {
		ch.changingFail.Store(true)
	}

	ch.applied.Wait(self)

	outcome := OutcomeApplied
	if ch.changingFail.Load() {
		outcome = OutcomeRolledBack
		if err := self.ApplyConstraints(ch.prev); err != nil {
			ch.rollBackFail.Store(true)
		}

		ch.rollback.Wait(self)

		if ch.rollBackFail.Load() {
			outcome = OutcomeDefault
			if err := self.ApplyConstraints(DefaultConstraints); err != nil {
				// DefaultConstraints is guaranteed acceptable; a failure
				// here indicates a broken Member implementation.
				return outcome, kernel.Wrap("ksync.Group.GroupChangeConstraints", kernel.Fatal, err)
			}
		}
	}

	if ch.countdown.Add(-1) == 0 {
		g.mu.Lock()
		switch outcome {
		case OutcomeApplied:
			g.current = ch.next
		case OutcomeRolledBack:
			g.current = ch.prev
		case OutcomeDefault:
			g.current = DefaultConstraints
		}
		g.mu.Unlock()
		g.shared.Store(nil)
		g.leaderID.Store(0)
	}

	return outcome, nil
}

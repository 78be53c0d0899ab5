// Package doc implements the replicated-document capability the relay
// synchronizes: an append-only log of opaque operations keyed by
// (client, clock), with state-vector computation, diff against a
// remote state vector, and idempotent order-independent merge. The
// relay never looks inside an operation's payload.
package doc

import (
	"errors"
	"fmt"
)

// StateVector summarizes what a replica has integrated: for each
// client id, the highest contiguous clock seen. A missing client
// means clock 0.
type StateVector map[uint64]uint64

// Clock returns the integrated clock for client, 0 if unknown.
func (sv StateVector) Clock(client uint64) uint64 { return sv[client] }

// Op is a single opaque operation. Clocks for a given client start at
// 1 and are contiguous.
type Op struct {
	Client  uint64
	Clock   uint64
	Payload []byte
}

// Update is a batch of operations exchanged between replicas.
type Update []Op

var errBadOp = errors.New("op with zero client or clock")

// Replica is the capability contract the relay depends on.
type Replica interface {
	// StateVector reports what this replica has integrated.
	StateVector() StateVector
	// Diff returns the integrated ops the remote replica is missing.
	Diff(remote StateVector) Update
	// Apply merges an update. Duplicate or re-delivered ops are
	// ignored; ops arriving ahead of their predecessors are held
	// until the gap fills.
	Apply(u Update) error
}

// Log is the in-memory Replica used for room documents. Not safe for
// concurrent use; the owning room serializes access.
type Log struct {
	ops     map[uint64][]Op // client -> ops ordered by clock, contiguous from 1
	pending map[uint64][]Op // ops waiting on a causal gap
}

// NewLog returns an empty replica.
func NewLog() *Log {
	return &Log{
		ops:     make(map[uint64][]Op),
		pending: make(map[uint64][]Op),
	}
}

func (l *Log) StateVector() StateVector {
	sv := make(StateVector, len(l.ops))
	for client, ops := range l.ops {
		sv[client] = uint64(len(ops))
	}
	return sv
}

func (l *Log) Diff(remote StateVector) Update {
	var u Update
	for client, ops := range l.ops {
		seen := remote.Clock(client)
		if seen >= uint64(len(ops)) {
			continue
		}
		u = append(u, ops[seen:]...)
	}
	return u
}

func (l *Log) Apply(u Update) error {
	for _, op := range u {
		if op.Client == 0 || op.Clock == 0 {
			return fmt.Errorf("apply: %w", errBadOp)
		}
	}
	for _, op := range u {
		l.integrate(op)
	}
	return nil
}

func (l *Log) integrate(op Op) {
	next := uint64(len(l.ops[op.Client])) + 1
	switch {
	case op.Clock < next:
		// already integrated
		return
	case op.Clock > next:
		l.park(op)
		return
	}
	l.ops[op.Client] = append(l.ops[op.Client], op)
	l.drainPending(op.Client)
}

func (l *Log) park(op Op) {
	for _, p := range l.pending[op.Client] {
		if p.Clock == op.Clock {
			return
		}
	}
	l.pending[op.Client] = append(l.pending[op.Client], op)
}

// drainPending integrates parked ops that became contiguous after a
// new op landed for client.
func (l *Log) drainPending(client uint64) {
	for {
		next := uint64(len(l.ops[client])) + 1
		found := false
		rest := l.pending[client][:0]
		for _, p := range l.pending[client] {
			if p.Clock == next && !found {
				l.ops[client] = append(l.ops[client], p)
				found = true
				continue
			}
			rest = append(rest, p)
		}
		l.pending[client] = rest
		if !found {
			if len(rest) == 0 {
				delete(l.pending, client)
			}
			return
		}
	}
}

// Len reports the number of integrated ops across all clients.
func (l *Log) Len() int {
	n := 0
	for _, ops := range l.ops {
		n += len(ops)
	}
	return n
}

// Package mailbox implements the single-slot command channel from the
// comms context to the physics context described in spec §3/§4.4. It is
// generalized from the critical-section discipline of the teacher's
// pkg/usock.USOCK (lock held only around the minimal shared-state touch)
// but swaps the blocking sync.Mutex for a spinning atomic.Bool CAS loop:
// spec §5 requires the physics side to never block, and a bounded,
// constant-time critical section (a four-field copy), which a contended
// mutex cannot guarantee.
package mailbox

import "sync/atomic"

// Kind enumerates the command kinds a Mailbox slot may carry, per spec §3.
type Kind uint8

const (
	None Kind = iota
	SetMode
	SetSpeed
	SetCurrent
	SetTorque
	SetPWM
	ClearFault
	Reset
	// TripLCL carries the TRIP_LCL command (0x0B) from pkg/protocol
	// through to the physics context, alongside ClearFault: spec §4.2
	// describes both as "enqueue ...; ACK" the same way, so both get a
	// mailbox kind even though spec §3's kind list predates TRIP_LCL.
	TripLCL
)

// Command is the payload of a mailbox slot: kind plus up to two float
// parameters and the timestamp it was submitted, per spec §3.
type Command struct {
	Kind Kind
	P1   float32
	P2   float32
	TSUs uint64
}

// Mailbox is a single-slot, lock-guarded command channel. Written only by
// the comms context under the spinlock; consumed and cleared to None by
// the physics context. Zero value is ready to use.
type Mailbox struct {
	locked atomic.Bool
	slot   Command
}

func (m *Mailbox) lock() {
	for !m.locked.CompareAndSwap(false, true) {
		// spin; the critical section is a bounded constant-time copy, so
		// this never spins for long in practice.
	}
}

func (m *Mailbox) unlock() { m.locked.Store(false) }

// TrySend stores a new command if the slot is currently empty (Kind ==
// None). Returns false without blocking if a command is already pending,
// per spec §4.4/§7 ("full, caller may retry").
func (m *Mailbox) TrySend(kind Kind, p1, p2 float32, nowUs uint64) bool {
	m.lock()
	defer m.unlock()
	if m.slot.Kind != None {
		return false
	}
	m.slot = Command{Kind: kind, P1: p1, P2: p2, TSUs: nowUs}
	return true
}

// TryRead returns and clears the pending command, if any. Called from the
// physics context; wait-free from its perspective since the lock is only
// ever held for a constant-time copy by the comms side.
func (m *Mailbox) TryRead() (Command, bool) {
	m.lock()
	defer m.unlock()
	if m.slot.Kind == None {
		return Command{}, false
	}
	cmd := m.slot
	m.slot = Command{}
	return cmd, true
}

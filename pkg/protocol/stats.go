package protocol

import "sync/atomic"

// Stats holds the observability counters named in spec §7, each updated
// without locking so the catalog can expose them as read-only fields
// (spec §4.5) without contending with the hot comms-loop path.
type Stats struct {
	ParseErrors atomic.Uint32
	WrongAddr   atomic.Uint32
	CmdErrors   atomic.Uint32
	SlipErrors  atomic.Uint32
	ErrorCount  atomic.Uint32
	LastCmdErr  atomic.Uint32
}

// NewStats returns a zeroed Stats block.
func NewStats() *Stats { return &Stats{} }

package comms

import (
	"encoding/binary"
	"runtime"
	"time"

	"code.hybscloud.com/atomix"

	"picorom/hal"
)

// Transport carries drained outbound bytes toward the management host.
// Send is called from the foreground pump only, with at most MaxPayload
// bytes per call. Delivery problems are the transport's to report; the
// channel has no failure path for them.
type Transport interface {
	MaxPayload() int
	Send(p []byte)
}

// Channel is the tunnelled byte channel. One instance serves at most one
// session at a time; beginning a new session implicitly ends the previous
// one.
//
// Channel implements hal.BusEventHandler. The handler methods are the only
// code that runs in the bus event context; everything else belongs to the
// foreground task.
type Channel struct {
	bus hal.Bus
	tx  Transport

	out *Ring // event context produces, pump consumes
	in  *Ring // pump produces, event context consumes

	// Deferred reconciliation counters. req is raised by the event handler
	// when a register update is unsafe or redundant to perform in context;
	// the pump closes the gap before doing other work. ack never exceeds
	// its paired req.
	outDeferredReq atomix.Uint32
	outDeferredAck atomix.Uint32
	inEmptyReq     atomix.Uint32
	inEmptyAck     atomix.Uint32

	// Authoritative sequence counters. The register block holds
	// projections of these, so no context ever read-modify-writes shared
	// ROM bytes.
	outSeq atomix.Uint32
	inSeq  atomix.Uint32

	// active gates the event handler; it is set last on session begin and
	// cleared after the watcher is disarmed on session end.
	active atomix.Uint32

	base uint32

	// Per-context register scratch. The SPSC discipline extends to these:
	// evScratch is touched only at event priority, fgScratch only by the
	// pump.
	evScratch [4]byte
	fgScratch [4]byte

	chunk []byte
	fill  int
}

// New creates a channel over the given bus and transport.
func New(bus hal.Bus, tx Transport) *Channel {
	return &Channel{
		bus:   bus,
		tx:    tx,
		out:   NewRing(DefaultRingSize),
		in:    NewRing(DefaultRingSize),
		chunk: make([]byte, tx.MaxPayload()),
	}
}

// Active reports whether a session is armed.
func (c *Channel) Active() bool { return c.active.Load() != 0 }

// Base returns the register block base of the current session.
func (c *Channel) Base() uint32 { return c.base }

// Stats describe channel progress for diagnostics.
type Stats struct {
	Active bool
	Base   uint32
	OutSeq uint32
	InSeq  uint32
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Active: c.Active(),
		Base:   c.base,
		OutSeq: c.outSeq.Load(),
		InSeq:  c.inSeq.Load(),
	}
}

// BeginSession places the register block at the block containing addr,
// resets all channel state and arms the bus watcher. The active flag is
// written last so the target never observes a half-initialized block.
func (c *Channel) BeginSession(addr uint32) {
	c.EndSession()

	c.base = AlignBase(addr, c.bus.Size())

	c.out.Clear()
	c.in.Clear()
	c.outDeferredReq.Store(0)
	c.outDeferredAck.Store(0)
	c.inEmptyReq.Store(0)
	c.inEmptyAck.Store(0)
	c.outSeq.Store(0)
	c.inSeq.Store(0)
	c.fill = 0

	var zero [BlockSize]byte
	c.bus.WriteAt(zero[:], c.base)
	c.bus.WriteAt(Magic[:], c.base+regMagic)

	if err := c.bus.Watch(c.base+WatchWindowOffset, c); err != nil {
		return
	}

	c.active.Store(1)
	c.storeRegFG(regActive, 1)
}

// EndSession disarms the watcher and clears the active flag, in that
// order, so a straggling event cannot observe a half-torn-down block.
// A no-op without a session.
func (c *Channel) EndSession() {
	if !c.Active() {
		return
	}
	c.bus.Unwatch()
	c.active.Store(0)
	c.storeRegFG(regActive, 0)
}

// OnOutboundAccess records one target-to-firmware byte. Runs at event
// priority: O(1), no locks, no allocation, no blocking.
//
// When the push overflowed, bumping out_seq here would be redundant work
// per dropped slot; the bump is deferred to the pump instead.
func (c *Channel) OnOutboundAccess(b byte) {
	if !c.Active() {
		return
	}
	full := c.out.Full()
	c.out.Push(b)
	if full {
		c.outDeferredReq.Add(1)
	} else {
		c.storeRegEV(regOutSeq, c.outSeq.Add(1))
	}
}

// OnMailboxRead retires the mailbox byte the target just observed and
// projects the next one, if any. Runs at event priority.
//
// A target polling faster than the pump supplies data may re-observe the
// same in_seq/in_byte pair; drivers must treat an unchanged in_seq as "no
// new byte" rather than fresh data.
func (c *Channel) OnMailboxRead() {
	if !c.Active() {
		return
	}
	if c.in.Empty() {
		// Spurious read; the protocol only promises availability while
		// pending is set.
		return
	}
	c.in.Pop()

	if c.in.Empty() {
		c.storeRegEV(regPending, 0)
		c.inEmptyReq.Add(1)
	} else {
		c.storeRegEV(MailboxOffset, uint32(c.in.Peek()))
		c.storeRegEV(regInSeq, c.inSeq.Add(1))
	}
}

// Update is the channel pump: it reconciles deferred register work, drains
// the outbound ring to the transport and admits data toward the target.
//
// Admission of each byte waits, re-draining outbound on every retry, until
// the inbound ring has room or the timeout elapses. On timeout Update
// returns false immediately and the undelivered suffix of data is not
// admitted; callers treat that as a non-fatal warning and keep the session.
// Every other outcome, including "no session", returns true.
func (c *Channel) Update(data []byte, timeout time.Duration) bool {
	if !c.Active() {
		return true
	}

	deadline := time.Now().Add(timeout)

	c.drainOutbound()

	for i := 0; i < len(data); i++ {
		c.storeRegFG(regPending, 1)
		for c.in.Full() {
			c.drainOutbound()
			if !time.Now().Before(deadline) {
				return false
			}
			runtime.Gosched()
		}

		wasEmpty := c.in.Empty()
		c.in.Push(data[i])

		// The mailbox needs a refresh when the handler observed the ring
		// run empty since the last push, or when this push landed in an
		// empty ring (which the first byte of a session always does).
		refresh := c.inEmptyAck.Load() != c.inEmptyReq.Load()
		if refresh {
			c.inEmptyAck.Add(1)
		}
		if refresh || wasEmpty {
			c.storeRegFG(MailboxOffset, uint32(c.in.Peek()))
			c.storeRegFG(regInSeq, c.inSeq.Add(1))
		}
	}

	c.flush()
	return true
}

// drainOutbound closes the deferred out_seq gap and empties the outbound
// ring into transport-sized chunks.
func (c *Channel) drainOutbound() {
	for c.outDeferredAck.Load() != c.outDeferredReq.Load() {
		c.storeRegFG(regOutSeq, c.outSeq.Add(1))
		c.outDeferredAck.Add(1)
	}

	for c.out.Len() > 0 {
		c.chunk[c.fill] = c.out.Pop()
		c.fill++
		if c.fill == len(c.chunk) {
			c.tx.Send(c.chunk[:c.fill])
			c.fill = 0
		}
	}
}

// flush sends any partial chunk left by drainOutbound.
func (c *Channel) flush() {
	if c.fill > 0 {
		c.tx.Send(c.chunk[:c.fill])
		c.fill = 0
	}
}

func (c *Channel) storeRegEV(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(c.evScratch[:], v)
	c.bus.WriteAt(c.evScratch[:], c.base+off)
}

func (c *Channel) storeRegFG(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(c.fgScratch[:], v)
	c.bus.WriteAt(c.fgScratch[:], c.base+off)
}

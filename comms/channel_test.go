package comms

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"picorom/hal"
)

type captureTx struct {
	sent []byte
}

func (t *captureTx) MaxPayload() int { return 30 }
func (t *captureTx) Send(p []byte)   { t.sent = append(t.sent, p...) }

func newTestChannel() (*Channel, *hal.SimBus, *captureTx) {
	bus := hal.NewSimBus(1 << 18)
	bus.Start()
	tx := &captureTx{}
	return New(bus, tx), bus, tx
}

func readReg(bus *hal.SimBus, addr uint32) uint32 {
	var b [4]byte
	bus.ReadAt(b[:], addr)
	return binary.LittleEndian.Uint32(b[:])
}

func TestBeginSessionInitializesBlock(t *testing.T) {
	ch, bus, _ := newTestChannel()
	ch.BeginSession(0x10123)

	base := ch.Base()
	if base != 0x10000 {
		t.Fatalf("Base() = 0x%x, want 0x10000", base)
	}

	var magic [4]byte
	bus.ReadAt(magic[:], base)
	if magic != Magic {
		t.Fatalf("magic = %q, want %q", magic, Magic)
	}
	if got := readReg(bus, base+regActive); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
	for _, reg := range []uint32{regPending, regInSeq, regOutSeq} {
		if got := readReg(bus, base+reg); got != 0 {
			t.Fatalf("reg 0x%03x = %d, want 0", reg, got)
		}
	}
}

func TestOutboundAccessReachesTransport(t *testing.T) {
	ch, bus, tx := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()

	msg := []byte("hello")
	for _, b := range msg {
		bus.TargetRead(base + OutWindowOffset + uint32(b))
	}

	if got := readReg(bus, base+regOutSeq); got != uint32(len(msg)) {
		t.Fatalf("out_seq = %d, want %d", got, len(msg))
	}
	if !ch.Update(nil, time.Second) {
		t.Fatalf("Update returned false")
	}
	if !bytes.Equal(tx.sent, msg) {
		t.Fatalf("transport got %q, want %q", tx.sent, msg)
	}
}

func TestOutboundOverflowKeepsNewest(t *testing.T) {
	ch, bus, tx := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()

	for i := 0; i < 40; i++ {
		bus.TargetRead(base + OutWindowOffset + uint32(i))
	}
	if !ch.Update(nil, time.Second) {
		t.Fatalf("Update returned false")
	}

	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(8 + i)
	}
	if !bytes.Equal(tx.sent, want) {
		t.Fatalf("transport got % x, want % x", tx.sent, want)
	}
	// Every captured byte counts, dropped or not.
	if got := readReg(bus, base+regOutSeq); got != 40 {
		t.Fatalf("out_seq = %d, want 40", got)
	}
}

func TestInboundMailboxFlow(t *testing.T) {
	ch, bus, _ := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()

	if !ch.Update([]byte("ab"), time.Second) {
		t.Fatalf("Update returned false")
	}
	if got := readReg(bus, base+regPending); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	if got := readReg(bus, base+MailboxOffset); got != 'a' {
		t.Fatalf("mailbox = %q, want 'a'", byte(got))
	}
	if got := readReg(bus, base+regInSeq); got != 1 {
		t.Fatalf("in_seq = %d, want 1", got)
	}

	// Consuming the first byte surfaces the second.
	if got := bus.TargetRead(base + MailboxOffset); got != 'a' {
		t.Fatalf("target read %q, want 'a'", got)
	}
	if got := readReg(bus, base+MailboxOffset); got != 'b' {
		t.Fatalf("mailbox = %q, want 'b'", byte(got))
	}
	if got := readReg(bus, base+regInSeq); got != 2 {
		t.Fatalf("in_seq = %d, want 2", got)
	}
	if got := readReg(bus, base+regPending); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	// Consuming the last byte clears pending.
	bus.TargetRead(base + MailboxOffset)
	if got := readReg(bus, base+regPending); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}

	// A spurious read with nothing pending changes no register.
	bus.TargetRead(base + MailboxOffset)
	if got := readReg(bus, base+regInSeq); got != 2 {
		t.Fatalf("in_seq = %d after spurious read, want 2", got)
	}
}

func TestInboundRefreshAfterDrain(t *testing.T) {
	ch, bus, _ := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()

	ch.Update([]byte("x"), time.Second)
	bus.TargetRead(base + MailboxOffset)

	// The ring ran empty, so the next delivery must re-arm the mailbox.
	ch.Update([]byte("y"), time.Second)
	if got := readReg(bus, base+MailboxOffset); got != 'y' {
		t.Fatalf("mailbox = %q, want 'y'", byte(got))
	}
	if got := readReg(bus, base+regInSeq); got != 2 {
		t.Fatalf("in_seq = %d, want 2", got)
	}
	if got := readReg(bus, base+regPending); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
}

func TestUpdateTimeoutIsNonFatal(t *testing.T) {
	ch, bus, _ := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()

	fill := make([]byte, DefaultRingSize)
	if !ch.Update(fill, time.Second) {
		t.Fatalf("filling the ring should succeed")
	}
	start := time.Now()
	if ch.Update([]byte{0xAA}, 20*time.Millisecond) {
		t.Fatalf("Update should time out with a full ring and no consumer")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Update gave up after %v, before the timeout", elapsed)
	}

	if !ch.Active() {
		t.Fatalf("session ended by a timeout")
	}
	if got := readReg(bus, base+regActive); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	// The target consumes one byte; the retried delivery now fits.
	bus.TargetRead(base + MailboxOffset)
	if !ch.Update([]byte{0xAA}, time.Second) {
		t.Fatalf("retry after a consume should succeed")
	}
}

func TestUpdateEmptyIsQuiet(t *testing.T) {
	ch, _, tx := newTestChannel()
	ch.BeginSession(0)

	if !ch.Update(nil, time.Second) {
		t.Fatalf("empty Update returned false")
	}
	if len(tx.sent) != 0 {
		t.Fatalf("empty Update sent % x", tx.sent)
	}
}

func TestEndSessionSilencesEvents(t *testing.T) {
	ch, bus, tx := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()
	ch.EndSession()

	if got := readReg(bus, base+regActive); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}
	bus.TargetRead(base + OutWindowOffset + 0x42)
	if !ch.Update(nil, time.Second) {
		t.Fatalf("Update without a session should be a no-op success")
	}
	if len(tx.sent) != 0 {
		t.Fatalf("transport got % x after EndSession", tx.sent)
	}
}

func TestBeginSessionResetsCounters(t *testing.T) {
	ch, bus, tx := newTestChannel()
	ch.BeginSession(0)
	base := ch.Base()

	bus.TargetRead(base + OutWindowOffset + 1)
	ch.Update([]byte("z"), time.Second)
	bus.TargetRead(base + MailboxOffset)

	ch.BeginSession(0)
	tx.sent = nil

	for _, reg := range []uint32{regPending, regInSeq, regOutSeq} {
		if got := readReg(bus, base+reg); got != 0 {
			t.Fatalf("reg 0x%03x = %d after restart, want 0", reg, got)
		}
	}

	// A fresh session starts from a clean ring.
	bus.TargetRead(base + OutWindowOffset + 7)
	ch.Update(nil, time.Second)
	if !bytes.Equal(tx.sent, []byte{7}) {
		t.Fatalf("transport got % x, want [07]", tx.sent)
	}
}

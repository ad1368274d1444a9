//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import (
	"fmt"
	"machine"
	"runtime"

	pio "github.com/tinygo-org/pio/rp2-pio"

	"code.hybscloud.com/atomix"
)

// rp2Bus serves the in-RAM image onto the parallel bus through a PIO
// state machine: the program samples the address lines into the RX FIFO
// and drives the data lines from the TX FIFO, while a dedicated goroutine
// performs the image lookup and the watch-window classification between
// the two.
type rp2Bus struct {
	image []byte

	mask     atomix.Uint32
	running  atomix.Uint32
	accessed atomix.Uint32

	// armed gates event dispatch; dispatching lets Unwatch wait out an
	// event already in flight.
	armed       atomix.Uint32
	dispatching atomix.Uint32
	window      uint32
	handler     BusEventHandler

	sm pio.StateMachine
}

func newRP2Bus() *rp2Bus {
	b := &rp2Bus{image: make([]byte, RomSize)}
	b.mask.Store(AddrMask)

	for i := 0; i < addrPinCount; i++ {
		p := pinAddrBase + machine.Pin(i)
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}

	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return b
	}
	b.sm = sm

	program := []uint16{
		pio.EncodeIn(pio.SrcDestPins, addrPinCount),
		pio.EncodePush(false, true),
		pio.EncodePull(false, true),
		pio.EncodeOut(pio.SrcDestPins, dataPinCount),
	}
	offset, err := sm.PIO().AddProgram(program, -1)
	if err != nil {
		return b
	}

	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset, offset+uint8(len(program))-1)
	cfg.SetInPins(pinAddrBase)
	cfg.SetOutPins(pinDataBase, dataPinCount)
	cfg.SetInShift(false, false, 32)
	cfg.SetOutShift(false, false, 32)
	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(pinDataBase, dataPinCount, true)

	go b.serveLoop()
	return b
}

// serveLoop answers address samples with image bytes. It is the only
// goroutine touching the FIFOs, so the event handlers it calls run under
// the same single-producer discipline as a hardware interrupt.
func (b *rp2Bus) serveLoop() {
	for {
		if b.running.Load() == 0 || b.sm.IsRxFIFOEmpty() {
			runtime.Gosched()
			continue
		}

		addr := b.sm.RxGet() & b.mask.Load()
		b.sm.TxPut(uint32(b.image[addr]))
		b.accessed.Store(1)

		if b.armed.Load() == 0 {
			continue
		}
		rel := addr - b.window
		if rel >= 2*0x100 {
			continue
		}
		b.dispatching.Store(1)
		if rel&0x100 != 0 {
			b.handler.OnOutboundAccess(byte(rel))
		} else if rel == 0 {
			b.handler.OnMailboxRead()
		}
		b.dispatching.Store(0)
	}
}

func (b *rp2Bus) Size() uint32 {
	return uint32(len(b.image))
}

func (b *rp2Bus) ReadAt(p []byte, off uint32) int {
	if off >= uint32(len(b.image)) {
		return 0
	}
	return copy(p, b.image[off:])
}

func (b *rp2Bus) WriteAt(p []byte, off uint32) int {
	if off >= uint32(len(b.image)) {
		return 0
	}
	return copy(b.image[off:], p)
}

func (b *rp2Bus) Start() {
	b.running.Store(1)
	b.sm.SetEnabled(true)
}

func (b *rp2Bus) Stop() {
	b.sm.SetEnabled(false)
	b.running.Store(0)
}

func (b *rp2Bus) SetAddrMask(mask uint32) {
	b.mask.Store(mask & (uint32(len(b.image)) - 1))
}

func (b *rp2Bus) Watch(window uint32, h BusEventHandler) error {
	if window&0x1FF != 0 {
		return fmt.Errorf("bus: watch window 0x%x not 512-byte aligned", window)
	}
	b.window = window
	b.handler = h
	b.armed.Store(1)
	return nil
}

func (b *rp2Bus) Unwatch() {
	b.armed.Store(0)
	for b.dispatching.Load() != 0 {
		runtime.Gosched()
	}
	b.handler = nil
}

func (b *rp2Bus) AccessActive() bool {
	active := b.accessed.Load() != 0
	b.accessed.Store(0)
	return active
}

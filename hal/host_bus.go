//go:build !tinygo

package hal

import (
	"fmt"
	"sync"
)

// SimBus is the host-side bus: an in-memory served image plus a software
// stand-in for the hardware address watcher. TargetRead plays the role of
// the target circuit driving the address lines; it returns the byte the
// data bus would carry and dispatches watcher events on the same call
// path, which models the zero-latency event context of the real device.
type SimBus struct {
	mu      sync.Mutex
	mem     []byte
	mask    uint32
	running bool
	oe      bool

	// watchMu serializes event dispatch against Unwatch so that no event
	// is delivered after Unwatch returns.
	watchMu sync.RWMutex
	window  uint32
	handler BusEventHandler
}

// NewSimBus creates a simulated bus serving size bytes (a power of two).
func NewSimBus(size uint32) *SimBus {
	return &SimBus{
		mem:  make([]byte, size),
		mask: size - 1,
	}
}

func (b *SimBus) Size() uint32 {
	return uint32(len(b.mem))
}

func (b *SimBus) ReadAt(p []byte, off uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off >= uint32(len(b.mem)) {
		return 0
	}
	return copy(p, b.mem[off:])
}

func (b *SimBus) WriteAt(p []byte, off uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off >= uint32(len(b.mem)) {
		return 0
	}
	return copy(b.mem[off:], p)
}

func (b *SimBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
}

func (b *SimBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

func (b *SimBus) SetAddrMask(mask uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mask = mask & (uint32(len(b.mem)) - 1)
}

func (b *SimBus) Watch(window uint32, h BusEventHandler) error {
	if window&0x1FF != 0 {
		return fmt.Errorf("bus: watch window 0x%x not 512-byte aligned", window)
	}
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	b.window = window
	b.handler = h
	return nil
}

func (b *SimBus) Unwatch() {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	b.handler = nil
}

func (b *SimBus) AccessActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	active := b.oe
	b.oe = false
	return active
}

// TargetRead performs one simulated target bus read. The address is
// clamped by the configured address mask, exactly as unconnected address
// lines would clamp it in hardware.
func (b *SimBus) TargetRead(addr uint32) byte {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return 0xFF
	}
	addr &= b.mask
	v := b.mem[addr]
	b.oe = true
	b.mu.Unlock()

	b.watchMu.RLock()
	defer b.watchMu.RUnlock()
	if b.handler == nil {
		return v
	}
	if addr < b.window || addr >= b.window+2*0x100 {
		return v
	}
	rel := addr - b.window
	if rel&0x100 != 0 {
		b.handler.OnOutboundAccess(byte(rel))
	} else if rel == 0 {
		b.handler.OnMailboxRead()
	}
	return v
}

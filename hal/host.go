//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
)

// Board names the hardware this build runs on.
func Board() string { return "host-sim" }

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	flash  *hostFlash
	serial Serial
	reset  *hostResetLine
	bus    *SimBus
}

// New returns a host HAL implementation: a fully simulated device with a
// file-backed flash, an in-memory served ROM image and the management
// stream on stdin/stdout.
func New() HAL {
	logger := &hostLogger{w: os.Stderr}
	return &hostHAL{
		logger: logger,
		led:    &hostLED{},
		flash:  newHostFlash(),
		serial: &stdioSerial{},
		reset:  &hostResetLine{},
		bus:    NewSimBus(RomSize),
	}
}

// NewLoopback returns a host HAL whose serial stream terminates at the
// returned peer instead of stdio. Tests and the in-process simulator mode
// talk to the device through the peer.
func NewLoopback() (HAL, *SerialPeer) {
	h := New().(*hostHAL)
	dev, peer := NewSerialPair()
	h.serial = dev
	return h, peer
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) Flash() Flash     { return h.flash }
func (h *hostHAL) Serial() Serial   { return h.serial }
func (h *hostHAL) Reset() ResetLine { return h.reset }
func (h *hostHAL) Bus() Bus         { return h.bus }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu sync.Mutex
	on bool
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
}

// State reports the current LED level for the front panel.
func (l *hostLED) State() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

type hostResetLine struct {
	mu    sync.Mutex
	level ResetLevel
}

func (r *hostResetLine) Set(level ResetLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
}

func (r *hostResetLine) Level() ResetLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

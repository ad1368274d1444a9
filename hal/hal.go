package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction for the info LED.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// RomSize is the served ROM image size: large enough for a 2 Mbit part.
const RomSize = 256 * 1024

// AddrMask covers the address lines of the largest supported part.
const AddrMask = RomSize - 1

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Serial is the byte stream toward the management host (USB CDC on
// hardware, a pipe or stdio on the host build).
type Serial interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// ResetLevel is the state driven onto the target circuit's reset line.
type ResetLevel uint8

const (
	// ResetZ leaves the line floating.
	ResetZ ResetLevel = iota
	ResetLow
	ResetHigh
)

func (l ResetLevel) String() string {
	switch l {
	case ResetLow:
		return "low"
	case ResetHigh:
		return "high"
	default:
		return "z"
	}
}

// ParseResetLevel converts the parameter-surface spelling of a reset level.
func ParseResetLevel(s string) (ResetLevel, bool) {
	switch s {
	case "low", "l":
		return ResetLow, true
	case "high", "h":
		return ResetHigh, true
	case "z":
		return ResetZ, true
	}
	return ResetZ, false
}

// ResetLine drives the target circuit's reset signal.
type ResetLine interface {
	Set(level ResetLevel)
	Level() ResetLevel
}

// BusEventHandler receives bus access events from the watched window.
// Both methods run at event priority, synchronously with the target's bus
// access, and must return quickly without blocking or allocating.
type BusEventHandler interface {
	// OnOutboundAccess reports a target read inside the outbound half of
	// the watched window; b is the low eight bits of the accessed address.
	OnOutboundAccess(b byte)

	// OnMailboxRead reports a target read of the mailbox cell at the
	// watched window's base address.
	OnMailboxRead()
}

// Bus is the emulated ROM: a byte image served onto the data bus by an
// independent execution unit, plus the address watcher that raises channel
// events. The serving unit only ever reads the image; all writes come
// through WriteAt from the foreground (or, for single registers, from the
// event handler).
type Bus interface {
	// Size returns the served image size in bytes (a power of two).
	Size() uint32

	// ReadAt copies from the served image. Reads clamp at the image end.
	ReadAt(p []byte, off uint32) int

	// WriteAt copies into the served image. Writes clamp at the image end.
	WriteAt(p []byte, off uint32) int

	// Start and Stop control the bus service unit.
	Start()
	Stop()

	// SetAddrMask limits which address lines participate in bus decoding,
	// for emulating parts smaller than the full image.
	SetAddrMask(mask uint32)

	// Watch arms the address watcher on the 512-byte window beginning at
	// window (which must be 512-byte aligned). Accesses with bit 0x100 of
	// the window offset set are delivered as OnOutboundAccess carrying the
	// low eight offset bits; an access at offset zero is OnMailboxRead.
	Watch(window uint32, h BusEventHandler) error

	// Unwatch disarms the watcher. No events are delivered after it
	// returns.
	Unwatch()

	// AccessActive reports (and clears) whether the target has read from
	// the bus since the last call. Drives the activity LED.
	AccessActive() bool
}

// HAL provides the only contact point between the firmware and the
// outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Flash() Flash
	Serial() Serial
	Reset() ResetLine
	Bus() Bus
}

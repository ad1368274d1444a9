package link

import (
	"encoding/binary"
	"sync"

	"code.hybscloud.com/atomix"

	"picorom/hal"
)

// Preamble announces the device when a connection opens.
const Preamble = "PicoROM Hello"

// Link frames packets over the HAL serial stream. Receiving runs on a
// background goroutine feeding a small queue; the foreground polls it
// without blocking, mirroring how the firmware services its USB FIFO
// between bus chores.
type Link struct {
	serial hal.Serial

	wmu sync.Mutex

	packets   chan Packet
	connected atomix.Uint32

	activityCount atomix.Uint32
	activitySeen  uint32
}

// New creates a link over the serial stream. Start must be called before
// Poll sees any packets.
func New(serial hal.Serial) *Link {
	return &Link{
		serial:  serial,
		packets: make(chan Packet, 8),
	}
}

// Start begins receiving. The link counts as connected until the stream
// errors out.
func (l *Link) Start() {
	l.connected.Store(1)
	go l.readLoop()
}

func (l *Link) readLoop() {
	var dec Decoder
	buf := make([]byte, 64)
	for {
		n, err := l.serial.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n], func(pkt Packet) {
				l.activityCount.Add(1)
				l.packets <- pkt
			})
		}
		if err != nil {
			l.connected.Store(0)
			close(l.packets)
			return
		}
	}
}

// Connected reports whether the stream is still up.
func (l *Link) Connected() bool { return l.connected.Load() != 0 }

// Poll returns the next pending packet without blocking.
func (l *Link) Poll() (Packet, bool) {
	select {
	case pkt, ok := <-l.packets:
		if !ok {
			return Packet{}, false
		}
		return pkt, true
	default:
		return Packet{}, false
	}
}

// Hello writes the connection preamble.
func (l *Link) Hello() {
	l.write([]byte(Preamble))
}

// Send transmits one packet, truncating the payload at MaxPayload.
func (l *Link) Send(kind Kind, payload []byte) {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	var frame [2 + MaxPayload]byte
	frame[0] = byte(kind)
	frame[1] = byte(len(payload))
	copy(frame[2:], payload)
	l.write(frame[:2+len(payload)])
}

// SendString transmits a packet whose payload is a string, truncated at
// MaxPayload.
func (l *Link) SendString(kind Kind, s string) {
	l.Send(kind, []byte(s))
}

// SendDebug transmits a diagnostic message: two u32 values followed by
// descriptive text.
func (l *Link) SendDebug(s string, v0, v1 uint32) {
	l.sendTagged(KindDebug, s, v0, v1)
}

// SendError transmits a non-fatal error report in the same shape as
// SendDebug.
func (l *Link) SendError(s string, v0, v1 uint32) {
	l.sendTagged(KindError, s, v0, v1)
}

func (l *Link) sendTagged(kind Kind, s string, v0, v1 uint32) {
	var payload [MaxPayload]byte
	binary.LittleEndian.PutUint32(payload[0:], v0)
	binary.LittleEndian.PutUint32(payload[4:], v1)
	n := copy(payload[8:], s)
	l.Send(kind, payload[:8+n])
}

// CheckActivity reports whether any packet moved since the last call.
// Drives the link LED.
func (l *Link) CheckActivity() bool {
	count := l.activityCount.Load()
	if count != l.activitySeen {
		l.activitySeen = count
		return true
	}
	return false
}

func (l *Link) write(p []byte) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	for len(p) > 0 {
		n, err := l.serial.Write(p)
		if err != nil {
			l.connected.Store(0)
			return
		}
		p = p[n:]
		l.activityCount.Add(1)
	}
}

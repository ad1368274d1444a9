// Package link frames management-host packets over the HAL serial stream.
//
// The wire format is deliberately tiny: one kind byte, one size byte, then
// size payload bytes (at most MaxPayload). A connection opens with the
// literal preamble "PicoROM Hello" so host tooling can recognize the
// device before any packet flows.
package link

// MaxPayload is the largest packet payload the wire format carries.
const MaxPayload = 30

// Kind identifies a packet type.
type Kind uint8

const (
	KindSetPointer Kind = 3
	KindGetPointer Kind = 4
	KindCurPointer Kind = 5
	KindWrite      Kind = 6
	KindRead       Kind = 7
	KindReadData   Kind = 8

	KindCommitFlash Kind = 12
	KindCommitDone  Kind = 13

	KindSetParameter   Kind = 20
	KindGetParameter   Kind = 21
	KindParameter      Kind = 22
	KindParameterError Kind = 23
	KindQueryParameter Kind = 24

	KindCommsStart Kind = 80
	KindCommsEnd   Kind = 81
	KindCommsData  Kind = 82

	KindIdentify Kind = 0xF8
	KindError    Kind = 0xFE
	KindDebug    Kind = 0xFF
)

func (k Kind) String() string {
	switch k {
	case KindSetPointer:
		return "set_pointer"
	case KindGetPointer:
		return "get_pointer"
	case KindCurPointer:
		return "cur_pointer"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindReadData:
		return "read_data"
	case KindCommitFlash:
		return "commit_flash"
	case KindCommitDone:
		return "commit_done"
	case KindSetParameter:
		return "set_parameter"
	case KindGetParameter:
		return "get_parameter"
	case KindParameter:
		return "parameter"
	case KindParameterError:
		return "parameter_error"
	case KindQueryParameter:
		return "query_parameter"
	case KindCommsStart:
		return "comms_start"
	case KindCommsEnd:
		return "comms_end"
	case KindCommsData:
		return "comms_data"
	case KindIdentify:
		return "identify"
	case KindError:
		return "error"
	case KindDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Packet is a fixed-size envelope, valid independently of the stream it
// arrived on.
type Packet struct {
	Kind Kind
	Len  uint8
	Data [MaxPayload]byte
}

// Payload returns the valid portion of the packet data.
func (p *Packet) Payload() []byte {
	n := int(p.Len)
	if n > MaxPayload {
		n = MaxPayload
	}
	return p.Data[:n]
}

// Decoder reassembles packets from an arbitrarily chunked byte stream.
// The zero value is ready to use. Both ends of the wire share it: the
// firmware feeds it from the serial FIFO, host tooling from the port.
type Decoder struct {
	buf [2 + MaxPayload]byte
	n   int
}

// Feed consumes stream bytes, emitting each completed packet. A header
// announcing more than MaxPayload bytes cannot come from a conforming
// sender; the decoder resynchronizes by skipping one byte.
func (d *Decoder) Feed(p []byte, emit func(Packet)) {
	for len(p) > 0 {
		space := len(d.buf) - d.n
		take := len(p)
		if take > space {
			take = space
		}
		copy(d.buf[d.n:], p[:take])
		d.n += take
		p = p[take:]

		for d.n >= 2 {
			size := int(d.buf[1])
			if size > MaxPayload {
				copy(d.buf[:], d.buf[1:d.n])
				d.n--
				continue
			}
			if d.n < 2+size {
				break
			}

			var pkt Packet
			pkt.Kind = Kind(d.buf[0])
			pkt.Len = uint8(size)
			copy(pkt.Data[:], d.buf[2:2+size])
			emit(pkt)

			copy(d.buf[:], d.buf[2+size:d.n])
			d.n -= 2 + size
		}
	}
}

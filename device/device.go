// Package device ties the HAL, the management link and the comms channel
// into the firmware proper: it serves the ROM image, dispatches host
// packets and pumps the tunnelled byte channel.
package device

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"picorom/comms"
	"picorom/hal"
	"picorom/internal/buildinfo"
	"picorom/link"
)

const (
	// commsTimeout bounds one channel pump call. A target that stops
	// consuming for this long earns a warning, not a reset.
	commsTimeout = 5 * time.Second

	ledTick = 10 * time.Millisecond

	idleSleep = 200 * time.Microsecond
)

const (
	statusBusService = 1 << 0
	statusCommsOpen  = 1 << 1
)

type Device struct {
	h     hal.HAL
	bus   hal.Bus
	flash hal.Flash
	link  *link.Link
	ch    *comms.Channel

	cfg    Config
	romPtr uint32
	status uint32

	leds     ledDriver
	lastTick time.Time

	panelMu sync.Mutex
	panel   panelState
}

// panelState is a copyable snapshot of what the front panel shows.
type panelState struct {
	name     string
	romName  string
	addrMask uint32
	reset    hal.ResetLevel
	status   uint32
	comms    comms.Stats
}

// commsTransport adapts the link for channel output: drained bytes leave
// as comms_data packets.
type commsTransport struct {
	l *link.Link
}

func (t commsTransport) MaxPayload() int { return link.MaxPayload }
func (t commsTransport) Send(p []byte)   { t.l.Send(link.KindCommsData, p) }

// New assembles a device over the given HAL. Run must be called to bring
// it up.
func New(h hal.HAL) *Device {
	d := &Device{
		h:     h,
		bus:   h.Bus(),
		flash: h.Flash(),
		cfg:   LoadConfig(h.Flash()),
	}
	d.link = link.New(h.Serial())
	d.ch = comms.New(d.bus, commsTransport{d.link})
	d.leds.led = h.LED()
	return d
}

// Run brings the device up and services the management link until it
// disconnects. The bus keeps serving throughout.
func (d *Device) Run() error {
	log := d.h.Logger()
	log.WriteLineString(fmt.Sprintf("picorom %s on %s", buildinfo.Short(), hal.Board()))

	if err := LoadROM(d.flash, d.bus); err != nil {
		return fmt.Errorf("restore image: %w", err)
	}

	d.h.Reset().Set(d.cfg.InitialReset)
	d.bus.SetAddrMask(d.cfg.AddrMask)
	d.bus.Start()
	d.status |= statusBusService
	d.h.Reset().Set(d.cfg.DefaultReset)

	d.link.Start()
	d.link.Hello()
	d.link.SendDebug("connected", 0, 0)

	d.lastTick = time.Now()
	for d.link.Connected() {
		if !d.ch.Update(nil, commsTimeout) {
			d.link.SendError("comms update timeout", d.ch.Base(), 0)
		}

		pkt, ok := d.link.Poll()
		if ok {
			d.handle(&pkt)
		}

		if now := time.Now(); now.Sub(d.lastTick) >= ledTick {
			d.lastTick = now
			d.leds.Tick(d.bus.AccessActive(), d.link.CheckActivity())
			d.publishPanel()
		}

		if !ok {
			time.Sleep(idleSleep)
		}
	}

	d.ch.EndSession()
	d.bus.Stop()
	d.status &^= statusBusService
	log.WriteLineString("link closed")
	return nil
}

func (d *Device) handle(pkt *link.Packet) {
	switch pkt.Kind {
	case link.KindSetPointer:
		if pkt.Len >= 4 {
			d.romPtr = binary.LittleEndian.Uint32(pkt.Payload()) & hal.AddrMask
		}

	case link.KindGetPointer:
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], d.romPtr)
		d.link.Send(link.KindCurPointer, v[:])

	case link.KindWrite:
		p := pkt.Payload()
		if d.romPtr+uint32(len(p)) > hal.RomSize {
			d.link.SendError("write out of range", d.romPtr, uint32(len(p)))
			return
		}
		d.bus.WriteAt(p, d.romPtr)
		d.romPtr += uint32(len(p))

	case link.KindRead:
		n := uint32(link.MaxPayload)
		if left := hal.RomSize - d.romPtr; left < n {
			n = left
		}
		var buf [link.MaxPayload]byte
		d.bus.ReadAt(buf[:n], d.romPtr)
		d.romPtr += n
		d.link.Send(link.KindReadData, buf[:n])

	case link.KindCommitFlash:
		d.commit()

	case link.KindCommsStart:
		if pkt.Len >= 4 {
			addr := binary.LittleEndian.Uint32(pkt.Payload())
			d.ch.BeginSession(addr)
			d.status |= statusCommsOpen
			d.link.SendDebug("comms started", d.ch.Base(), 0)
		}

	case link.KindCommsEnd:
		d.ch.EndSession()
		d.status &^= statusCommsOpen
		d.link.SendDebug("comms ended", 0, 0)

	case link.KindCommsData:
		if !d.ch.Update(pkt.Payload(), commsTimeout) {
			d.link.SendError("comms send timeout", d.ch.Base(), uint32(pkt.Len))
		}

	case link.KindSetParameter:
		name, value, ok := strings.Cut(string(pkt.Payload()), ",")
		if !ok || !d.setParameter(name, value) {
			d.link.SendString(link.KindParameterError, name)
			return
		}
		d.replyParameter(name)

	case link.KindGetParameter:
		d.replyParameter(string(pkt.Payload()))

	case link.KindQueryParameter:
		d.link.SendString(link.KindParameter, nextParameter(string(pkt.Payload())))

	case link.KindIdentify:
		d.leds.Identify()

	default:
		d.link.SendError("unrecognized packet", uint32(pkt.Kind), uint32(pkt.Len))
	}
}

func (d *Device) publishPanel() {
	d.panelMu.Lock()
	d.panel = panelState{
		name:     d.cfg.Name,
		romName:  d.cfg.ROMName,
		addrMask: d.cfg.AddrMask,
		reset:    d.h.Reset().Level(),
		status:   d.status,
		comms:    d.ch.Stats(),
	}
	d.panelMu.Unlock()
}

// StatusLines formats the panel snapshot for display. Safe to call from
// any goroutine.
func (d *Device) StatusLines() []string {
	d.panelMu.Lock()
	p := d.panel
	d.panelMu.Unlock()

	lines := []string{
		"picorom " + buildinfo.Short(),
		"name:   " + p.name,
		"rom:    " + p.romName,
		fmt.Sprintf("mask:   0x%08x", p.addrMask),
		"reset:  " + p.reset.String(),
		fmt.Sprintf("status: 0x%08x", p.status),
	}
	if p.comms.Active {
		lines = append(lines, fmt.Sprintf("comms:  0x%05x out=%d in=%d",
			p.comms.Base, p.comms.OutSeq, p.comms.InSeq))
	} else {
		lines = append(lines, "comms:  idle")
	}
	return lines
}

func (d *Device) replyParameter(name string) {
	value, ok := d.getParameter(name)
	if !ok {
		d.link.SendString(link.KindParameterError, name)
		return
	}
	d.link.SendString(link.KindParameter, name+","+value)
}

// commit persists the served image and the configuration. The bus service
// pauses around the flash writes; on hardware the image RAM doubles as the
// flash staging area.
func (d *Device) commit() {
	d.bus.Stop()
	err := SaveROM(d.flash, d.bus)
	if err == nil {
		err = SaveConfig(d.flash, d.cfg)
	}
	d.bus.Start()

	if err != nil {
		d.link.SendError("commit failed", 0, 0)
		d.h.Logger().WriteLineString(fmt.Sprintf("commit: %v", err))
		return
	}
	d.link.Send(link.KindCommitDone, nil)
}

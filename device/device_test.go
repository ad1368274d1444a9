package device

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"picorom/hal"
	"picorom/link"
)

// testHost drives a running device through the loopback serial pair the
// way the CLI drives real hardware.
type testHost struct {
	t       *testing.T
	peer    *hal.SerialPeer
	packets chan link.Packet
}

func startTestDevice(t *testing.T) (*testHost, *hal.SimBus) {
	t.Helper()
	t.Setenv("PICOROM_FLASH_PATH", filepath.Join(t.TempDir(), "flash.bin"))

	h, peer := hal.NewLoopback()
	dev := New(h)
	go func() { _ = dev.Run() }()
	t.Cleanup(peer.Close)

	th := &testHost{t: t, peer: peer, packets: make(chan link.Packet, 64)}
	go func() {
		var dec link.Decoder
		buf := make([]byte, 64)
		for {
			n, err := peer.Read(buf)
			if n > 0 {
				dec.Feed(buf[:n], func(pkt link.Packet) { th.packets <- pkt })
			}
			if err != nil {
				close(th.packets)
				return
			}
		}
	}()

	return th, h.Bus().(*hal.SimBus)
}

func (h *testHost) send(kind link.Kind, payload []byte) {
	h.t.Helper()
	frame := append([]byte{byte(kind), byte(len(payload))}, payload...)
	if _, err := h.peer.Write(frame); err != nil {
		h.t.Fatalf("write: %v", err)
	}
}

func (h *testHost) sendU32(kind link.Kind, v uint32) {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	h.send(kind, p[:])
}

// expect returns the next packet of the wanted kind, skipping debug
// chatter.
func (h *testHost) expect(want link.Kind) link.Packet {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case pkt, ok := <-h.packets:
			if !ok {
				h.t.Fatalf("stream closed waiting for %v", want)
			}
			if pkt.Kind == want {
				return pkt
			}
			if pkt.Kind != link.KindDebug && pkt.Kind != link.KindCommsData {
				h.t.Fatalf("got %v packet waiting for %v", pkt.Kind, want)
			}
		case <-deadline:
			h.t.Fatalf("no %v packet within deadline", want)
		}
	}
}

func (h *testHost) getParam(name string) string {
	h.t.Helper()
	h.send(link.KindGetParameter, []byte(name))
	pkt := h.expect(link.KindParameter)
	_, value, _ := strings.Cut(string(pkt.Payload()), ",")
	return value
}

func TestDeviceParameterSurface(t *testing.T) {
	h, _ := startTestDevice(t)

	if got := h.getParam("name"); got != "picorom" {
		t.Fatalf("name = %q, want picorom", got)
	}
	if got := h.getParam("reset"); got != "z" {
		t.Fatalf("reset = %q, want z", got)
	}

	h.send(link.KindSetParameter, []byte("name,bench-1"))
	h.expect(link.KindParameter)
	if got := h.getParam("name"); got != "bench-1" {
		t.Fatalf("name after rename = %q, want bench-1", got)
	}

	h.send(link.KindGetParameter, []byte("bogus"))
	h.expect(link.KindParameterError)

	// Walk the whole list back to the terminator.
	seen := 0
	cursor := ""
	for {
		h.send(link.KindQueryParameter, []byte(cursor))
		pkt := h.expect(link.KindParameter)
		cursor = string(pkt.Payload())
		if cursor == "" {
			break
		}
		seen++
		if seen > 32 {
			t.Fatalf("parameter walk does not terminate")
		}
	}
	if seen != len(parameterNames) {
		t.Fatalf("walked %d parameters, want %d", seen, len(parameterNames))
	}
}

func TestDeviceImageUploadDownload(t *testing.T) {
	h, bus := startTestDevice(t)

	h.sendU32(link.KindSetPointer, 0x100)
	h.send(link.KindWrite, []byte("hello rom"))

	h.send(link.KindGetPointer, nil)
	pkt := h.expect(link.KindCurPointer)
	if got := binary.LittleEndian.Uint32(pkt.Payload()); got != 0x109 {
		t.Fatalf("pointer = 0x%x, want 0x109", got)
	}

	// The served bus sees the bytes immediately.
	img := make([]byte, 9)
	bus.ReadAt(img, 0x100)
	if !bytes.Equal(img, []byte("hello rom")) {
		t.Fatalf("bus image = %q", img)
	}

	h.sendU32(link.KindSetPointer, 0x100)
	h.send(link.KindRead, nil)
	pkt = h.expect(link.KindReadData)
	if got := pkt.Payload(); len(got) != link.MaxPayload || !bytes.Equal(got[:9], []byte("hello rom")) {
		t.Fatalf("read back %q (%d bytes)", got, len(got))
	}

	h.send(link.KindCommitFlash, nil)
	h.expect(link.KindCommitDone)

	h.send(link.Kind(200), nil)
	h.expect(link.KindError)
}

func TestDeviceCommsSession(t *testing.T) {
	h, bus := startTestDevice(t)

	h.sendU32(link.KindCommsStart, 0x8000)

	// Wait for the block to come up before playing the target.
	deadline := time.Now().Add(2 * time.Second)
	magic := make([]byte, 4)
	for string(magic) != "PICO" {
		if !time.Now().Before(deadline) {
			t.Fatalf("register block never initialized")
		}
		bus.ReadAt(magic, 0x8000)
	}

	// Target to host: address-encoded bytes, drained by the device loop.
	for _, b := range []byte("pong") {
		bus.TargetRead(0x8000 + 0x300 + uint32(b))
	}
	var got []byte
	for len(got) < 4 {
		pkt := h.expect(link.KindCommsData)
		got = append(got, pkt.Payload()...)
	}
	if !bytes.Equal(got, []byte("pong")) {
		t.Fatalf("comms out = %q, want pong", got)
	}

	// Host to target: mailbox delivery. A real driver polls in_seq; the
	// mailbox byte is valid once the sequence advances.
	h.send(link.KindCommsData, []byte("hi"))
	waitInSeq := func(want uint32) {
		for {
			if !time.Now().Before(deadline) {
				t.Fatalf("in_seq never reached %d", want)
			}
			p := make([]byte, 4)
			bus.ReadAt(p, 0x8000+0x00C)
			if binary.LittleEndian.Uint32(p) >= want {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
	waitInSeq(1)
	if b := bus.TargetRead(0x8000 + 0x200); b != 'h' {
		t.Fatalf("mailbox byte = %q, want h", b)
	}
	waitInSeq(2)
	if b := bus.TargetRead(0x8000 + 0x200); b != 'i' {
		t.Fatalf("mailbox byte = %q, want i", b)
	}

	h.send(link.KindCommsEnd, nil)
	active := make([]byte, 1)
	for {
		if !time.Now().Before(deadline) {
			t.Fatalf("active never cleared")
		}
		bus.ReadAt(active, 0x8000+0x004)
		if active[0] == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
}

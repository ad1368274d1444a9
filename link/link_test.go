package link

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"picorom/hal"
)

func TestDecoderSplitFeeds(t *testing.T) {
	stream := []byte{byte(KindWrite), 3, 'a', 'b', 'c', byte(KindRead), 0, byte(KindSetPointer), 4, 1, 2, 3, 4}

	var got []Packet
	var dec Decoder
	for _, b := range stream {
		dec.Feed([]byte{b}, func(p Packet) { got = append(got, p) })
	}

	if len(got) != 3 {
		t.Fatalf("decoded %d packets, want 3", len(got))
	}
	if got[0].Kind != KindWrite || !bytes.Equal(got[0].Payload(), []byte("abc")) {
		t.Fatalf("packet 0 = %v %q", got[0].Kind, got[0].Payload())
	}
	if got[1].Kind != KindRead || got[1].Len != 0 {
		t.Fatalf("packet 1 = %v len=%d", got[1].Kind, got[1].Len)
	}
	if got[2].Kind != KindSetPointer || !bytes.Equal(got[2].Payload(), []byte{1, 2, 3, 4}) {
		t.Fatalf("packet 2 = %v % x", got[2].Kind, got[2].Payload())
	}
}

func TestDecoderResyncsOnBadSize(t *testing.T) {
	// A size byte beyond MaxPayload cannot open a real packet; the decoder
	// slides until it finds one that parses.
	stream := []byte{0xAA, 0xFF, byte(KindRead), 0}

	var got []Packet
	var dec Decoder
	dec.Feed(stream, func(p Packet) { got = append(got, p) })

	if len(got) != 1 || got[0].Kind != KindRead {
		t.Fatalf("decoded %v, want one read packet", got)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	dev, peer := hal.NewSerialPair()
	l := New(dev)
	l.Start()

	l.Hello()
	hello := make([]byte, len(Preamble))
	if _, err := readFull(peer, hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if string(hello) != Preamble {
		t.Fatalf("hello = %q, want %q", hello, Preamble)
	}

	// Host to device.
	peer.Write([]byte{byte(KindIdentify), 0})
	pkt := waitPacket(t, l)
	if pkt.Kind != KindIdentify {
		t.Fatalf("Poll() kind = %v, want identify", pkt.Kind)
	}

	// Device to host.
	l.SendError("boom", 7, 9)
	frame := make([]byte, 2+8+4)
	if _, err := readFull(peer, frame); err != nil {
		t.Fatalf("read error packet: %v", err)
	}
	if Kind(frame[0]) != KindError || frame[1] != 12 {
		t.Fatalf("frame header = % x", frame[:2])
	}
	if v := binary.LittleEndian.Uint32(frame[2:]); v != 7 {
		t.Fatalf("v0 = %d, want 7", v)
	}
	if v := binary.LittleEndian.Uint32(frame[6:]); v != 9 {
		t.Fatalf("v1 = %d, want 9", v)
	}
	if string(frame[10:]) != "boom" {
		t.Fatalf("text = %q, want boom", frame[10:])
	}

	if !l.CheckActivity() {
		t.Fatalf("no activity recorded")
	}

	peer.Close()
	deadline := time.After(time.Second)
	for l.Connected() {
		select {
		case <-deadline:
			t.Fatalf("link still connected after peer close")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func waitPacket(t *testing.T, l *Link) Packet {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pkt, ok := l.Poll(); ok {
			return pkt
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no packet within deadline")
	return Packet{}
}

func readFull(p *hal.SerialPeer, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := p.Read(b[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

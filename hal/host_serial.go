//go:build !tinygo

package hal

import (
	"io"
	"os"
	"sync"
)

type stdioSerial struct {
	mu sync.Mutex
}

func (s *stdioSerial) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (s *stdioSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.Stdout.Write(p)
}

// pipeHalf is one direction of an in-memory serial connection. Writes
// never block; reads block until data arrives or the half is closed.
type pipeHalf struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPipeHalf() *pipeHalf {
	h := &pipeHalf{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *pipeHalf) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	h.buf = append(h.buf, p...)
	h.cond.Broadcast()
	return len(p), nil
}

func (h *pipeHalf) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.buf) == 0 {
		if h.closed {
			return 0, io.EOF
		}
		h.cond.Wait()
	}
	n := copy(p, h.buf)
	h.buf = h.buf[n:]
	return n, nil
}

func (h *pipeHalf) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
}

// SerialPeer is the management-host end of an in-memory serial connection.
type SerialPeer struct {
	toDevice   *pipeHalf
	fromDevice *pipeHalf
}

func (p *SerialPeer) Read(b []byte) (int, error)  { return p.fromDevice.Read(b) }
func (p *SerialPeer) Write(b []byte) (int, error) { return p.toDevice.Write(b) }

// Close tears down both directions; blocked readers observe EOF.
func (p *SerialPeer) Close() {
	p.toDevice.Close()
	p.fromDevice.Close()
}

type deviceSerial struct {
	toDevice   *pipeHalf
	fromDevice *pipeHalf
}

func (s *deviceSerial) Read(b []byte) (int, error)  { return s.toDevice.Read(b) }
func (s *deviceSerial) Write(b []byte) (int, error) { return s.fromDevice.Write(b) }

// NewSerialPair creates a connected in-memory serial stream: the first end
// is wired into the simulated device, the second is handed to whoever
// plays the management host.
func NewSerialPair() (Serial, *SerialPeer) {
	toDevice := newPipeHalf()
	fromDevice := newPipeHalf()
	return &deviceSerial{toDevice: toDevice, fromDevice: fromDevice},
		&SerialPeer{toDevice: toDevice, fromDevice: fromDevice}
}

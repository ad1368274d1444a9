//go:build !tinygo

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"picorom/link"
)

const (
	ioTimeout    = 2 * time.Second
	probeTimeout = 500 * time.Millisecond
)

var errTimeout = errors.New("timed out waiting for device")

// nextDeadline is the polling quantum for loops that interleave reads
// with other work.
func nextDeadline() time.Time { return time.Now().Add(100 * time.Millisecond) }

// client speaks the management protocol over one serial port.
type client struct {
	portName string
	port     serial.Port
	dec      link.Decoder
	queue    []link.Packet
	buf      []byte
}

func openClient(portName string) (*client, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	// Short port timeouts; packet deadlines are enforced in next.
	_ = port.SetReadTimeout(50 * time.Millisecond)
	return &client{portName: portName, port: port, buf: make([]byte, 256)}, nil
}

func (c *client) Close() { _ = c.port.Close() }

func (c *client) send(kind link.Kind, payload []byte) error {
	if len(payload) > link.MaxPayload {
		payload = payload[:link.MaxPayload]
	}
	frame := make([]byte, 2+len(payload))
	frame[0] = byte(kind)
	frame[1] = byte(len(payload))
	copy(frame[2:], payload)
	if _, err := c.port.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", c.portName, err)
	}
	return nil
}

func (c *client) sendU32(kind link.Kind, v uint32) error {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	return c.send(kind, p[:])
}

// next returns the next decoded packet, reading stream bytes as needed.
// A read that returns no data within the deadline is a timeout.
func (c *client) next(deadline time.Time) (link.Packet, error) {
	for {
		if len(c.queue) > 0 {
			pkt := c.queue[0]
			c.queue = c.queue[1:]
			return pkt, nil
		}
		if !time.Now().Before(deadline) {
			return link.Packet{}, errTimeout
		}
		n, err := c.port.Read(c.buf)
		if err != nil {
			return link.Packet{}, fmt.Errorf("read %s: %w", c.portName, err)
		}
		c.dec.Feed(c.buf[:n], func(pkt link.Packet) {
			c.queue = append(c.queue, pkt)
		})
	}
}

// expect reads until a packet of the wanted kind arrives. Device errors
// abort the wait; debug traffic is dropped.
func (c *client) expect(want link.Kind, timeout time.Duration) (link.Packet, error) {
	deadline := time.Now().Add(timeout)
	for {
		pkt, err := c.next(deadline)
		if err != nil {
			return link.Packet{}, err
		}
		switch pkt.Kind {
		case want:
			return pkt, nil
		case link.KindError:
			return link.Packet{}, fmt.Errorf("device error: %s", tagText(&pkt))
		}
	}
}

// tagText extracts the text of a debug or error packet.
func tagText(p *link.Packet) string {
	pl := p.Payload()
	if len(pl) > 8 {
		return string(pl[8:])
	}
	return ""
}

func (c *client) getParam(name string) (string, error) {
	if err := c.send(link.KindGetParameter, []byte(name)); err != nil {
		return "", err
	}
	return c.paramReply(ioTimeout)
}

func (c *client) setParam(name, value string) (string, error) {
	if err := c.send(link.KindSetParameter, []byte(name+","+value)); err != nil {
		return "", err
	}
	return c.paramReply(ioTimeout)
}

func (c *client) paramReply(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		pkt, err := c.next(deadline)
		if err != nil {
			return "", err
		}
		switch pkt.Kind {
		case link.KindParameter:
			_, value, _ := strings.Cut(string(pkt.Payload()), ",")
			return value, nil
		case link.KindParameterError:
			return "", fmt.Errorf("no such parameter: %s", string(pkt.Payload()))
		case link.KindError:
			return "", fmt.Errorf("device error: %s", tagText(&pkt))
		}
	}
}

// listParams walks the parameter list via query_parameter.
func (c *client) listParams() ([]string, error) {
	var names []string
	cursor := ""
	for {
		if err := c.send(link.KindQueryParameter, []byte(cursor)); err != nil {
			return nil, err
		}
		pkt, err := c.expect(link.KindParameter, ioTimeout)
		if err != nil {
			return nil, err
		}
		name := string(pkt.Payload())
		if name == "" {
			return names, nil
		}
		names = append(names, name)
		cursor = name
	}
}

// probeName asks a freshly opened port for its device name, with a short
// deadline so scanning unrelated ports stays quick.
func (c *client) probeName() (string, error) {
	if err := c.send(link.KindGetParameter, []byte("name")); err != nil {
		return "", err
	}
	return c.paramReply(probeTimeout)
}

// romSize reads the configured address mask and converts it to a size.
func (c *client) romSize() (uint32, error) {
	v, err := c.getParam("addr_mask")
	if err != nil {
		return 0, err
	}
	mask, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad addr_mask %q: %w", v, err)
	}
	return uint32(mask) + 1, nil
}

// findDevice scans serial ports for a device. An empty name matches the
// first device found.
func findDevice(name string) (*client, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	for _, p := range ports {
		c, err := openClient(p)
		if err != nil {
			continue
		}
		got, err := c.probeName()
		if err != nil || (name != "" && got != name) {
			c.Close()
			continue
		}
		return c, nil
	}
	if name == "" {
		return nil, errors.New("no device found")
	}
	return nil, fmt.Errorf("no device named %q", name)
}

// eachDevice runs fn for every device found, closing each afterwards.
func eachDevice(fn func(name string, c *client)) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	for _, p := range ports {
		c, err := openClient(p)
		if err != nil {
			continue
		}
		got, err := c.probeName()
		if err != nil {
			c.Close()
			continue
		}
		fn(got, c)
		c.Close()
	}
	return nil
}

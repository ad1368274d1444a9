//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import (
	"machine"
	"time"
)

// Board names the hardware this build runs on.
func Board() string { return machine.Device }

// Pin assignment. The address bus occupies the low GPIOs so the PIO
// program can shift it in as one contiguous field.
const (
	pinAddrBase = machine.GP0  // A0..A17
	pinDataBase = machine.GP18 // D0..D7
	pinReset    = machine.GP26

	addrPinCount = 18
	dataPinCount = 8
)

type tinyGoHAL struct {
	logger *uartLogger
	led    LED
	flash  Flash
	serial Serial
	reset  *pinResetLine
	bus    *rp2Bus
}

// New returns the Pico HAL: USB CDC toward the management host, debug
// logging on UART0 (GP28 TX / GP29 RX, 115200 8N1) and the PIO-backed
// bus service.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP28,
		RX:       machine.GP29,
	})

	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    newBoardLED(),
		flash:  newRP2Flash(),
		serial: usbSerial{},
		reset:  &pinResetLine{pin: pinReset},
		bus:    newRP2Bus(),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) Flash() Flash     { return h.flash }
func (h *tinyGoHAL) Serial() Serial   { return h.serial }
func (h *tinyGoHAL) Reset() ResetLine { return h.reset }
func (h *tinyGoHAL) Bus() Bus         { return h.bus }

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

// usbSerial adapts the USB CDC endpoint to the stream interface. Read
// blocks until at least one byte arrives; the endpoint itself never
// reports errors.
type usbSerial struct{}

func (usbSerial) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (usbSerial) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}

// pinResetLine drives the target reset pin, floating it by switching the
// pin to input for the Z level.
type pinResetLine struct {
	pin   machine.Pin
	level ResetLevel
}

func (r *pinResetLine) Set(level ResetLevel) {
	switch level {
	case ResetLow:
		r.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		r.pin.Low()
	case ResetHigh:
		r.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		r.pin.High()
	default:
		r.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	r.level = level
}

func (r *pinResetLine) Level() ResetLevel { return r.level }

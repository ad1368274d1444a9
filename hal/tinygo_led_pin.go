//go:build tinygo && baremetal && !ws2812_led

package hal

import "machine"

type pinLED struct {
	pin machine.Pin
}

func newBoardLED() LED {
	pin := machine.LED
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &pinLED{pin: pin}
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }

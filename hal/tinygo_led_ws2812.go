//go:build tinygo && baremetal && ws2812_led

package hal

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// rgbLED drives boards whose status LED is a single WS2812 pixel.
type rgbLED struct {
	dev ws2812.Device
}

func newBoardLED() LED {
	pin := machine.GP27
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &rgbLED{dev: ws2812.New(pin)}
}

func (l *rgbLED) High() {
	l.dev.WriteColors([]color.RGBA{{G: 0x20}})
}

func (l *rgbLED) Low() {
	l.dev.WriteColors([]color.RGBA{{}})
}

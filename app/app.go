// Package app is the firmware entrypoint shared by the hardware and host
// builds: it assembles a device over the given HAL and runs it.
package app

import (
	"picorom/device"
	"picorom/hal"
)

type App struct {
	h   hal.HAL
	dev *device.Device
}

func New(h hal.HAL) *App {
	return &App{h: h, dev: device.New(h)}
}

// Run services the device until the management link closes.
func (a *App) Run() error {
	defer a.logPanic()
	return a.dev.Run()
}

// StatusLines exposes the device snapshot for the host front panel.
func (a *App) StatusLines() []string {
	return a.dev.StatusLines()
}

// Run assembles and runs a device, for entrypoints that need nothing else.
func Run(h hal.HAL) error {
	return New(h).Run()
}

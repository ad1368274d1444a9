package device

import "picorom/hal"

// ledDriver blends three blink sources onto the single status LED: bus
// read activity, link traffic, and host-requested identify bursts. Tick
// runs on a fixed 10ms cadence from the device loop, so all state is
// plain fields.
type ledDriver struct {
	led hal.LED

	identifyReq uint8
	identifyAck uint8

	activityCycles uint8
	activityDuty   uint8
	activityCount  uint8

	linkCycles uint8
	linkDuty   uint8
	linkCount  uint8
}

// Identify queues five long blink bursts so the unit can be spotted on a
// crowded bench.
func (d *ledDriver) Identify() {
	d.identifyReq += 5
}

func (d *ledDriver) Tick(romAccess, linkActivity bool) {
	if d.activityCount >= d.activityCycles {
		if romAccess {
			d.activityCycles = 5
			d.activityDuty = 1
		} else {
			d.activityCycles = 0
			d.activityDuty = 0
		}
		d.activityCount = 0
	}

	if d.linkCount >= d.linkCycles {
		if d.identifyReq != d.identifyAck {
			d.identifyAck++
			d.linkCycles = 100
			d.linkDuty = 90
		} else if linkActivity {
			d.linkCycles = 20
			d.linkDuty = 10
		} else {
			d.linkCycles = 0
			d.linkDuty = 0
		}
		d.linkCount = 0
	}

	if d.linkCount < d.linkDuty || d.activityCount < d.activityDuty {
		d.led.High()
	} else {
		d.led.Low()
	}

	d.activityCount++
	d.linkCount++
}

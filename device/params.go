package device

import (
	"fmt"
	"strconv"

	"picorom/hal"
	"picorom/internal/buildinfo"
)

// Parameter surface exposed to the management host. Names are stable:
// host tooling walks them with query_parameter and scripts key on them.
var parameterNames = []string{
	"name",
	"rom_name",
	"addr_mask",
	"initial_reset",
	"default_reset",
	"reset",
	"status",
	"build_config",
	"build_version",
}

func (d *Device) getParameter(name string) (string, bool) {
	switch name {
	case "name":
		return d.cfg.Name, true
	case "rom_name":
		return d.cfg.ROMName, true
	case "addr_mask":
		return fmt.Sprintf("0x%08x", d.cfg.AddrMask), true
	case "initial_reset":
		return d.cfg.InitialReset.String(), true
	case "default_reset":
		return d.cfg.DefaultReset.String(), true
	case "reset":
		return d.h.Reset().Level().String(), true
	case "status":
		return fmt.Sprintf("0x%08x", d.status), true
	case "build_config":
		return hal.Board(), true
	case "build_version":
		return buildinfo.Short(), true
	}
	return "", false
}

func (d *Device) setParameter(name, value string) bool {
	switch name {
	case "name":
		if len(value) >= nameBytes {
			return false
		}
		d.cfg.Name = value
		return SaveConfig(d.flash, d.cfg) == nil

	case "rom_name":
		// Held in RAM until the next commit, like the image itself.
		if len(value) >= nameBytes {
			return false
		}
		d.cfg.ROMName = value
		return true

	case "addr_mask":
		mask, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return false
		}
		d.cfg.AddrMask = uint32(mask) & hal.AddrMask
		d.bus.SetAddrMask(d.cfg.AddrMask)
		return true

	case "initial_reset":
		level, ok := hal.ParseResetLevel(value)
		if !ok {
			return false
		}
		d.cfg.InitialReset = level
		return SaveConfig(d.flash, d.cfg) == nil

	case "default_reset":
		level, ok := hal.ParseResetLevel(value)
		if !ok {
			return false
		}
		d.cfg.DefaultReset = level
		return SaveConfig(d.flash, d.cfg) == nil

	case "reset":
		level, ok := hal.ParseResetLevel(value)
		if !ok {
			return false
		}
		d.h.Reset().Set(level)
		return true
	}
	return false
}

// nextParameter walks the parameter list: an empty name yields the first
// entry, a known name yields its successor, the last entry yields "".
func nextParameter(name string) string {
	if name == "" {
		return parameterNames[0]
	}
	for i, n := range parameterNames {
		if n == name && i+1 < len(parameterNames) {
			return parameterNames[i+1]
		}
	}
	return ""
}

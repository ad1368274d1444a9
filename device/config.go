package device

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"picorom/hal"
)

// Config is the persistent device configuration, stored in the last erase
// sector of flash. The ROM image occupies the region directly below it.
const (
	configVersion = 0x00010009
	configBytes   = 256
	nameBytes     = 32
)

type Config struct {
	AddrMask     uint32
	Name         string
	ROMName      string
	InitialReset hal.ResetLevel
	DefaultReset hal.ResetLevel
}

func defaultConfig() Config {
	return Config{
		AddrMask:     hal.AddrMask,
		Name:         "picorom",
		InitialReset: hal.ResetZ,
		DefaultReset: hal.ResetZ,
	}
}

func configOffset(f hal.Flash) uint32 {
	return f.SizeBytes() - f.EraseBlockBytes()
}

func romOffset(f hal.Flash) uint32 {
	return configOffset(f) - hal.RomSize
}

func marshalConfig(c Config) [configBytes]byte {
	var b [configBytes]byte
	binary.LittleEndian.PutUint32(b[0:], configVersion)
	binary.LittleEndian.PutUint32(b[4:], c.AddrMask)
	b[8] = byte(c.InitialReset)
	b[9] = byte(c.DefaultReset)
	copyName(b[16:16+nameBytes], c.Name)
	copyName(b[48:48+nameBytes], c.ROMName)
	return b
}

func unmarshalConfig(b []byte) (Config, bool) {
	if len(b) < configBytes {
		return Config{}, false
	}
	if binary.LittleEndian.Uint32(b[0:]) != configVersion {
		return Config{}, false
	}
	var c Config
	c.AddrMask = binary.LittleEndian.Uint32(b[4:])
	c.InitialReset = hal.ResetLevel(b[8])
	c.DefaultReset = hal.ResetLevel(b[9])
	c.Name = cutName(b[16 : 16+nameBytes])
	c.ROMName = cutName(b[48 : 48+nameBytes])
	return c, true
}

func copyName(dst []byte, s string) {
	// NUL terminated, so the name field caps at nameBytes-1 characters.
	n := copy(dst[:len(dst)-1], s)
	for ; n < len(dst); n++ {
		dst[n] = 0
	}
}

func cutName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// LoadConfig reads the stored configuration, falling back to defaults when
// the sector is blank or carries a different version.
func LoadConfig(f hal.Flash) Config {
	var b [configBytes]byte
	if _, err := f.ReadAt(b[:], configOffset(f)); err != nil {
		return defaultConfig()
	}
	c, ok := unmarshalConfig(b[:])
	if !ok {
		return defaultConfig()
	}
	return c
}

// SaveConfig persists the configuration, skipping the erase cycle when
// nothing changed.
func SaveConfig(f hal.Flash, c Config) error {
	want := marshalConfig(c)

	var have [configBytes]byte
	if _, err := f.ReadAt(have[:], configOffset(f)); err == nil && have == want {
		return nil
	}

	if err := f.Erase(configOffset(f), f.EraseBlockBytes()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if _, err := f.WriteAt(want[:], configOffset(f)); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// SaveROM persists the served image below the config sector.
func SaveROM(f hal.Flash, bus hal.Bus) error {
	if err := f.Erase(romOffset(f), hal.RomSize); err != nil {
		return fmt.Errorf("save rom: %w", err)
	}

	buf := make([]byte, f.EraseBlockBytes())
	for off := uint32(0); off < hal.RomSize; off += uint32(len(buf)) {
		bus.ReadAt(buf, off)
		if _, err := f.WriteAt(buf, romOffset(f)+off); err != nil {
			return fmt.Errorf("save rom at %d: %w", off, err)
		}
	}
	return nil
}

// LoadROM restores the served image from flash.
func LoadROM(f hal.Flash, bus hal.Bus) error {
	buf := make([]byte, f.EraseBlockBytes())
	for off := uint32(0); off < hal.RomSize; off += uint32(len(buf)) {
		if _, err := f.ReadAt(buf, romOffset(f)+off); err != nil {
			return fmt.Errorf("load rom at %d: %w", off, err)
		}
		bus.WriteAt(buf, off)
	}
	return nil
}

//go:build !tinygo

package hal

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestHostFlashEraseSemantics(t *testing.T) {
	t.Setenv("PICOROM_FLASH_PATH", filepath.Join(t.TempDir(), "flash.bin"))
	f := newHostFlash()

	b := make([]byte, 4)
	if _, err := f.ReadAt(b, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i, v := range b {
		if v != 0xFF {
			t.Fatalf("fresh flash byte %d = 0x%02x, want 0xFF", i, v)
		}
	}

	if _, err := f.WriteAt([]byte{0x00, 0x12}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Setting cleared bits back needs an erase first.
	if _, err := f.WriteAt([]byte{0xFF}, 0); !errors.Is(err, ErrFlashWriteRequiresErase) {
		t.Fatalf("WriteAt over programmed byte: %v", err)
	}
	if err := f.Erase(0, f.EraseBlockBytes()); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 0); err != nil {
		t.Fatalf("WriteAt after erase: %v", err)
	}

	if err := f.Erase(100, f.EraseBlockBytes()); err == nil {
		t.Fatalf("unaligned erase accepted")
	}
}

//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath = "picorom.flash"
	hostFlashSizeBytes   = 2 * 1024 * 1024
	hostFlashEraseBytes  = 4096
)

var ErrFlashWriteRequiresErase = errors.New("flash write requires erase")

// hostFlash backs the device flash with an ordinary file, preserving real
// flash semantics: writes may only clear bits, erases set a whole block
// to 0xFF.
type hostFlash struct {
	mu   sync.Mutex
	f    *os.File
	size uint32
}

func newHostFlash() *hostFlash {
	path := os.Getenv("PICOROM_FLASH_PATH")
	if path == "" {
		path = hostFlashDefaultPath
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return &hostFlash{}
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return &hostFlash{}
	}
	if st.Size() == 0 {
		blank := make([]byte, hostFlashEraseBytes)
		for i := range blank {
			blank[i] = 0xFF
		}
		for off := int64(0); off < hostFlashSizeBytes; off += hostFlashEraseBytes {
			if _, err := f.WriteAt(blank, off); err != nil {
				_ = f.Close()
				return &hostFlash{}
			}
		}
	}

	return &hostFlash{f: f, size: hostFlashSizeBytes}
}

func (f *hostFlash) SizeBytes() uint32       { return f.size }
func (f *hostFlash) EraseBlockBytes() uint32 { return hostFlashEraseBytes }

func (f *hostFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash read at %d: %w", off, os.ErrInvalid)
	}
	if max := int(f.size - off); len(p) > max {
		p = p[:max]
	}
	return f.f.ReadAt(p, int64(off))
}

func (f *hostFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrInvalid)
	}
	if max := int(f.size - off); len(p) > max {
		p = p[:max]
	}

	prev := make([]byte, len(p))
	if _, err := f.f.ReadAt(prev, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if prev[i]&p[i] != p[i] {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *hostFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return ErrNotImplemented
	}
	if size == 0 {
		return nil
	}
	if off%hostFlashEraseBytes != 0 || size%hostFlashEraseBytes != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	if off >= f.size || off+size > f.size {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}

	blank := make([]byte, hostFlashEraseBytes)
	for i := range blank {
		blank[i] = 0xFF
	}
	for size > 0 {
		if _, err := f.f.WriteAt(blank, int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += hostFlashEraseBytes
		size -= hostFlashEraseBytes
	}
	return nil
}

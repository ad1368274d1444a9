//go:build !tinygo

package main

import (
	"flag"
	"fmt"
	"os"
)

const maxRomSize = 256 * 1024

func main() {
	var (
		inPath  = flag.String("in", "", "Input binary.")
		outPath = flag.String("out", "", "Output ROM image.")
		size    = flag.Uint("size", 0, "Image size in bytes (0 = next power of two).")
		fill    = flag.Uint("fill", 0xFF, "Padding byte.")
	)
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mkrom -in raw.bin -out rom.bin [-size 32768] [-fill 0xFF]")
		os.Exit(2)
	}
	if err := run(*inPath, *outPath, uint32(*size), byte(*fill)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run pads the input up to a power-of-two image, the only shape the
// device's address mask can express.
func run(inPath, outPath string, size uint32, fill byte) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", inPath)
	}
	if len(data) > maxRomSize {
		return fmt.Errorf("%s is %d bytes, larger than the %d byte image", inPath, len(data), maxRomSize)
	}

	if size == 0 {
		size = 1
		for size < uint32(len(data)) {
			size <<= 1
		}
	}
	if size&(size-1) != 0 {
		return fmt.Errorf("size %d is not a power of two", size)
	}
	if uint32(len(data)) > size {
		return fmt.Errorf("%s is %d bytes, larger than the requested %d", inPath, len(data), size)
	}

	out := make([]byte, size)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = fill
	}
	return os.WriteFile(outPath, out, 0o644)
}

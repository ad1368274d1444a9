//go:build tinygo

package main

import (
	"picorom/app"
	"picorom/hal"
)

func main() {
	h := hal.New()
	for {
		_ = app.Run(h)
	}
}

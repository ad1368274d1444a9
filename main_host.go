//go:build !tinygo

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"picorom/app"
	"picorom/hal"
)

func main() {
	headless := flag.Bool("headless", false, "Run without the status panel window.")
	flag.Parse()

	if *headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err := hal.RunHeadless(ctx, func(h hal.HAL) error { return app.Run(h) })
		if err != nil && err != context.Canceled {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	a := app.New(hal.New())
	go func() {
		if err := a.Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}()

	if err := hal.RunPanel(a.StatusLines); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

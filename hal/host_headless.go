//go:build !tinygo

package hal

import "context"

// RunHeadless runs the firmware on a fresh host HAL without a window,
// until it stops on its own or the context ends.
func RunHeadless(ctx context.Context, run func(HAL) error) error {
	h := New()
	done := make(chan error, 1)
	go func() { done <- run(h) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

//go:build !windows

package yggconf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckWritable reports whether the config file can be rewritten in
// place, before any probing work is spent.
func CheckWritable(path string) error {
	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrConfigWrite, path, err)
	}
	return nil
}

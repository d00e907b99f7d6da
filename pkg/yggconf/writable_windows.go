//go:build windows

package yggconf

import (
	"fmt"
	"os"
)

// CheckWritable reports whether the config file can be rewritten in
// place, before any probing work is spent.
func CheckWritable(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrConfigWrite, path, err)
	}
	_ = f.Close()
	return nil
}

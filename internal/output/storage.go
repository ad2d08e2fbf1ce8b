package output

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientStorage is returned when the recordings volume is too full
var ErrInsufficientStorage = errors.New("output: insufficient free space")

// FreeSpace returns the free bytes on the volume holding dir
func FreeSpace(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("output: disk usage of %s: %w", dir, err)
	}
	return usage.Free, nil
}

// CheckFreeSpace fails with ErrInsufficientStorage when dir has less than
// minBytes free. A zero minimum disables the check.
func CheckFreeSpace(dir string, minBytes uint64) error {
	if minBytes == 0 {
		return nil
	}
	free, err := FreeSpace(dir)
	if err != nil {
		return err
	}
	if free < minBytes {
		return fmt.Errorf("%w: %.1f MB free on %s, minimum %.1f MB",
			ErrInsufficientStorage, float64(free)/(1<<20), dir, float64(minBytes)/(1<<20))
	}
	return nil
}

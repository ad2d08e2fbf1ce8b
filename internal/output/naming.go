// Package output names segment files, checks the recordings directory and
// verifies finalized files.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPrefix = "ScreenRecording"
	DefaultExt    = ".mkv"

	timestampLayout = "20060102_150405"
)

// Namer produces collision-resistant segment paths inside Dir
type Namer struct {
	Dir    string
	Prefix string
	Ext    string
	Now    func() time.Time
}

// NewNamer returns a Namer for dir with default prefix and extension
func NewNamer(dir string) *Namer {
	return &Namer{Dir: dir, Prefix: DefaultPrefix, Ext: DefaultExt, Now: time.Now}
}

// Next ensures the directory exists and returns a fresh path:
// <Dir>/<Prefix>_<yyyyMMdd_HHmmss>_<8 hex>.mkv
func (n *Namer) Next() (string, error) {
	if err := os.MkdirAll(n.Dir, 0o755); err != nil {
		return "", fmt.Errorf("output: create %s: %w", n.Dir, err)
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	prefix := n.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ext := n.Ext
	if ext == "" {
		ext = DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s_%s_%s%s", prefix, now().Format(timestampLayout), id, ext)
	return filepath.Join(n.Dir, name), nil
}

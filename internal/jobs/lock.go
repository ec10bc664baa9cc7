package jobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("another curation run is in progress")

// AcquireRunLock takes the exclusive run lock at path without blocking.
func AcquireRunLock(path string) (func(), error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil { return nil, fmt.Errorf("lock dir: %w", err) }
	}
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil { return nil, fmt.Errorf("acquire run lock: %w", err) }
	if !ok { return nil, ErrRunInProgress }
	return func() { _ = l.Unlock() }, nil
}

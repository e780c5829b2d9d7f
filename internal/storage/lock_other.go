//go:build !unix && !windows

package storage

import "os"

// lockFile is a no-op where the platform has no advisory file locks.
func lockFile(*os.File) error { return nil }

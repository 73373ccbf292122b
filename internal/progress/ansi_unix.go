//go:build !windows

package progress

import "os"

// enableANSIOnWindows is a no-op: Unix terminals support ANSI natively
func enableANSIOnWindows(f *os.File) {}

//go:build !windows
// +build !windows

package progress

import "os"

// enableANSI is a no-op on non-Windows platforms
// ANSI escape sequences work natively on Unix-like systems
func enableANSI(f *os.File) {}

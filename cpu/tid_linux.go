//go:build linux

package cpu

import "golang.org/x/sys/unix"

// threadID identifies the calling OS thread. Never 0.
func threadID() uint32 {
	return uint32(unix.Gettid())
}

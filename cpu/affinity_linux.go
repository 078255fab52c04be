// affinity_linux.go - thread pinning via sched_setaffinity(2)

//go:build linux

package cpu

import "golang.org/x/sys/unix"

// setAffinity restricts the calling thread to host CPU core and returns a
// func restoring the previous mask.
func setAffinity(core int) (func(), error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return func() {}, err
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return func() {}, err
	}
	return func() { _ = unix.SchedSetaffinity(0, &prev) }, nil
}

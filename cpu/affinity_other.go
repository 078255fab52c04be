// affinity_other.go - platforms without sched_setaffinity keep the thread
// lock only.

//go:build !linux

package cpu

func setAffinity(core int) (func(), error) {
	return func() {}, nil
}

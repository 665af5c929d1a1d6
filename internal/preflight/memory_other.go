//go:build !linux

package preflight

func totalMemory() (uint64, bool) {
	return 0, false
}

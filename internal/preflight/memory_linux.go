package preflight

import "golang.org/x/sys/unix"

// totalMemory returns physical RAM in bytes.
func totalMemory() (uint64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	return uint64(info.Totalram) * uint64(info.Unit), true
}

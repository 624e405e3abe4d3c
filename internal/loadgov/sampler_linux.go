//go:build linux

package loadgov

import "golang.org/x/sys/unix"

// sysinfoSampler reads the 1-minute load average from the kernel.
type sysinfoSampler struct{}

func (sysinfoSampler) Sample() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	// Loads are fixed-point with a 16-bit fractional part.
	return float64(info.Loads[0]) / 65536.0, nil
}

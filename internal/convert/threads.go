package convert

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// threadCap resolves the hard thread limit for CPU encodes. A configured
// value wins; otherwise the physical core count keeps ffmpeg from
// oversubscribing hyperthreaded NAS hardware.
func (s Settings) threadCap() int {
	if s.Threads > 0 {
		return s.Threads
	}
	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		return physical
	}
	return runtime.NumCPU()
}

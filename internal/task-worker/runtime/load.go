package runtime

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
)

// SystemLoad returns the one-minute load average per logical CPU. When the
// host does not expose it the ratio of running to maximum executions is used.
func SystemLoad(running, max int) float64 {
	if avg, err := load.Avg(); err == nil {
		if cpus, err := cpu.Counts(true); err == nil && cpus > 0 {
			return avg.Load1 / float64(cpus)
		}
	}
	return SlotLoad(running, max)
}

// SlotLoad is the share of the worker's execution slots in use.
func SlotLoad(running, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(running) / float64(max)
}

// Package procstats samples resource usage of the validator process and its host.
package procstats

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostMetrics contains system-level metrics collected from the host.
type HostMetrics struct {
	// CPUPercent is the overall CPU usage percentage (0-100).
	CPUPercent float64 `json:"cpu_percent"`

	// MemTotal is the total system memory in bytes.
	MemTotal uint64 `json:"mem_total"`

	// MemUsed is the used system memory in bytes.
	MemUsed uint64 `json:"mem_used"`

	LoadAvg1 float64 `json:"load_avg_1,omitempty"`
}

// ProcessMetrics contains metrics for one process.
type ProcessMetrics struct {
	PID int `json:"pid"`

	// CPUPercent is the process CPU usage percentage since it started.
	CPUPercent float64 `json:"cpu_percent"`

	// MemRSS is the resident set size (physical memory) in bytes.
	MemRSS uint64 `json:"mem_rss"`

	// MemVMS is the virtual memory size in bytes.
	MemVMS uint64 `json:"mem_vms,omitempty"`

	NumThreads int `json:"num_threads,omitempty"`
}

// Sample is a point-in-time snapshot.
type Sample struct {
	Timestamp time.Time       `json:"timestamp"`
	Process   *ProcessMetrics `json:"process"`
	Host      *HostMetrics    `json:"host,omitempty"`
}

// CollectProcess samples the process with the given pid.
func CollectProcess(pid int) (*ProcessMetrics, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}

	cpuPct, _ := proc.CPUPercent()
	numThreads, _ := proc.NumThreads()

	pm := &ProcessMetrics{
		PID:        pid,
		CPUPercent: cpuPct,
		NumThreads: int(numThreads),
	}

	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		pm.MemRSS = memInfo.RSS
		pm.MemVMS = memInfo.VMS
	}

	return pm, nil
}

// CollectHost samples host CPU, memory and load. Fields the platform cannot
// report are left zero.
func CollectHost() *HostMetrics {
	hm := &HostMetrics{}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		hm.CPUPercent = pct[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil && memInfo != nil {
		hm.MemTotal = memInfo.Total
		hm.MemUsed = memInfo.Used
	}
	// Unix only
	if avg, err := load.Avg(); err == nil && avg != nil {
		hm.LoadAvg1 = avg.Load1
	}

	return hm
}

// Collect samples the process with the given pid and the host it runs on.
func Collect(pid int) (*Sample, error) {
	pm, err := CollectProcess(pid)
	if err != nil {
		return nil, err
	}
	return &Sample{
		Timestamp: time.Now(),
		Process:   pm,
		Host:      CollectHost(),
	}, nil
}

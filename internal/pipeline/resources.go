package pipeline

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is the process footprint reported with a run summary.
type ResourceUsage struct {
	CPUPercent            float64 `json:"cpu_percent"`
	MemoryRSS             uint64  `json:"memory_rss"`
	SystemMemoryPercent   float64 `json:"system_memory_percent"`
	SystemMemoryAvailable uint64  `json:"system_memory_available"`
	GoroutineCount        int     `json:"goroutines"`
	ThreadCount           int32   `json:"threads"`
}

// ResourceMonitor samples the process between Start and Usage.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
}

// NewResourceMonitor starts measuring from now. Sampling failures leave
// the affected fields zero.
func NewResourceMonitor() *ResourceMonitor {
	rm := &ResourceMonitor{startTime: time.Now()}
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: pids fit in int32
	if err != nil {
		return rm
	}
	rm.process = proc
	if t, err := proc.Times(); err == nil {
		rm.startCPUTime = t.Total()
	}
	return rm
}

// Usage returns the resource usage since the monitor was created.
func (rm *ResourceMonitor) Usage() *ResourceUsage {
	usage := &ResourceUsage{GoroutineCount: runtime.NumGoroutine()}
	if rm.process != nil {
		if t, err := rm.process.Times(); err == nil {
			if elapsed := time.Since(rm.startTime).Seconds(); elapsed > 0 {
				usage.CPUPercent = (t.Total() - rm.startCPUTime) / elapsed * 100
			}
		}
		if m, err := rm.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = m.RSS
		}
		usage.ThreadCount, _ = rm.process.NumThreads()
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vm.UsedPercent
		usage.SystemMemoryAvailable = vm.Available
	}
	return usage
}

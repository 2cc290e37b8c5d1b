package gateway

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"aurelius-engine/internal/markethours"
)

// RuntimeStats is the periodic "stats" message sent to WS clients and the
// body of /api/v1/stats.
type RuntimeStats struct {
	Goroutines  int     `json:"goroutines"`
	CPUCores    int     `json:"cpu_cores"`
	CPULoad1    float64 `json:"cpu_load_1"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	UptimeSec   int64   `json:"uptime_sec"`
	WSClients   int     `json:"ws_clients"`
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
	TS          string  `json:"ts"`

	Market markethours.Status `json:"market"`
}

// CollectStats gathers process resource usage and the market status. Load
// average is read from /proc and left zero where unavailable.
func CollectStats(start time.Time) RuntimeStats {
	now := time.Now()
	s := RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		CPUCores:   runtime.NumCPU(),
		UptimeSec:  int64(now.Sub(start).Seconds()),
		TS:         now.UTC().Format(time.RFC3339Nano),
		Market:     markethours.StatusAt(now),
	}

	if f, err := os.Open("/proc/loadavg"); err == nil {
		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
				s.CPULoad1, _ = strconv.ParseFloat(fields[0], 64)
			}
		}
		f.Close()
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.SysMB = float64(ms.Sys) / 1024 / 1024
	s.GCRuns = ms.NumGC
	return s
}

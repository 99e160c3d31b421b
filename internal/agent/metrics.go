package agent

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var startedAt = time.Now()

// CollectMetrics reports host facts sent with every heartbeat
func CollectMetrics() map[string]interface{} {
	hostname, _ := os.Hostname()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	cpu := map[string]interface{}{"cores": runtime.NumCPU()}
	if load, ok := loadAverage(); ok {
		cpu["loadAverage"] = load
	}

	return map[string]interface{}{
		"cpu": cpu,
		"memory": map[string]interface{}{
			"sys":       mem.Sys,
			"heapInUse": mem.HeapInuse,
		},
		"uptime":    int64(time.Since(startedAt).Seconds()),
		"hostname":  hostname,
		"platform":  runtime.GOOS,
		"arch":      runtime.GOARCH,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// loadAverage reads the 1, 5 and 15 minute load on Linux
func loadAverage() ([]float64, bool) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return nil, false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return nil, false
	}
	load := make([]float64, 0, 3)
	for _, f := range fields[:3] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		load = append(load, v)
	}
	return load, true
}

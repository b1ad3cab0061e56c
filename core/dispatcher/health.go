package dispatcher

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

var processStartedAt = time.Now()

// healthSnapshot renders /healthz's body: process uptime plus host/process
// memory pressure, so an operator scraping the endpoint can tell a wedged
// runner (timeouts piling up, heap climbing) from a merely busy one without
// needing a separate metrics scrape.
func healthSnapshot() string {
	payload := map[string]any{
		"status":   "ok",
		"uptime_s": int64(time.Since(processStartedAt).Seconds()),
		"pid":      os.Getpid(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		payload["host_mem_used_percent"] = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pct, err := proc.MemoryPercent(); err == nil {
			payload["process_mem_percent"] = pct
		}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return `{"status":"ok"}`
	}
	return string(out)
}

package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/spacesaver/internal/store"
)

// HealthHandler serves the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	store     *store.Store
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, st *store.Store) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		store:     st,
	}
}

// CPUInfo holds load average information.
type CPUInfo struct {
	Cores     int     `json:"cores" doc:"Number of logical CPU cores"`
	Load1Min  float64 `json:"load_1min" doc:"1 minute load average"`
	Load5Min  float64 `json:"load_5min" doc:"5 minute load average"`
	Load15Min float64 `json:"load_15min" doc:"15 minute load average"`
}

// MemoryInfo holds system memory usage.
type MemoryInfo struct {
	TotalBytes  uint64  `json:"total_bytes" doc:"Total system memory"`
	UsedBytes   uint64  `json:"used_bytes" doc:"Used system memory"`
	UsedPercent float64 `json:"used_percent" doc:"Used memory percentage"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string            `json:"status" doc:"healthy or degraded"`
	Timestamp     string            `json:"timestamp" doc:"Current time in RFC3339"`
	Version       string            `json:"version" doc:"Build version"`
	Uptime        string            `json:"uptime" doc:"Process uptime"`
	UptimeSeconds float64           `json:"uptime_seconds" doc:"Process uptime in seconds"`
	CPUInfo       CPUInfo           `json:"cpu" doc:"CPU load information"`
	Memory        MemoryInfo        `json:"memory" doc:"Memory usage"`
	Checks        map[string]string `json:"checks" doc:"Per-component health"`
}

// HealthInput is the input for the health endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including database reachability and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	status := "healthy"
	checks := map[string]string{"database": "ok"}
	if h.store == nil {
		status = "degraded"
		checks["database"] = "not_configured"
	} else if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	}

	cpuInfo := CPUInfo{Cores: runtime.NumCPU()}
	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		cpuInfo.Load1Min = loadAvg.Load1
		cpuInfo.Load5Min = loadAvg.Load5
		cpuInfo.Load15Min = loadAvg.Load15
	}

	memInfo := MemoryInfo{}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		memInfo.TotalBytes = vm.Total
		memInfo.UsedBytes = vm.Used
		memInfo.UsedPercent = vm.UsedPercent
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       cpuInfo,
			Memory:        memInfo,
			Checks:        checks,
		},
	}, nil
}
